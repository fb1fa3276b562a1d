package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jwoolee/beautylink-backend/internal/points"
	"github.com/jwoolee/beautylink-backend/pkg/db/models"
	"github.com/jwoolee/beautylink-backend/pkg/enums"
	pkgerrors "github.com/jwoolee/beautylink-backend/pkg/errors"
	"github.com/jwoolee/beautylink-backend/pkg/logger"
)

type fakePointsService struct {
	grantFn    func(ctx context.Context, input points.GrantFromPaymentInput) (*points.GrantResult, error)
	reverseFn  func(ctx context.Context, input points.ReverseInput) (*points.ReverseResult, error)
	redeemFn   func(ctx context.Context, input points.RedeemInput) (*points.RedeemResult, error)
	adjustFn   func(ctx context.Context, input points.AdjustInput) (*models.PointTransaction, error)
	balanceFn  func(ctx context.Context, userID uuid.UUID) (*points.BalanceSummary, error)
	historyFn  func(ctx context.Context, params points.HistoryParams) (*points.HistoryResult, error)
	unfreezeFn func(ctx context.Context, userID uuid.UUID) error
}

func (f *fakePointsService) GrantFromPayment(ctx context.Context, input points.GrantFromPaymentInput) (*points.GrantResult, error) {
	return f.grantFn(ctx, input)
}

func (f *fakePointsService) ReverseFromPayment(ctx context.Context, input points.ReverseInput) (*points.ReverseResult, error) {
	return f.reverseFn(ctx, input)
}

func (f *fakePointsService) Redeem(ctx context.Context, input points.RedeemInput) (*points.RedeemResult, error) {
	return f.redeemFn(ctx, input)
}

func (f *fakePointsService) Adjust(ctx context.Context, input points.AdjustInput) (*models.PointTransaction, error) {
	return f.adjustFn(ctx, input)
}

func (f *fakePointsService) BalanceSummary(ctx context.Context, userID uuid.UUID) (*points.BalanceSummary, error) {
	return f.balanceFn(ctx, userID)
}

func (f *fakePointsService) History(ctx context.Context, params points.HistoryParams) (*points.HistoryResult, error) {
	return f.historyFn(ctx, params)
}

func (f *fakePointsService) MatureDue(ctx context.Context, now time.Time, batchSize int) (points.SweepResult, error) {
	return points.SweepResult{}, nil
}

func (f *fakePointsService) ExpireDue(ctx context.Context, now time.Time, batchSize int) (points.SweepResult, error) {
	return points.SweepResult{}, nil
}

func (f *fakePointsService) ReconcileBalances(ctx context.Context, batchSize int) (points.ReconcileResult, error) {
	return points.ReconcileResult{}, nil
}

func (f *fakePointsService) UnfreezeAccount(ctx context.Context, userID uuid.UUID) error {
	return f.unfreezeFn(ctx, userID)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test"})
}

func TestPaymentCompleted(t *testing.T) {
	paymentID := uuid.New()
	userID := uuid.New()

	var captured points.GrantFromPaymentInput
	svc := &fakePointsService{
		grantFn: func(ctx context.Context, input points.GrantFromPaymentInput) (*points.GrantResult, error) {
			captured = input
			return &points.GrantResult{
				Entries: []*models.PointTransaction{{
					ID:     uuid.New(),
					UserID: input.UserID,
					Amount: 5000,
					Kind:   enums.PointKindEarnedService,
					Status: enums.PointStatusPending,
				}},
			}, nil
		},
	}

	body := fmt.Sprintf(`{"payment_id":%q,"user_id":%q,"paid_amount":50000}`, paymentID, userID)
	req := httptest.NewRequest(http.MethodPost, "/payments/completed", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	PaymentCompleted(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.PaymentID != paymentID || captured.UserID != userID || captured.PaidAmount != 50000 {
		t.Fatalf("unexpected input %+v", captured)
	}
}

func TestPaymentCompleted_DuplicateDeliveryStaysOK(t *testing.T) {
	svc := &fakePointsService{
		grantFn: func(ctx context.Context, input points.GrantFromPaymentInput) (*points.GrantResult, error) {
			return &points.GrantResult{AlreadyApplied: true}, nil
		},
	}

	body := fmt.Sprintf(`{"payment_id":%q,"user_id":%q,"paid_amount":100}`, uuid.New(), uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/payments/completed", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	PaymentCompleted(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate delivery must be 200, got %d", rec.Code)
	}
	var envelope struct {
		Data struct {
			AlreadyApplied bool `json:"already_applied"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.AlreadyApplied {
		t.Fatal("expected already_applied to be reported")
	}
}

func TestPaymentCompleted_InvalidBody(t *testing.T) {
	svc := &fakePointsService{}
	req := httptest.NewRequest(http.MethodPost, "/payments/completed", bytes.NewBufferString(`{"payment_id":"not-a-uuid","user_id":"x","paid_amount":1}`))
	rec := httptest.NewRecorder()
	PaymentCompleted(svc, testLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentRefunded_ConflictSurfaces(t *testing.T) {
	svc := &fakePointsService{
		reverseFn: func(ctx context.Context, input points.ReverseInput) (*points.ReverseResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeReversalConflict, "points already consumed")
		},
	}

	body := fmt.Sprintf(`{"payment_id":%q}`, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/payments/refunded", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	PaymentRefunded(svc, testLogger())(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func newRouteContext(key, value string) *chi.Context {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return rctx
}

func withRouteContext(req *http.Request, rctx *chi.Context) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
