package controllers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/jwoolee/beautylink-backend/internal/referrals"
	"github.com/jwoolee/beautylink-backend/pkg/db/models"
	pkgerrors "github.com/jwoolee/beautylink-backend/pkg/errors"
)

type fakeReferralsService struct {
	registerFn      func(ctx context.Context, input referrals.RegisterReferralInput) (*models.Referral, error)
	listFn          func(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error)
	setInfluencerFn func(ctx context.Context, referrerID uuid.UUID, influencer bool) error
}

func (f *fakeReferralsService) RegisterReferral(ctx context.Context, input referrals.RegisterReferralInput) (*models.Referral, error) {
	return f.registerFn(ctx, input)
}

func (f *fakeReferralsService) ReferrerOf(ctx context.Context, referredID uuid.UUID) (*models.Referral, error) {
	return nil, nil
}

func (f *fakeReferralsService) ListReferrals(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error) {
	return f.listFn(ctx, referrerID)
}

func (f *fakeReferralsService) SetInfluencer(ctx context.Context, referrerID uuid.UUID, influencer bool) error {
	return f.setInfluencerFn(ctx, referrerID, influencer)
}

func TestReferralRegister(t *testing.T) {
	referrerID := uuid.New()
	referredID := uuid.New()
	svc := &fakeReferralsService{
		registerFn: func(ctx context.Context, input referrals.RegisterReferralInput) (*models.Referral, error) {
			return &models.Referral{
				ID:         uuid.New(),
				ReferrerID: input.ReferrerID,
				ReferredID: input.ReferredID,
				Influencer: input.Influencer,
			}, nil
		},
	}

	body := fmt.Sprintf(`{"referrer_id":%q,"referred_id":%q,"influencer":true}`, referrerID, referredID)
	req := httptest.NewRequest(http.MethodPost, "/referrals", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	ReferralRegister(svc, testLogger())(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReferralRegister_DuplicateReferrer(t *testing.T) {
	svc := &fakeReferralsService{
		registerFn: func(ctx context.Context, input referrals.RegisterReferralInput) (*models.Referral, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "user already has a referrer")
		},
	}

	body := fmt.Sprintf(`{"referrer_id":%q,"referred_id":%q}`, uuid.New(), uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/referrals", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	ReferralRegister(svc, testLogger())(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestReferralSetInfluencer(t *testing.T) {
	referrerID := uuid.New()
	var gotFlag bool
	svc := &fakeReferralsService{
		setInfluencerFn: func(ctx context.Context, id uuid.UUID, influencer bool) error {
			if id != referrerID {
				t.Fatalf("unexpected referrer id %s", id)
			}
			gotFlag = influencer
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPut, "/influencer", bytes.NewBufferString(`{"influencer":true}`))
	req = withRouteContext(req, newRouteContext("userId", referrerID.String()))
	rec := httptest.NewRecorder()
	ReferralSetInfluencer(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !gotFlag {
		t.Fatal("expected influencer flag to reach the service")
	}
}
