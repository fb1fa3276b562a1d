package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwoolee/beautylink-backend/api/responses"
	"github.com/jwoolee/beautylink-backend/api/validators"
	"github.com/jwoolee/beautylink-backend/internal/points"
	"github.com/jwoolee/beautylink-backend/pkg/db/models"
	pkgerrors "github.com/jwoolee/beautylink-backend/pkg/errors"
	"github.com/jwoolee/beautylink-backend/pkg/logger"
)

type paymentCompletedRequest struct {
	PaymentID     string `json:"payment_id" validate:"required"`
	ReservationID string `json:"reservation_id"`
	UserID        string `json:"user_id" validate:"required"`
	PaidAmount    int64  `json:"paid_amount" validate:"required,gt=0"`
}

type paymentRefundedRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Reason    string `json:"reason"`
}

type transactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	Remaining     int64      `json:"remaining"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Reason        *string    `json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTransactionResponse(entry *models.PointTransaction) transactionResponse {
	return transactionResponse{
		ID:            entry.ID,
		UserID:        entry.UserID,
		Kind:          string(entry.Kind),
		Status:        string(entry.Status),
		Amount:        entry.Amount,
		Remaining:     entry.Remaining,
		AvailableFrom: entry.AvailableFrom,
		ExpiresAt:     entry.ExpiresAt,
		Reason:        entry.Reason,
		CreatedAt:     entry.CreatedAt,
	}
}

// PaymentCompleted ingests a completed-payment fact from the booking system
// and credits the point rewards it produces. Redelivery of the same payment
// is a successful no-op.
func PaymentCompleted(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}

		var req paymentCompletedRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := uuid.Parse(strings.TrimSpace(req.PaymentID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_id"))
			return
		}
		userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id"))
			return
		}

		input := points.GrantFromPaymentInput{
			PaymentID:  paymentID,
			UserID:     userID,
			PaidAmount: req.PaidAmount,
		}
		if trimmed := strings.TrimSpace(req.ReservationID); trimmed != "" {
			reservationID, err := uuid.Parse(trimmed)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation_id"))
				return
			}
			input.ReservationID = &reservationID
		}

		ctx := logg.WithPaymentID(r.Context(), paymentID.String())
		result, err := svc.GrantFromPayment(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entries := make([]transactionResponse, 0, len(result.Entries))
		for _, entry := range result.Entries {
			entries = append(entries, toTransactionResponse(entry))
		}
		responses.WriteSuccess(w, map[string]any{
			"already_applied": result.AlreadyApplied,
			"entries":         entries,
		})
	}
}

// PaymentRefunded ingests a refunded-payment fact and writes the compensating
// reversal entries, provided none of the granted points were consumed.
func PaymentRefunded(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}

		var req paymentRefundedRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := uuid.Parse(strings.TrimSpace(req.PaymentID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_id"))
			return
		}

		ctx := logg.WithPaymentID(r.Context(), paymentID.String())
		result, err := svc.ReverseFromPayment(ctx, points.ReverseInput{
			PaymentID: paymentID,
			Reason:    validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		reversals := make([]transactionResponse, 0, len(result.Reversals))
		for _, entry := range result.Reversals {
			reversals = append(reversals, toTransactionResponse(entry))
		}
		responses.WriteSuccess(w, map[string]any{
			"already_applied": result.AlreadyApplied,
			"reversals":       reversals,
		})
	}
}
