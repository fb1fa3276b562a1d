package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jwoolee/beautylink-backend/api/responses"
	"github.com/jwoolee/beautylink-backend/api/validators"
	"github.com/jwoolee/beautylink-backend/internal/points"
	pkgerrors "github.com/jwoolee/beautylink-backend/pkg/errors"
	"github.com/jwoolee/beautylink-backend/pkg/logger"
	"github.com/jwoolee/beautylink-backend/pkg/pagination"
)

type redeemRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	ReservationID string `json:"reservation_id"`
}

type adjustRequest struct {
	Amount  int64  `json:"amount" validate:"required"`
	Reason  string `json:"reason" validate:"required,min=3"`
	ActorID string `json:"actor_id" validate:"required"`
}

func userIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "userId")
	userID, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return userID, nil
}

// PointsBalance returns the cached balance projection for a user.
func PointsBalance(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.BalanceSummary(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// PointsHistory returns a cursor-paginated slice of a user's ledger, newest
// first.
func PointsHistory(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.History(r.Context(), points.HistoryParams{
			UserID: userID,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries := make([]transactionResponse, 0, len(result.Entries))
		for i := range result.Entries {
			entries = append(entries, toTransactionResponse(&result.Entries[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"entries": entries,
			"cursor":  result.Cursor,
		})
	}
}

// PointsRedeem spends available points, draining the soonest-expiring
// credits first.
func PointsRedeem(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req redeemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := points.RedeemInput{UserID: userID, Amount: req.Amount}
		if trimmed := strings.TrimSpace(req.ReservationID); trimmed != "" {
			reservationID, err := uuid.Parse(trimmed)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation_id"))
				return
			}
			input.ReservationID = &reservationID
		}

		ctx := logg.WithUserID(r.Context(), userID.String())
		result, err := svc.Redeem(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PointsAdjust applies a manual operator correction to a user's ledger.
func PointsAdjust(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actorID, err := uuid.Parse(strings.TrimSpace(req.ActorID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor_id"))
			return
		}

		ctx := logg.WithUserID(r.Context(), userID.String())
		entry, err := svc.Adjust(ctx, points.AdjustInput{
			UserID:  userID,
			Amount:  req.Amount,
			Reason:  validators.SanitizeString(req.Reason, 500),
			ActorID: actorID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionResponse(entry))
	}
}

// PointsUnfreeze lifts a reconciliation freeze after an operator has
// corrected the account.
func PointsUnfreeze(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithUserID(r.Context(), userID.String())
		if err := svc.UnfreezeAccount(ctx, userID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "unfrozen"})
	}
}
