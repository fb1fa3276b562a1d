package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwoolee/beautylink-backend/api/responses"
	"github.com/jwoolee/beautylink-backend/api/validators"
	"github.com/jwoolee/beautylink-backend/internal/referrals"
	"github.com/jwoolee/beautylink-backend/pkg/db/models"
	pkgerrors "github.com/jwoolee/beautylink-backend/pkg/errors"
	"github.com/jwoolee/beautylink-backend/pkg/logger"
)

type referralRegisterRequest struct {
	ReferrerID string `json:"referrer_id" validate:"required"`
	ReferredID string `json:"referred_id" validate:"required"`
	Influencer bool   `json:"influencer"`
}

type influencerRequest struct {
	Influencer bool `json:"influencer"`
}

type referralResponse struct {
	ID         uuid.UUID `json:"id"`
	ReferrerID uuid.UUID `json:"referrer_id"`
	ReferredID uuid.UUID `json:"referred_id"`
	Influencer bool      `json:"influencer"`
	CreatedAt  time.Time `json:"created_at"`
}

func toReferralResponse(referral *models.Referral) referralResponse {
	return referralResponse{
		ID:         referral.ID,
		ReferrerID: referral.ReferrerID,
		ReferredID: referral.ReferredID,
		Influencer: referral.Influencer,
		CreatedAt:  referral.CreatedAt,
	}
}

// ReferralRegister links a referred user to their referrer. A user can have
// at most one referrer, ever.
func ReferralRegister(svc referrals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req referralRegisterRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		referrerID, err := uuid.Parse(strings.TrimSpace(req.ReferrerID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid referrer_id"))
			return
		}
		referredID, err := uuid.Parse(strings.TrimSpace(req.ReferredID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid referred_id"))
			return
		}

		referral, err := svc.RegisterReferral(r.Context(), referrals.RegisterReferralInput{
			ReferrerID: referrerID,
			ReferredID: referredID,
			Influencer: req.Influencer,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toReferralResponse(referral))
	}
}

// ReferralList returns the users a referrer has brought in.
func ReferralList(svc referrals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		referrerID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListReferrals(r.Context(), referrerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]referralResponse, 0, len(rows))
		for i := range rows {
			out = append(out, toReferralResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// ReferralSetInfluencer flags or unflags a referrer's influencer status,
// which controls the cascade rate on future grants.
func ReferralSetInfluencer(svc referrals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		referrerID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req influencerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetInfluencer(r.Context(), referrerID, req.Influencer); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"influencer": req.Influencer})
	}
}
