package points

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwoolee/beautylink-backend/pkg/db/models"
	"github.com/jwoolee/beautylink-backend/pkg/enums"
)

// Rates carries the reward ratios applied when a payment completes.
type Rates struct {
	ServiceReward      decimal.Decimal
	Referral           decimal.Decimal
	InfluencerReferral decimal.Decimal
}

// Schedule carries the maturation and expiry windows stamped on new credits.
type Schedule struct {
	GracePeriod    time.Duration
	RewardValidity time.Duration
}

// GrantInput is everything needed to derive the ledger entries for one
// completed payment.
type GrantInput struct {
	UserID        uuid.UUID
	PaidAmount    int64
	PaymentID     uuid.UUID
	ReservationID *uuid.UUID
	Referral      *models.Referral
	Now           time.Time
}

// ComputeReward multiplies amount by rate and rounds half away from zero to
// the nearest whole point.
func ComputeReward(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// BuildGrantEntries derives the pending credit entries a completed payment
// produces: the customer's service reward plus, when the customer was
// referred, a one-level commission for the referrer. The commission is
// computed from the service reward, not the paid amount, so both rounds
// happen on already-rounded integers. Zero-point rewards yield no rows.
func BuildGrantEntries(input GrantInput, rates Rates, schedule Schedule) []*models.PointTransaction {
	now := input.Now.UTC()
	availableFrom := now.Add(schedule.GracePeriod)
	expiresAt := availableFrom.Add(schedule.RewardValidity)
	paymentID := input.PaymentID

	var entries []*models.PointTransaction

	reward := ComputeReward(input.PaidAmount, rates.ServiceReward)
	if reward > 0 {
		entries = append(entries, &models.PointTransaction{
			UserID:              input.UserID,
			Amount:              reward,
			Remaining:           reward,
			Kind:                enums.PointKindEarnedService,
			Status:              enums.PointStatusPending,
			AvailableFrom:       &availableFrom,
			ExpiresAt:           &expiresAt,
			SourcePaymentID:     &paymentID,
			SourceReservationID: input.ReservationID,
		})
	}

	if input.Referral == nil || reward <= 0 {
		return entries
	}

	cascadeKind := enums.PointKindEarnedReferral
	cascadeRate := rates.Referral
	if input.Referral.Influencer {
		cascadeKind = enums.PointKindInfluencerBonus
		cascadeRate = rates.InfluencerReferral
	}

	commission := ComputeReward(reward, cascadeRate)
	if commission <= 0 {
		return entries
	}

	referredUserID := input.UserID
	entries = append(entries, &models.PointTransaction{
		UserID:              input.Referral.ReferrerID,
		Amount:              commission,
		Remaining:           commission,
		Kind:                cascadeKind,
		Status:              enums.PointStatusPending,
		AvailableFrom:       &availableFrom,
		ExpiresAt:           &expiresAt,
		SourcePaymentID:     &paymentID,
		SourceReservationID: input.ReservationID,
		ReferredUserID:      &referredUserID,
	})

	return entries
}
