package enums

import "fmt"

// PointTransactionKind maps to the point_transaction_kind_enum enum in Postgres.
type PointTransactionKind string

const (
	// PointKindEarnedService is the reward credited to the paying user when a
	// paid reservation completes.
	PointKindEarnedService PointTransactionKind = "earned_service"
	// PointKindEarnedReferral is the cascade credited to the referrer of the
	// paying user.
	PointKindEarnedReferral PointTransactionKind = "earned_referral"
	// PointKindInfluencerBonus is the cascade credited to an
	// influencer-flagged referrer at the boosted rate.
	PointKindInfluencerBonus PointTransactionKind = "influencer_bonus"
	// PointKindAdjusted is a manual administrative correction entry.
	PointKindAdjusted PointTransactionKind = "adjusted"
	// PointKindRedeemed is the debit entry created when available balance is
	// consumed.
	PointKindRedeemed PointTransactionKind = "redeemed"
	// PointKindReversed is the compensating entry that zeroes out a grant
	// after a payment cancellation.
	PointKindReversed PointTransactionKind = "reversed"
)

var validPointTransactionKinds = []PointTransactionKind{
	PointKindEarnedService,
	PointKindEarnedReferral,
	PointKindInfluencerBonus,
	PointKindAdjusted,
	PointKindRedeemed,
	PointKindReversed,
}

// IsValid reports whether the value matches the canonical kind enum.
func (k PointTransactionKind) IsValid() bool {
	for _, candidate := range validPointTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsCredit reports whether entries of this kind add points to an account.
func (k PointTransactionKind) IsCredit() bool {
	switch k {
	case PointKindEarnedService, PointKindEarnedReferral, PointKindInfluencerBonus:
		return true
	}
	return false
}

// IsCascade reports whether the kind is a referral-commission cascade.
func (k PointTransactionKind) IsCascade() bool {
	return k == PointKindEarnedReferral || k == PointKindInfluencerBonus
}

// ParsePointTransactionKind converts raw input into PointTransactionKind.
func ParsePointTransactionKind(value string) (PointTransactionKind, error) {
	for _, candidate := range validPointTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid point transaction kind %q", value)
}
