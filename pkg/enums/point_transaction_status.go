package enums

import "fmt"

// PointTransactionStatus maps to the point_transaction_status_enum enum in
// Postgres. Lifecycle: pending -> available -> used|expired, with
// pending|available -> reversed before any consumption.
type PointTransactionStatus string

const (
	PointStatusPending   PointTransactionStatus = "pending"
	PointStatusAvailable PointTransactionStatus = "available"
	PointStatusUsed      PointTransactionStatus = "used"
	PointStatusExpired   PointTransactionStatus = "expired"
	PointStatusReversed  PointTransactionStatus = "reversed"
)

var validPointTransactionStatuses = []PointTransactionStatus{
	PointStatusPending,
	PointStatusAvailable,
	PointStatusUsed,
	PointStatusExpired,
	PointStatusReversed,
}

// IsValid reports whether the value matches the canonical status enum.
func (s PointTransactionStatus) IsValid() bool {
	for _, candidate := range validPointTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (s PointTransactionStatus) IsTerminal() bool {
	switch s {
	case PointStatusUsed, PointStatusExpired, PointStatusReversed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
func (s PointTransactionStatus) CanTransitionTo(next PointTransactionStatus) bool {
	switch s {
	case PointStatusPending:
		return next == PointStatusAvailable || next == PointStatusReversed
	case PointStatusAvailable:
		return next == PointStatusUsed || next == PointStatusExpired || next == PointStatusReversed
	}
	return false
}

// ParsePointTransactionStatus converts raw input into PointTransactionStatus.
func ParsePointTransactionStatus(value string) (PointTransactionStatus, error) {
	for _, candidate := range validPointTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid point transaction status %q", value)
}
