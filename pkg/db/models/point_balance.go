package models

import (
	"time"

	"github.com/google/uuid"
)

// PointBalance is a derived summary of a user's ledger. It is a cache of the
// fold over point_transactions, never an authoritative source: the reconcile
// job recomputes it from the log and freezes the account when the two
// disagree.
type PointBalance struct {
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Available   int64     `gorm:"column:available;not null;default:0"`
	Pending     int64     `gorm:"column:pending;not null;default:0"`
	TotalEarned int64     `gorm:"column:total_earned;not null;default:0"`

	// FrozenAt, when set, halts automated writes (grants, sweeps,
	// redemptions) for the account until an operator clears it.
	FrozenAt *time.Time `gorm:"column:frozen_at"`

	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PointBalance) TableName() string { return "point_balances" }

func (b *PointBalance) Frozen() bool { return b != nil && b.FrozenAt != nil }
