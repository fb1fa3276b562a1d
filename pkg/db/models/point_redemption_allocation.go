package models

import (
	"time"

	"github.com/google/uuid"
)

// PointRedemptionAllocation is the audit trail of a redemption: one row per
// credit entry the redemption drew from, with the amount taken from it.
type PointRedemptionAllocation struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RedemptionID        uuid.UUID `gorm:"column:redemption_id;type:uuid;not null;index"`
	CreditTransactionID uuid.UUID `gorm:"column:credit_transaction_id;type:uuid;not null;index"`
	Amount              int64     `gorm:"column:amount;not null"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (PointRedemptionAllocation) TableName() string { return "point_redemption_allocations" }
