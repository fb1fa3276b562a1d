package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwoolee/beautylink-backend/pkg/enums"
)

// PointTransaction is the immutable unit of the point ledger. Amount, kind,
// user and source references never change after creation; only status,
// remaining and the timing columns move, and only through the transitions the
// sweeper, allocator and reversal paths define.
//
// The unique index on (source_payment_id, kind, user_id) is the idempotency
// key: a retried payment event that tries to re-insert the same effect hits
// the constraint and is treated as already applied.
type PointTransaction struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:ux_point_transactions_source_effect,priority:3"`
	Amount int64     `gorm:"column:amount;not null"`
	// Remaining tracks the unconsumed portion of a credit entry. Debit and
	// reversal entries carry zero.
	Remaining int64                        `gorm:"column:remaining;not null;default:0"`
	Kind      enums.PointTransactionKind   `gorm:"column:kind;type:point_transaction_kind_enum;not null;uniqueIndex:ux_point_transactions_source_effect,priority:2"`
	Status    enums.PointTransactionStatus `gorm:"column:status;type:point_transaction_status_enum;not null"`

	AvailableFrom *time.Time `gorm:"column:available_from"`
	ExpiresAt     *time.Time `gorm:"column:expires_at"`

	SourcePaymentID     *uuid.UUID `gorm:"column:source_payment_id;type:uuid;uniqueIndex:ux_point_transactions_source_effect,priority:1"`
	SourceReservationID *uuid.UUID `gorm:"column:source_reservation_id;type:uuid"`

	// ReferredUserID is set on cascade entries only: the user whose paid
	// reservation generated the referrer's commission.
	ReferredUserID *uuid.UUID `gorm:"column:referred_user_id;type:uuid"`

	// ReversesTransactionID links a reversed-kind entry to the grant it
	// compensates. History is never edited; reversals are new rows.
	ReversesTransactionID *uuid.UUID `gorm:"column:reverses_transaction_id;type:uuid"`

	// Reason is free-form context for adjusted-kind entries.
	Reason *string `gorm:"column:reason;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PointTransaction) TableName() string { return "point_transactions" }
