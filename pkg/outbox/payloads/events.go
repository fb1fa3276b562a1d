package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwoolee/beautylink-backend/pkg/enums"
)

// PointsGrantedEvent is emitted when a completed payment credits points. The
// referral cascade, when present, rides on the same event.
type PointsGrantedEvent struct {
	TransactionID   uuid.UUID                  `json:"transaction_id"`
	UserID          uuid.UUID                  `json:"user_id"`
	Kind            enums.PointTransactionKind `json:"kind"`
	Amount          int64                      `json:"amount"`
	SourcePaymentID uuid.UUID                  `json:"source_payment_id"`
	AvailableFrom   time.Time                  `json:"available_from"`
	ExpiresAt       time.Time                  `json:"expires_at"`
}

// PointsMaturedEvent reports pending credits the sweeper promoted to available.
type PointsMaturedEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Amount        int64     `json:"amount"`
	MaturedAt     time.Time `json:"matured_at"`
}

// PointsExpiredEvent reports credits that lapsed before being spent.
type PointsExpiredEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Forfeited     int64     `json:"forfeited"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// PointsRedeemedEvent is emitted when a redemption debit commits.
type PointsRedeemedEvent struct {
	RedemptionID        uuid.UUID   `json:"redemption_id"`
	UserID              uuid.UUID   `json:"user_id"`
	Amount              int64       `json:"amount"`
	SourceReservationID *uuid.UUID  `json:"source_reservation_id,omitempty"`
	CreditTransactions  []uuid.UUID `json:"credit_transactions"`
}

// PointsReversedEvent reports compensating entries written for a refunded payment.
type PointsReversedEvent struct {
	UserID          uuid.UUID `json:"user_id"`
	ReversalID      uuid.UUID `json:"reversal_id"`
	ReversedID      uuid.UUID `json:"reversed_id"`
	Amount          int64     `json:"amount"`
	SourcePaymentID uuid.UUID `json:"source_payment_id"`
}

// PointsAdjustedEvent reports a manual operator correction.
type PointsAdjustedEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
}

// PointAccountFrozenEvent is emitted when reconciliation detects drift between
// the balance projection and the ledger fold.
type PointAccountFrozenEvent struct {
	UserID            uuid.UUID `json:"user_id"`
	ExpectedAvailable int64     `json:"expected_available"`
	CachedAvailable   int64     `json:"cached_available"`
	ExpectedPending   int64     `json:"expected_pending"`
	CachedPending     int64     `json:"cached_pending"`
	FrozenAt          time.Time `json:"frozen_at"`
}
