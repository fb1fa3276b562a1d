package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePointTransaction OutboxAggregateType = "point_transaction"
	AggregatePointAccount     OutboxAggregateType = "point_account"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePointTransaction,
	AggregatePointAccount,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum enum in Postgres.
type OutboxEventType string

const (
	EventPointsGranted  OutboxEventType = "points_granted"
	EventPointsMatured  OutboxEventType = "points_matured"
	EventPointsExpired  OutboxEventType = "points_expired"
	EventPointsRedeemed OutboxEventType = "points_redeemed"
	EventPointsReversed OutboxEventType = "points_reversed"
	EventPointsAdjusted OutboxEventType = "points_adjusted"
	EventAccountFrozen  OutboxEventType = "point_account_frozen"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPointsGranted,
	EventPointsMatured,
	EventPointsExpired,
	EventPointsRedeemed,
	EventPointsReversed,
	EventPointsAdjusted,
	EventAccountFrozen,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxDLQErrorReason maps to the outbox_dlq_error_reason_enum enum in Postgres.
type OutboxDLQErrorReason string

const (
	DLQReasonMaxAttempts   OutboxDLQErrorReason = "max_attempts_exceeded"
	DLQReasonDecodeFailed  OutboxDLQErrorReason = "decode_failed"
	DLQReasonPublishFailed OutboxDLQErrorReason = "publish_failed"
)

var validDLQErrorReasons = []OutboxDLQErrorReason{
	DLQReasonMaxAttempts,
	DLQReasonDecodeFailed,
	DLQReasonPublishFailed,
}

// IsValid reports whether the value matches the canonical DLQ reason enum.
func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
