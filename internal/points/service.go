package points

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jwoolee/beautylink-backend/pkg/db"
	"github.com/jwoolee/beautylink-backend/pkg/db/models"
	"github.com/jwoolee/beautylink-backend/pkg/enums"
	pkgerrors "github.com/jwoolee/beautylink-backend/pkg/errors"
	"github.com/jwoolee/beautylink-backend/pkg/logger"
	"github.com/jwoolee/beautylink-backend/pkg/outbox"
	"github.com/jwoolee/beautylink-backend/pkg/outbox/payloads"
	"github.com/jwoolee/beautylink-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type referralLookup interface {
	ReferrerOf(ctx context.Context, referredID uuid.UUID) (*models.Referral, error)
}

type repoFactory func(tx *gorm.DB) Repository

// Service exposes the point ledger operations: payment-driven grants with
// referral cascades, redemption, reversal, manual adjustment, the
// maturation/expiry sweeps, and balance reconciliation.
type Service interface {
	GrantFromPayment(ctx context.Context, input GrantFromPaymentInput) (*GrantResult, error)
	ReverseFromPayment(ctx context.Context, input ReverseInput) (*ReverseResult, error)
	Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error)
	Adjust(ctx context.Context, input AdjustInput) (*models.PointTransaction, error)
	BalanceSummary(ctx context.Context, userID uuid.UUID) (*BalanceSummary, error)
	History(ctx context.Context, params HistoryParams) (*HistoryResult, error)
	MatureDue(ctx context.Context, now time.Time, batchSize int) (SweepResult, error)
	ExpireDue(ctx context.Context, now time.Time, batchSize int) (SweepResult, error)
	ReconcileBalances(ctx context.Context, batchSize int) (ReconcileResult, error)
	UnfreezeAccount(ctx context.Context, userID uuid.UUID) error
}

// ServiceParams configure the point ledger service.
type ServiceParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repo        Repository
	Referrals   referralLookup
	Outbox      outboxEmitter
	Rates       Rates
	Schedule    Schedule
	RepoFactory repoFactory
}

// GrantFromPaymentInput is the completed-payment fact the booking system delivers.
type GrantFromPaymentInput struct {
	PaymentID     uuid.UUID
	ReservationID *uuid.UUID
	UserID        uuid.UUID
	PaidAmount    int64
}

// GrantResult reports the ledger entries a payment produced. AlreadyApplied is
// set when a retried delivery found its effects recorded.
type GrantResult struct {
	Entries        []*models.PointTransaction
	AlreadyApplied bool
}

// ReverseInput identifies the payment whose grants should be compensated.
type ReverseInput struct {
	PaymentID uuid.UUID
	Reason    string
}

// ReverseResult reports the compensating entries written.
type ReverseResult struct {
	Reversals      []*models.PointTransaction
	AlreadyApplied bool
}

// RedeemInput spends points from a user's available balance.
type RedeemInput struct {
	UserID        uuid.UUID
	Amount        int64
	ReservationID *uuid.UUID
}

// RedeemResult reports the debit entry and which credits funded it.
type RedeemResult struct {
	RedemptionID uuid.UUID
	Amount       int64
	Allocations  []*models.PointRedemptionAllocation
}

// AdjustInput is a manual operator correction.
type AdjustInput struct {
	UserID  uuid.UUID
	Amount  int64
	Reason  string
	ActorID uuid.UUID
}

// BalanceSummary is the cached projection of a user's ledger.
type BalanceSummary struct {
	UserID      uuid.UUID `json:"user_id"`
	Available   int64     `json:"available"`
	Pending     int64     `json:"pending"`
	TotalEarned int64     `json:"total_earned"`
	Frozen      bool      `json:"frozen"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HistoryParams select a page of a user's ledger, newest first.
type HistoryParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// HistoryResult is one page of ledger entries plus the follow-up cursor.
type HistoryResult struct {
	Entries []models.PointTransaction
	Cursor  string
}

// SweepResult counts what one sweeper pass transitioned.
type SweepResult struct {
	Processed int
	Skipped   int
}

// ReconcileResult counts accounts checked and frozen by one reconcile pass.
type ReconcileResult struct {
	Checked int
	Frozen  int
}

type service struct {
	logg        *logger.Logger
	db          txRunner
	repo        Repository
	referrals   referralLookup
	outbox      outboxEmitter
	rates       Rates
	schedule    Schedule
	repoFactory repoFactory
	now         func() time.Time
}

// NewService builds the point ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("points repository required")
	}
	if params.Referrals == nil {
		return nil, fmt.Errorf("referral lookup required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Rates.ServiceReward.IsNegative() || params.Rates.Referral.IsNegative() || params.Rates.InfluencerReferral.IsNegative() {
		return nil, fmt.Errorf("reward rates must be non-negative")
	}
	if params.Schedule.GracePeriod < 0 || params.Schedule.RewardValidity <= 0 {
		return nil, fmt.Errorf("invalid reward schedule")
	}
	factory := params.RepoFactory
	if factory == nil {
		factory = NewRepository
	}
	return &service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repo,
		referrals:   params.Referrals,
		outbox:      params.Outbox,
		rates:       params.Rates,
		schedule:    params.Schedule,
		repoFactory: factory,
		now:         time.Now,
	}, nil
}

func (s *service) GrantFromPayment(ctx context.Context, input GrantFromPaymentInput) (*GrantResult, error) {
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.PaidAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paid amount must be positive")
	}

	if err := s.requireUnfrozen(ctx, input.UserID); err != nil {
		return nil, err
	}

	referral, err := s.referrals.ReferrerOf(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if referral != nil {
		frozen, err := s.accountFrozen(ctx, referral.ReferrerID)
		if err != nil {
			return nil, err
		}
		if frozen {
			logCtx := s.logg.WithUserID(ctx, referral.ReferrerID.String())
			s.logg.Warn(logCtx, "referrer account frozen; skipping cascade")
			referral = nil
		}
	}

	now := s.now().UTC()
	entries := BuildGrantEntries(GrantInput{
		UserID:        input.UserID,
		PaidAmount:    input.PaidAmount,
		PaymentID:     input.PaymentID,
		ReservationID: input.ReservationID,
		Referral:      referral,
		Now:           now,
	}, s.rates, s.schedule)

	if len(entries) == 0 {
		return &GrantResult{}, nil
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repoFactory(tx)
		if err := txRepo.CreateEntries(ctx, entries); err != nil {
			return err
		}
		for _, entry := range entries {
			delta := BalanceDelta{Pending: entry.Amount}
			if err := txRepo.ApplyBalanceDelta(ctx, entry.UserID, delta); err != nil {
				return err
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventPointsGranted,
				AggregateType: enums.AggregatePointTransaction,
				AggregateID:   entry.ID,
				Version:       1,
				OccurredAt:    now,
				Data: payloads.PointsGrantedEvent{
					TransactionID:   entry.ID,
					UserID:          entry.UserID,
					Kind:            entry.Kind,
					Amount:          entry.Amount,
					SourcePaymentID: input.PaymentID,
					AvailableFrom:   *entry.AvailableFrom,
					ExpiresAt:       *entry.ExpiresAt,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			logCtx := s.logg.WithPaymentID(ctx, input.PaymentID.String())
			s.logg.Info(logCtx, "grant already applied for payment")
			return &GrantResult{AlreadyApplied: true}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record grant")
	}

	return &GrantResult{Entries: entries}, nil
}

func (s *service) ReverseFromPayment(ctx context.Context, input ReverseInput) (*ReverseResult, error) {
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	rows, err := s.repo.FindBySourcePayment(ctx, input.PaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment entries")
	}

	var credits []models.PointTransaction
	for _, row := range rows {
		if row.Kind.IsCredit() {
			credits = append(credits, row)
		}
	}
	if len(credits) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no grant recorded for payment")
	}

	var reversible []models.PointTransaction
	alreadyReversed := 0
	for _, credit := range credits {
		switch credit.Status {
		case enums.PointStatusReversed:
			alreadyReversed++
		case enums.PointStatusExpired:
			// Lapsed credits no longer carry balance; nothing to compensate.
		case enums.PointStatusUsed:
			return nil, pkgerrors.New(pkgerrors.CodeReversalConflict, "points already consumed")
		case enums.PointStatusAvailable:
			if credit.Remaining < credit.Amount {
				return nil, pkgerrors.New(pkgerrors.CodeReversalConflict, "points partially consumed")
			}
			reversible = append(reversible, credit)
		case enums.PointStatusPending:
			reversible = append(reversible, credit)
		}
	}
	if alreadyReversed == len(credits) {
		return &ReverseResult{AlreadyApplied: true}, nil
	}
	if len(reversible) == 0 {
		return &ReverseResult{}, nil
	}

	now := s.now().UTC()
	reason := strings.TrimSpace(input.Reason)
	paymentID := input.PaymentID
	reversals := make([]*models.PointTransaction, 0, len(reversible))

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repoFactory(tx)
		for _, credit := range reversible {
			ok, err := txRepo.MarkReversed(ctx, credit.ID, credit.Status, credit.Remaining)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStoreConflict, "entry changed concurrently")
			}

			creditID := credit.ID
			reversal := &models.PointTransaction{
				UserID:                credit.UserID,
				Amount:                -credit.Amount,
				Kind:                  enums.PointKindReversed,
				Status:                enums.PointStatusReversed,
				SourcePaymentID:       &paymentID,
				SourceReservationID:   credit.SourceReservationID,
				ReversesTransactionID: &creditID,
			}
			if reason != "" {
				reversal.Reason = &reason
			}
			if err := txRepo.CreateEntries(ctx, []*models.PointTransaction{reversal}); err != nil {
				return err
			}
			reversals = append(reversals, reversal)

			// Pending credits never reached total_earned, so only matured
			// ones subtract from it.
			var delta BalanceDelta
			if credit.Status == enums.PointStatusPending {
				delta.Pending = -credit.Amount
			} else {
				delta.Available = -credit.Amount
				delta.TotalEarned = -credit.Amount
			}
			if err := txRepo.ApplyBalanceDelta(ctx, credit.UserID, delta); err != nil {
				return err
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventPointsReversed,
				AggregateType: enums.AggregatePointTransaction,
				AggregateID:   reversal.ID,
				Version:       1,
				OccurredAt:    now,
				Data: payloads.PointsReversedEvent{
					UserID:          credit.UserID,
					ReversalID:      reversal.ID,
					ReversedID:      credit.ID,
					Amount:          credit.Amount,
					SourcePaymentID: paymentID,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return &ReverseResult{AlreadyApplied: true}, nil
		}
		if pkgerrors.HasCode(err, pkgerrors.CodeStoreConflict) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reversal")
	}

	return &ReverseResult{Reversals: reversals}, nil
}

func (s *service) Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "redeem amount must be positive")
	}

	if err := s.requireUnfrozen(ctx, input.UserID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var result *RedeemResult

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repoFactory(tx)

		credits, err := txRepo.SelectRedeemable(ctx, input.UserID, now)
		if err != nil {
			return err
		}
		var total int64
		for _, credit := range credits {
			total += credit.Remaining
		}
		if total < input.Amount {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "available balance too low")
		}

		debit := &models.PointTransaction{
			UserID:              input.UserID,
			Amount:              -input.Amount,
			Kind:                enums.PointKindRedeemed,
			Status:              enums.PointStatusUsed,
			SourceReservationID: input.ReservationID,
		}
		if err := txRepo.CreateEntries(ctx, []*models.PointTransaction{debit}); err != nil {
			return err
		}

		remaining := input.Amount
		var allocations []*models.PointRedemptionAllocation
		var funded []uuid.UUID
		for _, credit := range credits {
			if remaining == 0 {
				break
			}
			take := credit.Remaining
			if take > remaining {
				take = remaining
			}
			ok, err := txRepo.ConsumeCredit(ctx, credit.ID, take)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStoreConflict, "credit changed concurrently")
			}
			allocations = append(allocations, &models.PointRedemptionAllocation{
				RedemptionID:        debit.ID,
				CreditTransactionID: credit.ID,
				Amount:              take,
			})
			funded = append(funded, credit.ID)
			remaining -= take
		}
		if err := txRepo.InsertAllocations(ctx, allocations); err != nil {
			return err
		}

		ok, err := txRepo.DebitAvailable(ctx, input.UserID, input.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStoreConflict, "balance changed concurrently")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventPointsRedeemed,
			AggregateType: enums.AggregatePointTransaction,
			AggregateID:   debit.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.PointsRedeemedEvent{
				RedemptionID:        debit.ID,
				UserID:              input.UserID,
				Amount:              input.Amount,
				SourceReservationID: input.ReservationID,
				CreditTransactions:  funded,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		result = &RedeemResult{
			RedemptionID: debit.ID,
			Amount:       input.Amount,
			Allocations:  allocations,
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record redemption")
	}

	return result, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.PointTransaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Amount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must be non-zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment reason is required")
	}

	now := s.now().UTC()
	var entry *models.PointTransaction

	if input.Amount > 0 {
		expiresAt := now.Add(s.schedule.RewardValidity)
		entry = &models.PointTransaction{
			UserID:    input.UserID,
			Amount:    input.Amount,
			Remaining: input.Amount,
			Kind:      enums.PointKindAdjusted,
			Status:    enums.PointStatusAvailable,
			ExpiresAt: &expiresAt,
			Reason:    &reason,
		}
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repoFactory(tx)
			if err := txRepo.CreateEntries(ctx, []*models.PointTransaction{entry}); err != nil {
				return err
			}
			delta := BalanceDelta{Available: input.Amount, TotalEarned: input.Amount}
			if err := txRepo.ApplyBalanceDelta(ctx, input.UserID, delta); err != nil {
				return err
			}
			return s.emitAdjusted(ctx, tx, entry, now)
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record adjustment")
		}
		return entry, nil
	}

	// Debit adjustments consume available credits the same way a redemption
	// does, so the ledger always explains where the points went.
	if err := s.requireUnfrozen(ctx, input.UserID); err != nil {
		return nil, err
	}
	debitAmount := -input.Amount
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repoFactory(tx)

		credits, err := txRepo.SelectRedeemable(ctx, input.UserID, now)
		if err != nil {
			return err
		}
		var total int64
		for _, credit := range credits {
			total += credit.Remaining
		}
		if total < debitAmount {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "available balance too low")
		}

		entry = &models.PointTransaction{
			UserID: input.UserID,
			Amount: input.Amount,
			Kind:   enums.PointKindAdjusted,
			Status: enums.PointStatusUsed,
			Reason: &reason,
		}
		if err := txRepo.CreateEntries(ctx, []*models.PointTransaction{entry}); err != nil {
			return err
		}

		remaining := debitAmount
		var allocations []*models.PointRedemptionAllocation
		for _, credit := range credits {
			if remaining == 0 {
				break
			}
			take := credit.Remaining
			if take > remaining {
				take = remaining
			}
			ok, err := txRepo.ConsumeCredit(ctx, credit.ID, take)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStoreConflict, "credit changed concurrently")
			}
			allocations = append(allocations, &models.PointRedemptionAllocation{
				RedemptionID:        entry.ID,
				CreditTransactionID: credit.ID,
				Amount:              take,
			})
			remaining -= take
		}
		if err := txRepo.InsertAllocations(ctx, allocations); err != nil {
			return err
		}

		ok, err := txRepo.DebitAvailable(ctx, input.UserID, debitAmount)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStoreConflict, "balance changed concurrently")
		}
		return s.emitAdjusted(ctx, tx, entry, now)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record adjustment")
	}
	return entry, nil
}

func (s *service) emitAdjusted(ctx context.Context, tx *gorm.DB, entry *models.PointTransaction, now time.Time) error {
	reason := ""
	if entry.Reason != nil {
		reason = *entry.Reason
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventPointsAdjusted,
		AggregateType: enums.AggregatePointTransaction,
		AggregateID:   entry.ID,
		Version:       1,
		OccurredAt:    now,
		Data: payloads.PointsAdjustedEvent{
			TransactionID: entry.ID,
			UserID:        entry.UserID,
			Amount:        entry.Amount,
			Reason:        reason,
		},
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) BalanceSummary(ctx context.Context, userID uuid.UUID) (*BalanceSummary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup balance")
	}
	if balance == nil {
		return &BalanceSummary{UserID: userID}, nil
	}
	return &BalanceSummary{
		UserID:      balance.UserID,
		Available:   balance.Available,
		Pending:     balance.Pending,
		TotalEarned: balance.TotalEarned,
		Frozen:      balance.Frozen(),
		UpdatedAt:   balance.UpdatedAt,
	}, nil
}

func (s *service) History(ctx context.Context, params HistoryParams) (*HistoryResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	query := historyQuery{
		userID: params.UserID,
		limit:  pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.History(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list history")
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: rows[limit].CreatedAt,
			ID:        rows[limit].ID,
		})
		rows = rows[:limit]
	}

	return &HistoryResult{Entries: rows, Cursor: nextCursor}, nil
}

func (s *service) MatureDue(ctx context.Context, now time.Time, batchSize int) (SweepResult, error) {
	var result SweepResult
	rows, err := s.repo.FindPendingDue(ctx, now, batchSize)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query pending entries")
	}

	for _, row := range rows {
		frozen, err := s.accountFrozen(ctx, row.UserID)
		if err != nil {
			return result, err
		}
		if frozen {
			result.Skipped++
			continue
		}

		entry := row
		err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repoFactory(tx)
			ok, err := txRepo.MarkAvailable(ctx, entry.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				// Another worker already promoted the row.
				return nil
			}
			// Maturation is the moment a credit counts as earned.
			delta := BalanceDelta{Pending: -entry.Amount, Available: entry.Amount, TotalEarned: entry.Amount}
			if err := txRepo.ApplyBalanceDelta(ctx, entry.UserID, delta); err != nil {
				return err
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventPointsMatured,
				AggregateType: enums.AggregatePointTransaction,
				AggregateID:   entry.ID,
				Version:       1,
				OccurredAt:    now,
				Data: payloads.PointsMaturedEvent{
					TransactionID: entry.ID,
					UserID:        entry.UserID,
					Amount:        entry.Amount,
					MaturedAt:     now,
				},
			}
			return s.outbox.Emit(ctx, tx, event)
		})
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mature entry")
		}
		result.Processed++
	}
	return result, nil
}

func (s *service) ExpireDue(ctx context.Context, now time.Time, batchSize int) (SweepResult, error) {
	var result SweepResult
	rows, err := s.repo.FindExpiredDue(ctx, now, batchSize)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query expiring entries")
	}

	for _, row := range rows {
		frozen, err := s.accountFrozen(ctx, row.UserID)
		if err != nil {
			return result, err
		}
		if frozen {
			result.Skipped++
			continue
		}

		entry := row
		expired := false
		err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repoFactory(tx)
			ok, err := txRepo.MarkExpired(ctx, entry.ID, entry.Remaining, now)
			if err != nil {
				return err
			}
			if !ok {
				// Either another worker expired the row or a redemption
				// consumed part of it after the batch was read. The next
				// pass sees the fresh remaining.
				return nil
			}
			expired = true
			if entry.Remaining > 0 {
				delta := BalanceDelta{Available: -entry.Remaining}
				if err := txRepo.ApplyBalanceDelta(ctx, entry.UserID, delta); err != nil {
					return err
				}
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventPointsExpired,
				AggregateType: enums.AggregatePointTransaction,
				AggregateID:   entry.ID,
				Version:       1,
				OccurredAt:    now,
				Data: payloads.PointsExpiredEvent{
					TransactionID: entry.ID,
					UserID:        entry.UserID,
					Forfeited:     entry.Remaining,
					ExpiredAt:     now,
				},
			}
			return s.outbox.Emit(ctx, tx, event)
		})
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire entry")
		}
		if expired {
			result.Processed++
		}
	}
	return result, nil
}

func (s *service) ReconcileBalances(ctx context.Context, batchSize int) (ReconcileResult, error) {
	var result ReconcileResult
	after := uuid.Nil
	for {
		balances, err := s.repo.ListBalances(ctx, after, batchSize)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list balances")
		}
		if len(balances) == 0 {
			return result, nil
		}
		for _, balance := range balances {
			after = balance.UserID
			if balance.Frozen() {
				continue
			}
			result.Checked++

			totals, err := s.repo.LedgerTotals(ctx, balance.UserID)
			if err != nil {
				return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fold ledger")
			}
			if totals.Available == balance.Available &&
				totals.Pending == balance.Pending &&
				totals.TotalEarned == balance.TotalEarned {
				continue
			}

			now := s.now().UTC()
			userID := balance.UserID
			cached := balance
			err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
				txRepo := s.repoFactory(tx)
				ok, err := txRepo.FreezeBalance(ctx, userID, now)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				event := outbox.DomainEvent{
					EventType:     enums.EventAccountFrozen,
					AggregateType: enums.AggregatePointAccount,
					AggregateID:   userID,
					Version:       1,
					OccurredAt:    now,
					Data: payloads.PointAccountFrozenEvent{
						UserID:            userID,
						ExpectedAvailable: totals.Available,
						CachedAvailable:   cached.Available,
						ExpectedPending:   totals.Pending,
						CachedPending:     cached.Pending,
						FrozenAt:          now,
					},
				}
				return s.outbox.Emit(ctx, tx, event)
			})
			if err != nil {
				return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freeze account")
			}
			logCtx := s.logg.WithUserID(ctx, userID.String())
			s.logg.Error(logCtx, "balance drift detected; account frozen", pkgerrors.New(pkgerrors.CodeInvariantViolation, "balance projection drifted from ledger"))
			result.Frozen++
		}
		if len(balances) < batchSize {
			return result, nil
		}
	}
}

func (s *service) UnfreezeAccount(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	ok, err := s.repo.UnfreezeBalance(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unfreeze account")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account is not frozen")
	}
	return nil
}

func (s *service) requireUnfrozen(ctx context.Context, userID uuid.UUID) error {
	frozen, err := s.accountFrozen(ctx, userID)
	if err != nil {
		return err
	}
	if frozen {
		return pkgerrors.New(pkgerrors.CodeAccountFrozen, "account is frozen pending review")
	}
	return nil
}

func (s *service) accountFrozen(ctx context.Context, userID uuid.UUID) (bool, error) {
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup balance")
	}
	return balance.Frozen(), nil
}
