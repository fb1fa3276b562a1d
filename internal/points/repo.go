package points

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jwoolee/beautylink-backend/pkg/db/models"
	"github.com/jwoolee/beautylink-backend/pkg/enums"
	"github.com/jwoolee/beautylink-backend/pkg/pagination"
)

// BalanceDelta describes an additive change to a user's balance projection.
type BalanceDelta struct {
	Available   int64
	Pending     int64
	TotalEarned int64
}

// LedgerTotals is the fold of a user's ledger, recomputed from the log.
type LedgerTotals struct {
	Available   int64
	Pending     int64
	TotalEarned int64
}

type historyQuery struct {
	userID uuid.UUID
	cursor *pagination.Cursor
	limit  int
}

// Repository manages persistence for the point ledger and its balance
// projection. Status transitions use conditional updates so concurrent
// writers cannot double-apply a transition; callers observe zero affected
// rows and decide whether that means "already done" or a conflict.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateEntries(ctx context.Context, entries []*models.PointTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PointTransaction, error)
	FindBySourcePayment(ctx context.Context, paymentID uuid.UUID) ([]models.PointTransaction, error)

	FindPendingDue(ctx context.Context, now time.Time, limit int) ([]models.PointTransaction, error)
	FindExpiredDue(ctx context.Context, now time.Time, limit int) ([]models.PointTransaction, error)
	MarkAvailable(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID, remaining int64, now time.Time) (bool, error)
	MarkReversed(ctx context.Context, id uuid.UUID, from enums.PointTransactionStatus, remaining int64) (bool, error)

	SelectRedeemable(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.PointTransaction, error)
	ConsumeCredit(ctx context.Context, id uuid.UUID, amount int64) (bool, error)
	InsertAllocations(ctx context.Context, allocations []*models.PointRedemptionAllocation) error
	AllocationsForRedemption(ctx context.Context, redemptionID uuid.UUID) ([]models.PointRedemptionAllocation, error)

	GetBalance(ctx context.Context, userID uuid.UUID) (*models.PointBalance, error)
	ApplyBalanceDelta(ctx context.Context, userID uuid.UUID, delta BalanceDelta) error
	DebitAvailable(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)
	FreezeBalance(ctx context.Context, userID uuid.UUID, at time.Time) (bool, error)
	UnfreezeBalance(ctx context.Context, userID uuid.UUID) (bool, error)
	ListBalances(ctx context.Context, afterUserID uuid.UUID, limit int) ([]models.PointBalance, error)

	LedgerTotals(ctx context.Context, userID uuid.UUID) (LedgerTotals, error)
	History(ctx context.Context, query historyQuery) ([]models.PointTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a point ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEntries(ctx context.Context, entries []*models.PointTransaction) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PointTransaction, error) {
	var row models.PointTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindBySourcePayment(ctx context.Context, paymentID uuid.UUID) ([]models.PointTransaction, error) {
	var rows []models.PointTransaction
	err := r.db.WithContext(ctx).
		Where("source_payment_id = ?", paymentID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindPendingDue(ctx context.Context, now time.Time, limit int) ([]models.PointTransaction, error) {
	var rows []models.PointTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND available_from <= ?", enums.PointStatusPending, now).
		Order("available_from ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindExpiredDue(ctx context.Context, now time.Time, limit int) ([]models.PointTransaction, error) {
	var rows []models.PointTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.PointStatusAvailable, now).
		Order("expires_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkAvailable(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("id = ? AND status = ?", id, enums.PointStatusPending).
		Updates(map[string]any{
			"status":     enums.PointStatusAvailable,
			"updated_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, remaining int64, now time.Time) (bool, error) {
	// Remaining is left untouched: an expired row keeps the forfeited amount
	// on record, and the fold only counts remaining for available rows.
	// The remaining guard rejects the transition when a redemption consumed
	// part of the credit after the sweep read it; the caller retries with the
	// fresh value on the next pass.
	res := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("id = ? AND status = ? AND remaining = ?", id, enums.PointStatusAvailable, remaining).
		Updates(map[string]any{
			"status":     enums.PointStatusExpired,
			"updated_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkReversed(ctx context.Context, id uuid.UUID, from enums.PointTransactionStatus, remaining int64) (bool, error) {
	// The remaining guard closes the window where a redemption partially
	// consumes the credit between the caller's snapshot and this update:
	// consumption drops remaining without changing status, so status alone
	// cannot detect it.
	res := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("id = ? AND status = ? AND remaining = ?", id, from, remaining).
		Updates(map[string]any{
			"status":     enums.PointStatusReversed,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) SelectRedeemable(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.PointTransaction, error) {
	var rows []models.PointTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND remaining > 0 AND expires_at > ?", userID, enums.PointStatusAvailable, now).
		Order("expires_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ConsumeCredit(ctx context.Context, id uuid.UUID, amount int64) (bool, error) {
	if amount <= 0 {
		return false, errors.New("consume amount must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("id = ? AND status = ? AND remaining >= ?", id, enums.PointStatusAvailable, amount).
		Updates(map[string]any{
			"remaining":  gorm.Expr("remaining - ?", amount),
			"status":     gorm.Expr("CASE WHEN remaining - ? = 0 THEN ? ELSE status END", amount, enums.PointStatusUsed),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) InsertAllocations(ctx context.Context, allocations []*models.PointRedemptionAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(allocations).Error
}

func (r *repository) AllocationsForRedemption(ctx context.Context, redemptionID uuid.UUID) ([]models.PointRedemptionAllocation, error) {
	var rows []models.PointRedemptionAllocation
	err := r.db.WithContext(ctx).
		Where("redemption_id = ?", redemptionID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.PointBalance, error) {
	var row models.PointBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) ApplyBalanceDelta(ctx context.Context, userID uuid.UUID, delta BalanceDelta) error {
	now := time.Now().UTC()
	row := models.PointBalance{
		UserID:      userID,
		Available:   delta.Available,
		Pending:     delta.Pending,
		TotalEarned: delta.TotalEarned,
		UpdatedAt:   now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"available":    gorm.Expr("point_balances.available + ?", delta.Available),
				"pending":      gorm.Expr("point_balances.pending + ?", delta.Pending),
				"total_earned": gorm.Expr("point_balances.total_earned + ?", delta.TotalEarned),
				"updated_at":   now,
			}),
		}).
		Create(&row).Error
}

func (r *repository) DebitAvailable(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	if amount <= 0 {
		return false, errors.New("debit amount must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.PointBalance{}).
		Where("user_id = ? AND frozen_at IS NULL AND available >= ?", userID, amount).
		Updates(map[string]any{
			"available":  gorm.Expr("available - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) FreezeBalance(ctx context.Context, userID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PointBalance{}).
		Where("user_id = ? AND frozen_at IS NULL", userID).
		Updates(map[string]any{
			"frozen_at":  at,
			"updated_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) UnfreezeBalance(ctx context.Context, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PointBalance{}).
		Where("user_id = ? AND frozen_at IS NOT NULL", userID).
		Updates(map[string]any{
			"frozen_at":  nil,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ListBalances(ctx context.Context, afterUserID uuid.UUID, limit int) ([]models.PointBalance, error) {
	query := r.db.WithContext(ctx).Model(&models.PointBalance{})
	if afterUserID != uuid.Nil {
		query = query.Where("user_id > ?", afterUserID)
	}
	var rows []models.PointBalance
	err := query.Order("user_id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) LedgerTotals(ctx context.Context, userID uuid.UUID) (LedgerTotals, error) {
	var totals LedgerTotals
	err := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Select(
			"COALESCE(SUM(CASE WHEN status = ? THEN remaining ELSE 0 END), 0) AS available,"+
				" COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS pending,"+
				" COALESCE(SUM(CASE WHEN amount > 0 AND status NOT IN (?, ?) THEN amount ELSE 0 END), 0) AS total_earned",
			enums.PointStatusAvailable, enums.PointStatusPending, enums.PointStatusPending, enums.PointStatusReversed,
		).
		Where("user_id = ?", userID).
		Scan(&totals).Error
	return totals, err
}

func (r *repository) History(ctx context.Context, query historyQuery) ([]models.PointTransaction, error) {
	q := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("user_id = ?", query.userID)

	if query.cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", query.cursor.CreatedAt, query.cursor.CreatedAt, query.cursor.ID)
	}

	q = q.Order("created_at DESC").Order("id DESC").Limit(query.limit)

	var rows []models.PointTransaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
