package referrals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jwoolee/beautylink-backend/pkg/db/models"
)

// Repository exposes referral persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, referral *models.Referral) error
	FindByReferredID(ctx context.Context, referredID uuid.UUID) (*models.Referral, error)
	ListByReferrerID(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error)
	SetInfluencer(ctx context.Context, referrerID uuid.UUID, influencer bool) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a referral repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, referral *models.Referral) error {
	return r.db.WithContext(ctx).Create(referral).Error
}

func (r *repository) FindByReferredID(ctx context.Context, referredID uuid.UUID) (*models.Referral, error) {
	var row models.Referral
	err := r.db.WithContext(ctx).Where("referred_id = ?", referredID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListByReferrerID(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error) {
	var rows []models.Referral
	err := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) SetInfluencer(ctx context.Context, referrerID uuid.UUID, influencer bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("referrer_id = ?", referrerID).
		Update("influencer", influencer)
	return res.RowsAffected, res.Error
}
