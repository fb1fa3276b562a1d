package referrals

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwoolee/beautylink-backend/pkg/db"
	"github.com/jwoolee/beautylink-backend/pkg/db/models"
	pkgerrors "github.com/jwoolee/beautylink-backend/pkg/errors"
)

// Service exposes referral registration and lookup semantics.
type Service interface {
	RegisterReferral(ctx context.Context, input RegisterReferralInput) (*models.Referral, error)
	ReferrerOf(ctx context.Context, referredID uuid.UUID) (*models.Referral, error)
	ListReferrals(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error)
	SetInfluencer(ctx context.Context, referrerID uuid.UUID, influencer bool) error
}

// RegisterReferralInput captures a new referrer/referred link.
type RegisterReferralInput struct {
	ReferrerID uuid.UUID
	ReferredID uuid.UUID
	Influencer bool
}

type service struct {
	repo Repository
}

// NewService wires a referral service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("referral repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RegisterReferral(ctx context.Context, input RegisterReferralInput) (*models.Referral, error) {
	if input.ReferrerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referrer id is required")
	}
	if input.ReferredID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referred id is required")
	}
	if input.ReferrerID == input.ReferredID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "users cannot refer themselves")
	}

	referral := &models.Referral{
		ReferrerID: input.ReferrerID,
		ReferredID: input.ReferredID,
		Influencer: input.Influencer,
	}
	if err := s.repo.Create(ctx, referral); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "user already has a referrer")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create referral")
	}
	return referral, nil
}

func (s *service) ReferrerOf(ctx context.Context, referredID uuid.UUID) (*models.Referral, error) {
	if referredID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referred id is required")
	}
	referral, err := s.repo.FindByReferredID(ctx, referredID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup referral")
	}
	return referral, nil
}

func (s *service) ListReferrals(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error) {
	if referrerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referrer id is required")
	}
	rows, err := s.repo.ListByReferrerID(ctx, referrerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list referrals")
	}
	return rows, nil
}

func (s *service) SetInfluencer(ctx context.Context, referrerID uuid.UUID, influencer bool) error {
	if referrerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "referrer id is required")
	}
	updated, err := s.repo.SetInfluencer(ctx, referrerID, influencer)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update influencer flag")
	}
	if updated == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "referrer has no referrals")
	}
	return nil
}
