package models

import (
	"time"

	"github.com/google/uuid"
)

// Referral records that ReferrerID invited ReferredID. A user has at most one
// referrer, enforced by the unique index on referred_id, and the link never
// changes once written.
type Referral struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReferrerID uuid.UUID `gorm:"column:referrer_id;type:uuid;not null;index"`
	ReferredID uuid.UUID `gorm:"column:referred_id;type:uuid;not null;uniqueIndex:ux_referrals_referred_id"`

	// Influencer marks referrers enrolled in the influencer program; their
	// cascades pay at the influencer rate under the influencer_bonus kind.
	Influencer bool `gorm:"column:influencer;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Referral) TableName() string { return "referrals" }
