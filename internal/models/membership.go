package models

import (
	"time"
)

const (
	MembershipFree     = "free"
	MembershipLifetime = "lifetime"
)

// Membership 用户会员状态
// Exactly one row per user; written only by upsert on user_id.
type Membership struct {
	BaseModel

	UserID                  string     `json:"user_id" gorm:"size:64;uniqueIndex;not null"`
	MembershipType          string     `json:"membership_type" gorm:"size:32;not null"`
	ExpiresAt               *time.Time `json:"membership_expires_at"` // nil iff lifetime
	IsLifetime              bool       `json:"is_lifetime_member" gorm:"not null;default:false"`
	StartedAt               time.Time  `json:"membership_started_at"`
	LastSubscriptionOrderID string     `json:"last_subscription_order_id" gorm:"size:64"`
}

// TableName 指定表名
func (Membership) TableName() string {
	return "user_memberships"
}

// ActiveAt reports whether the membership grants access at t.
func (m *Membership) ActiveAt(t time.Time) bool {
	if m == nil {
		return false
	}
	if m.IsLifetime {
		return true
	}
	return m.ExpiresAt != nil && m.ExpiresAt.After(t)
}
