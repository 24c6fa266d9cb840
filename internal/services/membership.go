package services

import (
	"context"
	"math"
	"time"

	"payment-api/internal/apperr"
	"payment-api/internal/models"
)

// ApplySubscriptionPayment computes the membership that results from paying
// order on top of current. current may be nil. It performs no I/O.
//
// The returned record has a zero primary key and is meant to be written with
// an upsert keyed on user_id.
func ApplySubscriptionPayment(order *models.Order, current *models.Membership, now time.Time) (*models.Membership, error) {
	if order == nil || !order.IsSubscription() {
		return nil, apperr.New(apperr.KindValidation, "order is not a subscription order")
	}
	tier := order.Tier()
	if tier == "" {
		return nil, apperr.New(apperr.KindConfig, "subscription order %s has no tier", order.OutTradeNo)
	}

	next := &models.Membership{
		UserID:                  order.UserID,
		LastSubscriptionOrderID: order.OutTradeNo,
	}

	if tier == models.MembershipLifetime {
		next.MembershipType = models.MembershipLifetime
		next.IsLifetime = true
		next.ExpiresAt = nil
		next.StartedAt = now
		if current.ActiveAt(now) {
			next.StartedAt = current.StartedAt
		}
		return next, nil
	}

	// Lifetime members keep their status when buying a time-limited tier.
	if current != nil && current.IsLifetime {
		next.MembershipType = current.MembershipType
		next.IsLifetime = true
		next.ExpiresAt = nil
		next.StartedAt = current.StartedAt
		return next, nil
	}

	if order.SubscriptionDurationDays == nil || *order.SubscriptionDurationDays <= 0 {
		return nil, apperr.New(apperr.KindConfig, "subscription order %s (tier %s) has no duration", order.OutTradeNo, tier)
	}
	duration := time.Duration(*order.SubscriptionDurationDays) * 24 * time.Hour

	base := now
	if current != nil && current.ExpiresAt != nil && current.ExpiresAt.After(now) {
		base = *current.ExpiresAt
	}
	expires := base.Add(duration)

	next.MembershipType = tier
	next.IsLifetime = false
	next.ExpiresAt = &expires
	next.StartedAt = now
	if current != nil && !current.StartedAt.IsZero() {
		next.StartedAt = current.StartedAt
	}
	return next, nil
}

// MembershipReader loads a user's membership record.
type MembershipReader interface {
	GetByUserID(ctx context.Context, userID string) (*models.Membership, error)
}

// MembershipStatus is the client view of a membership.
type MembershipStatus struct {
	UserID              string     `json:"user_id"`
	IsMember            bool       `json:"is_member"`
	MembershipType      string     `json:"membership_type"`
	MembershipExpiresAt *time.Time `json:"membership_expires_at"`
	DaysRemaining       *int       `json:"days_remaining"`
	IsLifetimeMember    bool       `json:"is_lifetime_member"`
}

// MembershipService answers membership queries
type MembershipService struct {
	store MembershipReader
	now   func() time.Time
}

// NewMembershipService creates a new membership service
func NewMembershipService(store MembershipReader) *MembershipService {
	return &MembershipService{store: store, now: time.Now}
}

// Status reports the user's current membership. Users without a record are free.
func (s *MembershipService) Status(ctx context.Context, userID string) (*MembershipStatus, error) {
	m, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return statusOf(userID, m, s.now()), nil
}

// IsMember reports whether the user currently has access to member content.
func (s *MembershipService) IsMember(ctx context.Context, userID string) (bool, error) {
	m, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	return m.ActiveAt(s.now()), nil
}

func statusOf(userID string, m *models.Membership, now time.Time) *MembershipStatus {
	if m == nil {
		return &MembershipStatus{UserID: userID, MembershipType: models.MembershipFree}
	}

	status := &MembershipStatus{
		UserID:              userID,
		IsMember:            m.ActiveAt(now),
		MembershipType:      m.MembershipType,
		MembershipExpiresAt: m.ExpiresAt,
		IsLifetimeMember:    m.IsLifetime,
	}
	if !m.IsLifetime && m.ExpiresAt != nil {
		remaining := 0
		if m.ExpiresAt.After(now) {
			remaining = int(math.Ceil(m.ExpiresAt.Sub(now).Hours() / 24))
		}
		status.DaysRemaining = &remaining
	}
	return status
}
