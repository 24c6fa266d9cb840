package database

import (
	"context"
	"errors"

	"payment-api/internal/apperr"
	"payment-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipStore persists one membership row per user
type MembershipStore struct {
	db *gorm.DB
}

// NewMembershipStore creates a new membership store
func NewMembershipStore(db *gorm.DB) *MembershipStore {
	return &MembershipStore{db: db}
}

// GetByUserID returns the user's membership, or nil when absent.
// Inside a PostgreSQL transaction the row is locked until commit.
func (s *MembershipStore) GetByUserID(ctx context.Context, userID string) (*models.Membership, error) {
	var membership models.Membership
	db := forUpdate(ctx, conn(ctx, s.db))
	err := db.Where("user_id = ?", userID).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindPersistence, err, "failed to load membership of user %s", userID)
	}
	return &membership, nil
}

// Upsert inserts or overwrites the membership keyed by user_id.
// Conflicting writes are last-writer-wins.
func (s *MembershipStore) Upsert(ctx context.Context, membership *models.Membership) error {
	err := conn(ctx, s.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"membership_type",
			"expires_at",
			"is_lifetime",
			"started_at",
			"last_subscription_order_id",
			"updated_at",
		}),
	}).Create(membership).Error
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, err, "failed to upsert membership of user %s", membership.UserID)
	}
	return nil
}
