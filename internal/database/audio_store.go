package database

import (
	"context"
	"errors"

	"payment-api/internal/apperr"
	"payment-api/internal/models"

	"gorm.io/gorm"
)

// AudioStore reads the gated audio catalog
type AudioStore struct {
	db *gorm.DB
}

func NewAudioStore(db *gorm.DB) *AudioStore {
	return &AudioStore{db: db}
}

// List returns all tracks ordered by phase then display order.
func (s *AudioStore) List(ctx context.Context) ([]models.AudioTrack, error) {
	var tracks []models.AudioTrack
	if err := conn(ctx, s.db).Order("cycle_phase, display_order").Find(&tracks).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "failed to list audio tracks")
	}
	return tracks, nil
}

// GetByName returns a track, or nil when absent.
func (s *AudioStore) GetByName(ctx context.Context, name string) (*models.AudioTrack, error) {
	var track models.AudioTrack
	err := conn(ctx, s.db).Where("audio_name = ?", name).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindPersistence, err, "failed to load audio track %s", name)
	}
	return &track, nil
}

// Create inserts a catalog track.
func (s *AudioStore) Create(ctx context.Context, track *models.AudioTrack) error {
	if err := conn(ctx, s.db).Create(track).Error; err != nil {
		return apperr.Wrap(apperr.KindPersistence, err, "failed to create audio track %s", track.AudioName)
	}
	return nil
}
