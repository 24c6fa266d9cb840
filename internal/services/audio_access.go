package services

import (
	"context"

	"payment-api/internal/apperr"
	"payment-api/internal/models"
)

var phaseNames = map[string]string{
	"menstrual":  "Menstrual phase",
	"follicular": "Follicular phase",
	"ovulation":  "Ovulation phase",
	"luteal":     "Luteal phase",
}

// phaseOrder fixes the display order of known phases.
var phaseOrder = []string{"menstrual", "follicular", "ovulation", "luteal"}

// AudioCatalog reads gated tracks.
type AudioCatalog interface {
	List(ctx context.Context) ([]models.AudioTrack, error)
	GetByName(ctx context.Context, name string) (*models.AudioTrack, error)
}

// TrackAccess is one track as seen by a user.
type TrackAccess struct {
	models.AudioTrack
	HasAccess bool `json:"has_access"`
}

// PhaseAccess groups the tracks of one cycle phase.
type PhaseAccess struct {
	Phase       string        `json:"phase"`
	DisplayName string        `json:"display_name"`
	Tracks      []TrackAccess `json:"tracks"`
}

// AudioAccess is the content catalogue with per-user access flags.
type AudioAccess struct {
	UserID   string        `json:"user_id"`
	IsMember bool          `json:"is_member"`
	Phases   []PhaseAccess `json:"phases"`
}

// AudioAccessService gates member-only audio
type AudioAccessService struct {
	catalog     AudioCatalog
	memberships *MembershipService
}

func NewAudioAccessService(catalog AudioCatalog, memberships *MembershipService) *AudioAccessService {
	return &AudioAccessService{catalog: catalog, memberships: memberships}
}

// AccessList returns every track grouped by phase with the caller's access.
func (s *AudioAccessService) AccessList(ctx context.Context, userID string) (*AudioAccess, error) {
	isMember, err := s.memberships.IsMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	tracks, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]TrackAccess)
	var extra []string
	for _, t := range tracks {
		if _, known := phaseNames[t.CyclePhase]; !known && len(grouped[t.CyclePhase]) == 0 {
			extra = append(extra, t.CyclePhase)
		}
		grouped[t.CyclePhase] = append(grouped[t.CyclePhase], TrackAccess{AudioTrack: t, HasAccess: t.IsFree || isMember})
	}

	result := &AudioAccess{UserID: userID, IsMember: isMember, Phases: []PhaseAccess{}}
	for _, phase := range append(append([]string{}, phaseOrder...), extra...) {
		items, ok := grouped[phase]
		if !ok {
			continue
		}
		name, ok := phaseNames[phase]
		if !ok {
			name = phase
		}
		result.Phases = append(result.Phases, PhaseAccess{Phase: phase, DisplayName: name, Tracks: items})
	}
	return result, nil
}

// CheckAccess reports whether the user may play the named track.
func (s *AudioAccessService) CheckAccess(ctx context.Context, userID, audioName string) (*TrackAccess, error) {
	track, err := s.catalog.GetByName(ctx, audioName)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, apperr.New(apperr.KindNotFound, "audio %s not found", audioName)
	}
	if track.IsFree {
		return &TrackAccess{AudioTrack: *track, HasAccess: true}, nil
	}
	isMember, err := s.memberships.IsMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TrackAccess{AudioTrack: *track, HasAccess: isMember}, nil
}
