package services

import (
	"context"
	"testing"
	"time"

	"payment-api/internal/apperr"
	"payment-api/internal/database"
	"payment-api/internal/models"
)

func newAudioFixture(t *testing.T) (*AudioAccessService, *database.MembershipStore) {
	t.Helper()
	db := newTestDB(t)
	audio := database.NewAudioStore(db)
	memberships := database.NewMembershipStore(db)

	for _, track := range []models.AudioTrack{
		{AudioName: "rain", AudioDisplayName: "Rain", CyclePhase: "luteal", IsFree: true, DisplayOrder: 1},
		{AudioName: "waves", AudioDisplayName: "Waves", CyclePhase: "menstrual", DisplayOrder: 1},
		{AudioName: "forest", AudioDisplayName: "Forest", CyclePhase: "menstrual", DisplayOrder: 2},
	} {
		track := track
		if err := audio.Create(context.Background(), &track); err != nil {
			t.Fatal(err)
		}
	}
	return NewAudioAccessService(audio, NewMembershipService(memberships)), memberships
}

func TestAudioAccessForFreeUser(t *testing.T) {
	svc, _ := newAudioFixture(t)

	list, err := svc.AccessList(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if list.IsMember || len(list.Phases) != 2 {
		t.Fatalf("list = %+v", list)
	}
	if list.Phases[0].Phase != "menstrual" || list.Phases[0].DisplayName != "Menstrual phase" || len(list.Phases[0].Tracks) != 2 {
		t.Fatalf("first phase = %+v", list.Phases[0])
	}
	if list.Phases[0].Tracks[0].HasAccess {
		t.Error("member track open to free user")
	}
	if !list.Phases[1].Tracks[0].HasAccess {
		t.Error("free track closed")
	}

	access, err := svc.CheckAccess(context.Background(), "u1", "waves")
	if err != nil || access.HasAccess {
		t.Fatalf("waves = %+v, %v", access, err)
	}
	if _, err := svc.CheckAccess(context.Background(), "u1", "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing = %v", err)
	}
}

func TestAudioAccessForMember(t *testing.T) {
	svc, memberships := newAudioFixture(t)
	expires := time.Now().Add(24 * time.Hour)
	if err := memberships.Upsert(context.Background(), &models.Membership{
		UserID: "u1", MembershipType: "3_months", ExpiresAt: &expires, StartedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	access, err := svc.CheckAccess(context.Background(), "u1", "forest")
	if err != nil || !access.HasAccess {
		t.Fatalf("forest = %+v, %v", access, err)
	}
}
