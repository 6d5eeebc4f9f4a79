package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pawfound/sighting-wizard/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *SQLiteStore, email string) *model.User {
	t.Helper()
	u := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      "Test User",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser(t, s, "ana@example.com")

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
	require.False(t, got.Banned)

	byEmail, err := s.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, sql.ErrNoRows)

	got.Name = "Ana"
	require.NoError(t, s.UpdateUser(ctx, got))
	updated, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Ana", updated.Name)

	require.NoError(t, s.BanUser(ctx, u.ID))
	banned, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, banned.Banned)

	// Duplicate emails are rejected by the unique constraint.
	dup := &model.User{ID: uuid.New().String(), Email: "ana@example.com", CreatedAt: time.Now()}
	require.Error(t, s.CreateUser(ctx, dup))
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "ana@example.com")

	live := &model.Session{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	expired := &model.Session{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, live))
	require.NoError(t, s.CreateSession(ctx, expired))

	got, err := s.GetSession(ctx, live.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)

	require.NoError(t, s.DeleteExpiredSessions(ctx))
	_, err = s.GetSession(ctx, expired.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
	_, err = s.GetSession(ctx, live.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, live.ID))
	_, err = s.GetSession(ctx, live.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLoginCodeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := &model.LoginCode{
		Code:      "482913",
		Email:     "ana@example.com",
		ExpiresAt: time.Now().Add(10 * time.Minute),
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateLoginCode(ctx, code))

	got, err := s.GetLoginCode(ctx, "482913")
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", got.Email)
	require.False(t, got.Used)

	lc, err := s.ConsumeLoginCode(ctx, "482913", "ana@example.com")
	require.NoError(t, err)
	require.True(t, lc.Used)

	// A consumed code cannot be consumed twice.
	_, err = s.ConsumeLoginCode(ctx, "482913", "ana@example.com")
	require.ErrorIs(t, err, sql.ErrNoRows)

	_, err = s.GetLoginCode(ctx, "000000")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestConsumeLoginCodeIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLoginCode(ctx, &model.LoginCode{
		Code:      "771204",
		Email:     "ana@example.com",
		ExpiresAt: time.Now().Add(10 * time.Minute),
		CreatedAt: time.Now(),
	}))

	// The wrong email must not burn the code.
	_, err := s.ConsumeLoginCode(ctx, "771204", "eve@example.com")
	require.ErrorIs(t, err, sql.ErrNoRows)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeLoginCode(ctx, "771204", "ana@example.com"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}

func TestPetCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "ana@example.com")

	pet := &model.Pet{
		ID:        uuid.New().String(),
		OwnerID:   u.ID,
		Name:      "Rex",
		Species:   "dog",
		Breed:     "Labrador mix",
		Colors:    "yellow",
		Gender:    "male",
		Age:       "3",
		Size:      model.SizeLarge,
		Features:  "torn left ear",
		Lost:      true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreatePet(ctx, pet))

	got, err := s.GetPet(ctx, pet.ID)
	require.NoError(t, err)
	require.Equal(t, "Rex", got.Name)
	require.Equal(t, model.SizeLarge, got.Size)
	require.True(t, got.Lost)

	got.Lost = false
	got.Name = "Rexy"
	got.UpdatedAt = time.Now()
	require.NoError(t, s.UpdatePet(ctx, got))
	updated, err := s.GetPet(ctx, pet.ID)
	require.NoError(t, err)
	require.Equal(t, "Rexy", updated.Name)
	require.False(t, updated.Lost)

	pets, err := s.ListPetsByOwner(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, pets, 1)

	other := newTestUser(t, s, "ben@example.com")
	none, err := s.ListPetsByOwner(ctx, other.ID)
	require.NoError(t, err)
	require.Empty(t, none)

	require.NoError(t, s.DeletePet(ctx, pet.ID))
	_, err = s.GetPet(ctx, pet.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSightingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "ana@example.com")

	lastSeen := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	sg := &model.Sighting{
		ID:                uuid.New().String(),
		Species:           "dog",
		Breed:             "Labrador mix",
		Colors:            "yellow",
		Size:              model.SizeLarge,
		CollarDescription: "red collar",
		PhotoURL:          "https://photos.test/a.jpg",
		Note:              "friendly, near the park",
		LastSeenLocation:  "Echo Park, Los Angeles",
		LastSeenLat:       34.0781,
		LastSeenLong:      -118.2606,
		LastSeenTime:      lastSeen,
		ReporterID:        u.ID,
		ReporterName:      "Ana",
		ReporterPhone:     "+12125551234",
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, s.CreateSighting(ctx, sg))

	got, err := s.GetSighting(ctx, sg.ID)
	require.NoError(t, err)
	require.Equal(t, sg.Species, got.Species)
	require.Equal(t, sg.LastSeenLocation, got.LastSeenLocation)
	require.Equal(t, sg.LastSeenLat, got.LastSeenLat)
	require.True(t, got.LastSeenTime.Equal(lastSeen))
	require.Equal(t, u.ID, got.ReporterID)
	require.Empty(t, got.PetID)
}

func TestSightingAnonymousNullables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No reporter, no pet, no last-seen time.
	sg := &model.Sighting{
		ID:        uuid.New().String(),
		Species:   "cat",
		Colors:    "black",
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateSighting(ctx, sg))

	got, err := s.GetSighting(ctx, sg.ID)
	require.NoError(t, err)
	require.Empty(t, got.ReporterID)
	require.Empty(t, got.PetID)
	require.True(t, got.LastSeenTime.IsZero())
}

func TestSightingListsAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "ana@example.com")

	pet := &model.Pet{ID: uuid.New().String(), OwnerID: u.ID, Name: "Rex", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreatePet(ctx, pet))

	mkSighting := func(petID, reporterID string, age time.Duration) *model.Sighting {
		sg := &model.Sighting{
			ID:         uuid.New().String(),
			Species:    "dog",
			PetID:      petID,
			ReporterID: reporterID,
			CreatedAt:  time.Now().Add(-age),
		}
		require.NoError(t, s.CreateSighting(ctx, sg))
		return sg
	}

	newest := mkSighting(pet.ID, u.ID, 0)
	older := mkSighting(pet.ID, "", time.Hour)
	mkSighting("", "", 2*time.Hour)

	recent, err := s.ListRecentSightings(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, newest.ID, recent[0].ID)

	byPet, err := s.ListSightingsByPet(ctx, pet.ID)
	require.NoError(t, err)
	require.Len(t, byPet, 2)

	byReporter, err := s.ListSightingsByReporter(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, byReporter, 1)
	require.Equal(t, newest.ID, byReporter[0].ID)

	require.NoError(t, s.DeleteSighting(ctx, older.ID))
	byPet, err = s.ListSightingsByPet(ctx, pet.ID)
	require.NoError(t, err)
	require.Len(t, byPet, 1)
}

func TestOwnerUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "ana@example.com")

	_, err := s.GetOwner(ctx, u.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)

	owner := &model.Owner{
		UserID:      u.ID,
		Name:        "Ana",
		Phone:       "+12125551234",
		CountryCode: "US",
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, s.UpsertOwner(ctx, owner))

	got, err := s.GetOwner(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Ana", got.Name)

	owner.Phone = "+12125559999"
	require.NoError(t, s.UpsertOwner(ctx, owner))
	got, err = s.GetOwner(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "+12125559999", got.Phone)
}

func TestSightingContacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sg := &model.Sighting{ID: uuid.New().String(), Species: "dog", CreatedAt: time.Now()}
	require.NoError(t, s.CreateSighting(ctx, sg))

	c := &model.SightingContact{
		ID:          uuid.New().String(),
		SightingID:  sg.ID,
		Name:        "Ana",
		Phone:       "+12125551234",
		CountryCode: "US",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateSightingContact(ctx, c))

	contacts, err := s.ListContactsBySighting(ctx, sg.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, "+12125551234", contacts[0].Phone)
}

func TestPetClaims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")
	claimant := newTestUser(t, s, "claimant@example.com")

	pet := &model.Pet{ID: uuid.New().String(), OwnerID: claimant.ID, Name: "Rex", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreatePet(ctx, pet))
	sg := &model.Sighting{ID: uuid.New().String(), Species: "dog", ReporterID: owner.ID, CreatedAt: time.Now()}
	require.NoError(t, s.CreateSighting(ctx, sg))

	claim := &model.PetClaim{
		ID:         uuid.New().String(),
		SightingID: sg.ID,
		PetID:      pet.ID,
		ClaimantID: claimant.ID,
		Message:    "That's my Rex!",
		Status:     model.ClaimPending,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.CreatePetClaim(ctx, claim))

	got, err := s.GetPetClaim(ctx, claim.ID)
	require.NoError(t, err)
	require.Equal(t, model.ClaimPending, got.Status)
	require.Equal(t, pet.ID, got.PetID)

	require.NoError(t, s.UpdatePetClaimStatus(ctx, claim.ID, model.ClaimApproved))
	got, err = s.GetPetClaim(ctx, claim.ID)
	require.NoError(t, err)
	require.Equal(t, model.ClaimApproved, got.Status)

	bySighting, err := s.ListClaimsBySighting(ctx, sg.ID)
	require.NoError(t, err)
	require.Len(t, bySighting, 1)

	byClaimant, err := s.ListClaimsByClaimant(ctx, claimant.ID)
	require.NoError(t, err)
	require.Len(t, byClaimant, 1)

	none, err := s.ListClaimsByClaimant(ctx, owner.ID)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestConversationLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "ana@example.com")

	flagged := &model.ConversationLog{
		ID:           uuid.New().String(),
		UserID:       u.ID,
		Transcript:   `[{"speaker":"user","text":"..."}]`,
		OffenseCount: 3,
		Flagged:      true,
		CreatedAt:    time.Now(),
	}
	clean := &model.ConversationLog{
		ID:         uuid.New().String(),
		UserID:     u.ID,
		SightingID: "",
		Transcript: `[]`,
		CreatedAt:  time.Now().Add(-time.Minute),
	}
	anonymous := &model.ConversationLog{
		ID:         uuid.New().String(),
		Transcript: `[]`,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.CreateConversationLog(ctx, flagged))
	require.NoError(t, s.CreateConversationLog(ctx, clean))
	require.NoError(t, s.CreateConversationLog(ctx, anonymous))

	byUser, err := s.ListConversationLogsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, byUser, 2)

	flaggedLogs, err := s.ListFlaggedConversationLogs(ctx)
	require.NoError(t, err)
	require.Len(t, flaggedLogs, 1)
	require.Equal(t, flagged.ID, flaggedLogs[0].ID)
	require.Equal(t, 3, flaggedLogs[0].OffenseCount)
}
