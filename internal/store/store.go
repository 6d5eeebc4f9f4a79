package store

import (
	"context"

	"github.com/pawfound/sighting-wizard/internal/model"
)

// Store defines the persistence interface for the sighting service.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	BanUser(ctx context.Context, id string) error

	// Sessions
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) error

	// Login codes
	CreateLoginCode(ctx context.Context, code *model.LoginCode) error
	GetLoginCode(ctx context.Context, code string) (*model.LoginCode, error)
	ConsumeLoginCode(ctx context.Context, code, email string) (*model.LoginCode, error)

	// Pets
	CreatePet(ctx context.Context, pet *model.Pet) error
	GetPet(ctx context.Context, id string) (*model.Pet, error)
	UpdatePet(ctx context.Context, pet *model.Pet) error
	DeletePet(ctx context.Context, id string) error
	ListPetsByOwner(ctx context.Context, ownerID string) ([]*model.Pet, error)

	// Sightings
	CreateSighting(ctx context.Context, s *model.Sighting) error
	GetSighting(ctx context.Context, id string) (*model.Sighting, error)
	ListRecentSightings(ctx context.Context, limit int) ([]*model.Sighting, error)
	ListSightingsByPet(ctx context.Context, petID string) ([]*model.Sighting, error)
	ListSightingsByReporter(ctx context.Context, reporterID string) ([]*model.Sighting, error)
	DeleteSighting(ctx context.Context, id string) error

	// Owner contact profiles
	UpsertOwner(ctx context.Context, owner *model.Owner) error
	GetOwner(ctx context.Context, userID string) (*model.Owner, error)

	// Sighting contacts
	CreateSightingContact(ctx context.Context, c *model.SightingContact) error
	ListContactsBySighting(ctx context.Context, sightingID string) ([]*model.SightingContact, error)

	// Pet claims
	CreatePetClaim(ctx context.Context, claim *model.PetClaim) error
	GetPetClaim(ctx context.Context, id string) (*model.PetClaim, error)
	UpdatePetClaimStatus(ctx context.Context, id string, status model.ClaimStatus) error
	ListClaimsBySighting(ctx context.Context, sightingID string) ([]*model.PetClaim, error)
	ListClaimsByClaimant(ctx context.Context, claimantID string) ([]*model.PetClaim, error)

	// Conversation logs
	CreateConversationLog(ctx context.Context, l *model.ConversationLog) error
	ListConversationLogsByUser(ctx context.Context, userID string) ([]*model.ConversationLog, error)
	ListFlaggedConversationLogs(ctx context.Context) ([]*model.ConversationLog, error)
}
