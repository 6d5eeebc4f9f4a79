package model

import "time"

// ReportKind distinguishes a report about the reporter's own lost pet from a
// report about a stray they found.
type ReportKind string

const (
	KindLostOwn    ReportKind = "lost_own"
	KindFoundStray ReportKind = "found_stray"
)

// Valid reports whether k is a known report kind.
func (k ReportKind) Valid() bool {
	return k == KindLostOwn || k == KindFoundStray
}

// CollarPresence records whether the animal wore a collar, harness or tag.
type CollarPresence string

const (
	CollarYes  CollarPresence = "yes_collar"
	CollarNone CollarPresence = "no"
)

// Valid reports whether c is a known collar answer.
func (c CollarPresence) Valid() bool {
	return c == CollarYes || c == CollarNone
}

// Behavior classifies how the animal acted when sighted.
type Behavior string

const (
	BehaviorFriendly   Behavior = "friendly"
	BehaviorScared     Behavior = "scared"
	BehaviorAggressive Behavior = "aggressive"
	BehaviorInjured    Behavior = "injured"
)

// Valid reports whether b is a known behavior.
func (b Behavior) Valid() bool {
	switch b {
	case BehaviorFriendly, BehaviorScared, BehaviorAggressive, BehaviorInjured:
		return true
	}
	return false
}

// Size is the descriptive size bucket self-reported by the vision model or
// chosen by the user. Dogs under ~9kg are small, 9-23kg medium, over 23kg large.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Valid reports whether s is a known size bucket.
func (s Size) Valid() bool {
	return s == SizeSmall || s == SizeMedium || s == SizeLarge
}

// ClaimStatus tracks a pet claim through review.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// User represents a reporter or admin account.
type User struct {
	ID        string
	Email     string
	Name      string
	IsAdmin   bool
	Banned    bool
	CreatedAt time.Time
}

// Session represents an authenticated API session. The session ID doubles as
// the bearer token presented by the mobile client.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginCode represents a one-time email login code.
type LoginCode struct {
	Code      string
	Email     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Pet is a persistent pet profile owned by a user. Sightings may link to it.
type Pet struct {
	ID        string
	OwnerID   string
	Name      string
	Species   string
	Breed     string
	Colors    string
	Gender    string
	Age       string
	Size      Size
	Features  string
	PhotoURL  string
	Lost      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sighting is a single persisted observation of a pet at a place and time.
// Field names mirror the sightings table columns.
type Sighting struct {
	ID                string
	Name              string
	Species           string
	Breed             string
	Colors            string
	Gender            string
	Features          string
	Size              Size
	CollarDescription string
	PhotoURL          string
	Note              string
	LastSeenLocation  string
	LastSeenLat       float64
	LastSeenLong      float64
	LastSeenTime      time.Time
	PetID             string // nullable: linked pet profile
	LinkedSightingID  string // nullable: prior sighting in the same thread
	ReporterID        string // nullable: anonymous reports allowed
	ReporterName      string
	ReporterPhone     string
	CreatedAt         time.Time
}

// Owner is the contact profile attached to a user account.
type Owner struct {
	UserID      string
	Name        string
	Phone       string
	CountryCode string
	UpdatedAt   time.Time
}

// SightingContact is the reach-back contact stored alongside a sighting when
// the reporter is not a registered owner.
type SightingContact struct {
	ID          string
	SightingID  string
	Name        string
	Phone       string
	CountryCode string
	CreatedAt   time.Time
}

// PetClaim records a user asserting that a sighted animal is their pet.
type PetClaim struct {
	ID         string
	SightingID string
	PetID      string
	ClaimantID string
	Message    string
	Status     ClaimStatus
	CreatedAt  time.Time
}

// ConversationLog is a persisted chatbot transcript, written when a chat
// session ends (submitted, abandoned, or terminated for abuse).
type ConversationLog struct {
	ID           string
	UserID       string
	SightingID   string // set when the conversation led to a persisted sighting
	Transcript   string // JSON-encoded turn list
	OffenseCount int
	Flagged      bool
	CreatedAt    time.Time
}
