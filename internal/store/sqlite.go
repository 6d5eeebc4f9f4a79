package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pawfound/sighting-wizard/internal/model"
	_ "modernc.org/sqlite"
)

const timeFormat = "2006-01-02 15:04:05"

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename to ensure order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, is_admin, banned, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, boolToInt(user.IsAdmin), boolToInt(user.Banned),
		user.CreatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, is_admin, banned, created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, is_admin, banned, created_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, name = ?, is_admin = ? WHERE id = ?`,
		user.Email, user.Name, boolToInt(user.IsAdmin), user.ID)
	return err
}

func (s *SQLiteStore) BanUser(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET banned = 1 WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) scanUser(row scannable) (*model.User, error) {
	var u model.User
	var isAdmin, banned int
	var createdAt string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &isAdmin, &banned, &createdAt); err != nil {
		return nil, err
	}
	u.IsAdmin = isAdmin != 0
	u.Banned = banned != 0
	u.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &u, nil
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.ExpiresAt.UTC().Format(timeFormat), sess.CreatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	var expiresAt, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.UserID, &expiresAt, &createdAt)
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt, _ = time.Parse(timeFormat, expiresAt)
	sess.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &sess, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC().Format(timeFormat))
	return err
}

// --- Login codes ---

func (s *SQLiteStore) CreateLoginCode(ctx context.Context, code *model.LoginCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_codes (code, email, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?)`,
		code.Code, code.Email, code.ExpiresAt.UTC().Format(timeFormat),
		boolToInt(code.Used), code.CreatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) GetLoginCode(ctx context.Context, code string) (*model.LoginCode, error) {
	var lc model.LoginCode
	var used int
	var expiresAt, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT code, email, expires_at, used, created_at FROM login_codes WHERE code = ?`, code).
		Scan(&lc.Code, &lc.Email, &expiresAt, &used, &createdAt)
	if err != nil {
		return nil, err
	}
	lc.Used = used != 0
	lc.ExpiresAt, _ = time.Parse(timeFormat, expiresAt)
	lc.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &lc, nil
}

// ConsumeLoginCode atomically marks an unused code for the given email as
// used. The rows-affected check makes the consume exclusive, so concurrent
// verifications of the same code cannot both succeed. Returns sql.ErrNoRows
// when no matching unused code exists.
func (s *SQLiteStore) ConsumeLoginCode(ctx context.Context, code, email string) (*model.LoginCode, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE login_codes SET used = 1 WHERE code = ? AND email = ? AND used = 0`,
		code, email)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetLoginCode(ctx, code)
}

// --- Pets ---

const petColumns = `id, owner_id, name, species, breed, colors, gender, age, size, features, photo, lost, created_at, updated_at`

func (s *SQLiteStore) CreatePet(ctx context.Context, pet *model.Pet) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pets (`+petColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pet.ID, pet.OwnerID, pet.Name, pet.Species, pet.Breed, pet.Colors, pet.Gender,
		pet.Age, string(pet.Size), pet.Features, pet.PhotoURL, boolToInt(pet.Lost),
		pet.CreatedAt.UTC().Format(timeFormat), pet.UpdatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) GetPet(ctx context.Context, id string) (*model.Pet, error) {
	return s.scanPet(s.db.QueryRowContext(ctx,
		`SELECT `+petColumns+` FROM pets WHERE id = ?`, id))
}

func (s *SQLiteStore) UpdatePet(ctx context.Context, pet *model.Pet) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pets SET name = ?, species = ?, breed = ?, colors = ?, gender = ?, age = ?,
		 size = ?, features = ?, photo = ?, lost = ?, updated_at = ? WHERE id = ?`,
		pet.Name, pet.Species, pet.Breed, pet.Colors, pet.Gender, pet.Age,
		string(pet.Size), pet.Features, pet.PhotoURL, boolToInt(pet.Lost),
		pet.UpdatedAt.UTC().Format(timeFormat), pet.ID)
	return err
}

func (s *SQLiteStore) DeletePet(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pets WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListPetsByOwner(ctx context.Context, ownerID string) ([]*model.Pet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+petColumns+` FROM pets WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pets []*model.Pet
	for rows.Next() {
		p, err := s.scanPet(rows)
		if err != nil {
			return nil, err
		}
		pets = append(pets, p)
	}
	return pets, rows.Err()
}

func (s *SQLiteStore) scanPet(row scannable) (*model.Pet, error) {
	var p model.Pet
	var size string
	var lost int
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Species, &p.Breed, &p.Colors,
		&p.Gender, &p.Age, &size, &p.Features, &p.PhotoURL, &lost, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Size = model.Size(size)
	p.Lost = lost != 0
	p.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	p.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &p, nil
}

// --- Sightings ---

const sightingColumns = `id, name, species, breed, colors, gender, features, size,
	collar_description, photo, note, last_seen_location, last_seen_lat, last_seen_long,
	last_seen_time, pet_id, linked_sighting_id, reporter_id, reporter_name, reporter_phone, created_at`

func (s *SQLiteStore) CreateSighting(ctx context.Context, sg *model.Sighting) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sightings (`+sightingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.Name, sg.Species, sg.Breed, sg.Colors, sg.Gender, sg.Features, string(sg.Size),
		sg.CollarDescription, sg.PhotoURL, sg.Note, sg.LastSeenLocation, sg.LastSeenLat, sg.LastSeenLong,
		nullTimeVal(sg.LastSeenTime), nullString(sg.PetID), nullString(sg.LinkedSightingID),
		nullString(sg.ReporterID), sg.ReporterName, sg.ReporterPhone,
		sg.CreatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) GetSighting(ctx context.Context, id string) (*model.Sighting, error) {
	return s.scanSighting(s.db.QueryRowContext(ctx,
		`SELECT `+sightingColumns+` FROM sightings WHERE id = ?`, id))
}

func (s *SQLiteStore) ListRecentSightings(ctx context.Context, limit int) ([]*model.Sighting, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.querySightings(ctx,
		`SELECT `+sightingColumns+` FROM sightings ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) ListSightingsByPet(ctx context.Context, petID string) ([]*model.Sighting, error) {
	return s.querySightings(ctx,
		`SELECT `+sightingColumns+` FROM sightings WHERE pet_id = ? ORDER BY created_at DESC`, petID)
}

func (s *SQLiteStore) ListSightingsByReporter(ctx context.Context, reporterID string) ([]*model.Sighting, error) {
	return s.querySightings(ctx,
		`SELECT `+sightingColumns+` FROM sightings WHERE reporter_id = ? ORDER BY created_at DESC`, reporterID)
}

func (s *SQLiteStore) DeleteSighting(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sightings WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) querySightings(ctx context.Context, query string, args ...interface{}) ([]*model.Sighting, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sightings []*model.Sighting
	for rows.Next() {
		sg, err := s.scanSighting(rows)
		if err != nil {
			return nil, err
		}
		sightings = append(sightings, sg)
	}
	return sightings, rows.Err()
}

func (s *SQLiteStore) scanSighting(row scannable) (*model.Sighting, error) {
	var sg model.Sighting
	var size string
	var lastSeen, petID, linkedID, reporterID sql.NullString
	var createdAt string
	err := row.Scan(&sg.ID, &sg.Name, &sg.Species, &sg.Breed, &sg.Colors, &sg.Gender,
		&sg.Features, &size, &sg.CollarDescription, &sg.PhotoURL, &sg.Note,
		&sg.LastSeenLocation, &sg.LastSeenLat, &sg.LastSeenLong, &lastSeen,
		&petID, &linkedID, &reporterID, &sg.ReporterName, &sg.ReporterPhone, &createdAt)
	if err != nil {
		return nil, err
	}
	sg.Size = model.Size(size)
	if lastSeen.Valid {
		sg.LastSeenTime, _ = time.Parse(timeFormat, lastSeen.String)
	}
	sg.PetID = petID.String
	sg.LinkedSightingID = linkedID.String
	sg.ReporterID = reporterID.String
	sg.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &sg, nil
}

// --- Owner contact profiles ---

func (s *SQLiteStore) UpsertOwner(ctx context.Context, owner *model.Owner) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO owner (user_id, name, phone, country_code, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		 name = excluded.name, phone = excluded.phone,
		 country_code = excluded.country_code, updated_at = excluded.updated_at`,
		owner.UserID, owner.Name, owner.Phone, owner.CountryCode,
		owner.UpdatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) GetOwner(ctx context.Context, userID string) (*model.Owner, error) {
	var o model.Owner
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, phone, country_code, updated_at FROM owner WHERE user_id = ?`, userID).
		Scan(&o.UserID, &o.Name, &o.Phone, &o.CountryCode, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &o, nil
}

// --- Sighting contacts ---

func (s *SQLiteStore) CreateSightingContact(ctx context.Context, c *model.SightingContact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sighting_contact (id, sighting_id, name, phone, country_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.SightingID, c.Name, c.Phone, c.CountryCode,
		c.CreatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) ListContactsBySighting(ctx context.Context, sightingID string) ([]*model.SightingContact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sighting_id, name, phone, country_code, created_at
		 FROM sighting_contact WHERE sighting_id = ? ORDER BY created_at`, sightingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*model.SightingContact
	for rows.Next() {
		var c model.SightingContact
		var createdAt string
		if err := rows.Scan(&c.ID, &c.SightingID, &c.Name, &c.Phone, &c.CountryCode, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}

// --- Pet claims ---

func (s *SQLiteStore) CreatePetClaim(ctx context.Context, claim *model.PetClaim) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pet_claims (id, sighting_id, pet_id, claimant_id, message, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		claim.ID, claim.SightingID, nullString(claim.PetID), claim.ClaimantID,
		claim.Message, string(claim.Status), claim.CreatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) GetPetClaim(ctx context.Context, id string) (*model.PetClaim, error) {
	return s.scanClaim(s.db.QueryRowContext(ctx,
		`SELECT id, sighting_id, pet_id, claimant_id, message, status, created_at
		 FROM pet_claims WHERE id = ?`, id))
}

func (s *SQLiteStore) UpdatePetClaimStatus(ctx context.Context, id string, status model.ClaimStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pet_claims SET status = ? WHERE id = ?`, string(status), id)
	return err
}

func (s *SQLiteStore) ListClaimsBySighting(ctx context.Context, sightingID string) ([]*model.PetClaim, error) {
	return s.queryClaims(ctx,
		`SELECT id, sighting_id, pet_id, claimant_id, message, status, created_at
		 FROM pet_claims WHERE sighting_id = ? ORDER BY created_at DESC`, sightingID)
}

func (s *SQLiteStore) ListClaimsByClaimant(ctx context.Context, claimantID string) ([]*model.PetClaim, error) {
	return s.queryClaims(ctx,
		`SELECT id, sighting_id, pet_id, claimant_id, message, status, created_at
		 FROM pet_claims WHERE claimant_id = ? ORDER BY created_at DESC`, claimantID)
}

func (s *SQLiteStore) queryClaims(ctx context.Context, query string, args ...interface{}) ([]*model.PetClaim, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*model.PetClaim
	for rows.Next() {
		c, err := s.scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (s *SQLiteStore) scanClaim(row scannable) (*model.PetClaim, error) {
	var c model.PetClaim
	var petID sql.NullString
	var status, createdAt string
	err := row.Scan(&c.ID, &c.SightingID, &petID, &c.ClaimantID, &c.Message, &status, &createdAt)
	if err != nil {
		return nil, err
	}
	c.PetID = petID.String
	c.Status = model.ClaimStatus(status)
	c.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &c, nil
}

// --- Conversation logs ---

func (s *SQLiteStore) CreateConversationLog(ctx context.Context, l *model.ConversationLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (id, user_id, sighting_id, transcript, offense_count, flagged, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, nullString(l.UserID), nullString(l.SightingID), l.Transcript,
		l.OffenseCount, boolToInt(l.Flagged), l.CreatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) ListConversationLogsByUser(ctx context.Context, userID string) ([]*model.ConversationLog, error) {
	return s.queryLogs(ctx,
		`SELECT id, user_id, sighting_id, transcript, offense_count, flagged, created_at
		 FROM logs WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (s *SQLiteStore) ListFlaggedConversationLogs(ctx context.Context) ([]*model.ConversationLog, error) {
	return s.queryLogs(ctx,
		`SELECT id, user_id, sighting_id, transcript, offense_count, flagged, created_at
		 FROM logs WHERE flagged = 1 ORDER BY created_at DESC`)
}

func (s *SQLiteStore) queryLogs(ctx context.Context, query string, args ...interface{}) ([]*model.ConversationLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*model.ConversationLog
	for rows.Next() {
		var l model.ConversationLog
		var userID, sightingID sql.NullString
		var flagged int
		var createdAt string
		if err := rows.Scan(&l.ID, &userID, &sightingID, &l.Transcript, &l.OffenseCount, &flagged, &createdAt); err != nil {
			return nil, err
		}
		l.UserID = userID.String
		l.SightingID = sightingID.String
		l.Flagged = flagged != 0
		l.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// --- Helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTimeVal(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}
