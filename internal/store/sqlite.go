// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides identity/profile/role persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// auditTimeFormat has fixed-width fractional seconds so ts sorts lexically.
const auditTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path using the
// pure-Go driver. The schema is automatically created if it doesn't exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver(DriverSQLite, path)
}

// NewSQLiteStoreWithDriver creates a SQLite store using the named database/sql
// driver ("sqlite" or "sqlite3"). Parent directories are created if needed.
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store", "driver", driver)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// PRAGMAs apply per connection and each :memory: connection is its own database
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			id              TEXT PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash   TEXT NOT NULL,
			email_confirmed INTEGER NOT NULL DEFAULT 0,
			metadata_json   TEXT,
			created_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS profiles (
			id         TEXT PRIMARY KEY REFERENCES identities(id) ON DELETE CASCADE,
			email      TEXT NOT NULL,
			full_name  TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		-- No uniqueness on (user_id, role): duplicate grants are allowed
		CREATE TABLE IF NOT EXISTS role_grants (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_role_grants_user_role ON role_grants(user_id, role);
		CREATE INDEX IF NOT EXISTS idx_role_grants_role ON role_grants(role);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id    TEXT PRIMARY KEY,
			actor_id    TEXT,
			action      TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			ts          TEXT NOT NULL,
			detail_json TEXT,

			CHECK (action IN ('create_admin', 'revoke_admin', 'bootstrap_admin'))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateIdentity inserts a new identity. The email is normalized before
// insert; a duplicate email returns ErrEmailExists.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	identity.Email = NormalizeEmail(identity.Email)

	metadataJSON, err := marshalMetadata(identity.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO identities (id, email, password_hash, email_confirmed, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.PasswordHash,
		identity.EmailConfirmed,
		metadataJSON,
		identity.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("inserting identity: %w", err)
	}

	s.logger.Debug("created identity", "id", identity.ID)
	return nil
}

// GetIdentity retrieves an identity by ID.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	query := `
		SELECT id, email, password_hash, email_confirmed, metadata_json, created_at
		FROM identities
		WHERE id = ?
	`
	return s.scanIdentity(s.db.QueryRowContext(ctx, query, id))
}

// GetIdentityByEmail retrieves an identity by case-insensitive email.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLiteStore) GetIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	query := `
		SELECT id, email, password_hash, email_confirmed, metadata_json, created_at
		FROM identities
		WHERE email = ?
	`
	return s.scanIdentity(s.db.QueryRowContext(ctx, query, NormalizeEmail(email)))
}

func (s *SQLiteStore) scanIdentity(row *sql.Row) (*Identity, error) {
	var identity Identity
	var metadataJSON sql.NullString
	var createdAtStr string

	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.EmailConfirmed,
		&metadataJSON,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}

	identity.Metadata, err = unmarshalMetadata(metadataJSON.String)
	if err != nil {
		return nil, err
	}

	identity.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &identity, nil
}

// DeleteIdentity removes an identity. Profiles and role grants cascade.
// Deleting a non-existent identity succeeds silently.
func (s *SQLiteStore) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	s.logger.Debug("deleted identity", "id", id)
	return nil
}

// UpsertProfile inserts a profile or overwrites the existing row with the same id.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *Profile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	query := `
		INSERT INTO profiles (id, email, full_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		profile.ID,
		profile.Email,
		profile.FullName,
		profile.CreatedAt.UTC().Format(time.RFC3339),
		profile.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}

	s.logger.Debug("upserted profile", "id", profile.ID)
	return nil
}

// GetProfile retrieves a profile by ID.
// Returns ErrNotFound if the profile doesn't exist.
func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	query := `
		SELECT id, email, full_name, created_at, updated_at
		FROM profiles
		WHERE id = ?
	`

	var p Profile
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	p.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &p, nil
}

// DeleteProfile removes a profile. Deleting a non-existent profile succeeds silently.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// HasRole checks whether at least one grant exists for (userID, role).
func (s *SQLiteStore) HasRole(ctx context.Context, userID string, role RoleName) (bool, error) {
	query := `SELECT 1 FROM role_grants WHERE user_id = ? AND role = ? LIMIT 1`

	var one int
	err := s.db.QueryRowContext(ctx, query, userID, role).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return true, nil
}

// InsertRoleGrant inserts a grant. Duplicate (user, role) grants are not rejected.
func (s *SQLiteStore) InsertRoleGrant(ctx context.Context, grant *RoleGrant) error {
	query := `
		INSERT INTO role_grants (id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		grant.ID,
		grant.UserID,
		grant.Role,
		grant.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting role grant: %w", err)
	}

	s.logger.Debug("inserted role grant", "user_id", grant.UserID, "role", grant.Role)
	return nil
}

// DeleteRoleGrants removes every grant of role held by userID and returns the
// number of rows removed.
func (s *SQLiteStore) DeleteRoleGrants(ctx context.Context, userID string, role RoleName) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_grants WHERE user_id = ? AND role = ?`, userID, role)
	if err != nil {
		return 0, fmt.Errorf("deleting role grants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted role grants: %w", err)
	}
	s.logger.Debug("deleted role grants", "user_id", userID, "role", role, "count", n)
	return n, nil
}

// ListRoleHolders returns the distinct users holding role, ordered by email.
func (s *SQLiteStore) ListRoleHolders(ctx context.Context, role RoleName) ([]RoleHolder, error) {
	query := `
		SELECT g.user_id, MIN(g.created_at), COALESCE(p.email, ''), COALESCE(p.full_name, '')
		FROM role_grants g
		LEFT JOIN profiles p ON p.id = g.user_id
		WHERE g.role = ?
		GROUP BY g.user_id, p.email, p.full_name
		ORDER BY 3, 1
	`

	rows, err := s.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("listing role holders: %w", err)
	}
	defer rows.Close()

	holders := []RoleHolder{}
	for rows.Next() {
		h := RoleHolder{Role: role}
		var grantedAtStr string
		if err := rows.Scan(&h.UserID, &grantedAtStr, &h.Email, &h.FullName); err != nil {
			return nil, fmt.Errorf("scanning role holder: %w", err)
		}
		h.GrantedAt, err = time.Parse(time.RFC3339, grantedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing granted_at: %w", err)
		}
		holders = append(holders, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role holders: %w", err)
	}
	return holders, nil
}

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	prepareAuditEntry(e)

	detailJSON, err := marshalMetadata(e.Detail)
	if err != nil {
		return fmt.Errorf("marshaling audit detail: %w", err)
	}

	query := `
		INSERT INTO audit_log (audit_id, actor_id, action, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		e.ID,
		e.ActorID,
		e.Action,
		e.TargetID,
		e.Timestamp.UTC().Format(auditTimeFormat),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log", "id", e.ID, "actor", e.ActorID, "action", e.Action, "target", e.TargetID)
	return nil
}

// ListAuditLog returns the most recent audit entries, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	query := `
		SELECT audit_id, COALESCE(actor_id, ''), action, target_id, ts, detail_json
		FROM audit_log
		ORDER BY ts DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, normalizeAuditLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var tsStr string
		var detailJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.TargetID, &tsStr, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing ts: %w", err)
		}
		e.Detail, err = unmarshalMetadata(detailJSON.String)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return entries, nil
}

// marshalMetadata encodes a metadata map as JSON, returning nil for an empty map.
func marshalMetadata(m map[string]any) (*string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	str := string(data)
	return &str, nil
}

func unmarshalMetadata(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return m, nil
}
