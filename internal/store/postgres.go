// ABOUTME: PostgreSQL implementation of the Store interface using pgx/v5 connection pools
// ABOUTME: Creates the schema on connect and maps unique violations to ErrEmailExists

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore implements the Store interface on PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id              UUID PRIMARY KEY,
		email           TEXT NOT NULL,
		password_hash   TEXT NOT NULL,
		email_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		metadata        JSONB,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_email ON identities (lower(email))`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id         UUID PRIMARY KEY REFERENCES identities(id) ON DELETE CASCADE,
		email      TEXT NOT NULL,
		full_name  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS role_grants (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		role       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_role_grants_user_role ON role_grants (user_id, role)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		audit_id  UUID PRIMARY KEY,
		actor_id  TEXT,
		action    TEXT NOT NULL CHECK (action IN ('create_admin', 'revoke_admin', 'bootstrap_admin')),
		target_id TEXT NOT NULL,
		ts        TIMESTAMPTZ NOT NULL,
		detail    JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log (ts DESC)`,
}

// NewPostgresStore connects to the database at dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store", "driver", DriverPostgres)

	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("PostgreSQL store initialized")
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing PostgreSQL store")
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// jsonbArg encodes a map for a $n::jsonb parameter; nil for an empty map.
func jsonbArg(m map[string]any) (*string, error) {
	return marshalMetadata(m)
}

// CreateIdentity inserts a new identity.
func (s *PostgresStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	identity.Email = NormalizeEmail(identity.Email)

	metadata, err := jsonbArg(identity.Metadata)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO identities (id, email, password_hash, email_confirmed, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`, identity.ID, identity.Email, identity.PasswordHash, identity.EmailConfirmed, metadata, identity.CreatedAt.UTC())
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("inserting identity: %w", err)
	}

	s.logger.Debug("created identity", "id", identity.ID)
	return nil
}

const pgIdentityColumns = `id::text, email, password_hash, email_confirmed, COALESCE(metadata::text, '{}'), created_at`

// GetIdentity retrieves an identity by ID.
func (s *PostgresStore) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgIdentityColumns+` FROM identities WHERE id::text = $1`, id)
	return scanPgIdentity(row)
}

// GetIdentityByEmail retrieves an identity by case-insensitive email.
func (s *PostgresStore) GetIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgIdentityColumns+` FROM identities WHERE lower(email) = $1`, NormalizeEmail(email))
	return scanPgIdentity(row)
}

func scanPgIdentity(row pgx.Row) (*Identity, error) {
	var identity Identity
	var metadataJSON string

	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.EmailConfirmed,
		&metadataJSON,
		&identity.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}

	if metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &identity.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	identity.CreatedAt = identity.CreatedAt.UTC()
	return &identity, nil
}

// DeleteIdentity removes an identity. Profiles and grants cascade.
func (s *PostgresStore) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	return nil
}

// UpsertProfile inserts or overwrites a profile keyed by id.
func (s *PostgresStore) UpsertProfile(ctx context.Context, profile *Profile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, email, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			updated_at = EXCLUDED.updated_at
	`, profile.ID, profile.Email, profile.FullName, profile.CreatedAt.UTC(), profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by ID.
func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, email, full_name, created_at, updated_at
		FROM profiles WHERE id::text = $1
	`, id).Scan(&p.ID, &p.Email, &p.FullName, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// DeleteProfile removes a profile.
func (s *PostgresStore) DeleteProfile(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// HasRole checks whether at least one grant exists for (userID, role).
func (s *PostgresStore) HasRole(ctx context.Context, userID string, role RoleName) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM role_grants WHERE user_id::text = $1 AND role = $2)
	`, userID, string(role)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return exists, nil
}

// InsertRoleGrant inserts a grant.
func (s *PostgresStore) InsertRoleGrant(ctx context.Context, grant *RoleGrant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO role_grants (id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
	`, grant.ID, grant.UserID, string(grant.Role), grant.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting role grant: %w", err)
	}
	return nil
}

// DeleteRoleGrants removes every grant of role held by userID.
func (s *PostgresStore) DeleteRoleGrants(ctx context.Context, userID string, role RoleName) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM role_grants WHERE user_id::text = $1 AND role = $2`, userID, string(role))
	if err != nil {
		return 0, fmt.Errorf("deleting role grants: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListRoleHolders returns the distinct users holding role, ordered by email.
func (s *PostgresStore) ListRoleHolders(ctx context.Context, role RoleName) ([]RoleHolder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.user_id::text, MIN(g.created_at), COALESCE(p.email, ''), COALESCE(p.full_name, '')
		FROM role_grants g
		LEFT JOIN profiles p ON p.id = g.user_id
		WHERE g.role = $1
		GROUP BY g.user_id, p.email, p.full_name
		ORDER BY 3, 1
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("listing role holders: %w", err)
	}
	defer rows.Close()

	holders := []RoleHolder{}
	for rows.Next() {
		h := RoleHolder{Role: role}
		if err := rows.Scan(&h.UserID, &h.GrantedAt, &h.Email, &h.FullName); err != nil {
			return nil, fmt.Errorf("scanning role holder: %w", err)
		}
		h.GrantedAt = h.GrantedAt.UTC()
		holders = append(holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role holders: %w", err)
	}
	return holders, nil
}

// AppendAuditLog appends a new entry to the audit log.
func (s *PostgresStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	prepareAuditEntry(e)

	detail, err := jsonbArg(e.Detail)
	if err != nil {
		return fmt.Errorf("marshaling audit detail: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (audit_id, actor_id, action, target_id, ts, detail)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, e.ID, e.ActorID, string(e.Action), e.TargetID, e.Timestamp.UTC(), detail)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAuditLog returns the most recent audit entries, newest first.
func (s *PostgresStore) ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT audit_id::text, COALESCE(actor_id, ''), action, target_id, ts, COALESCE(detail::text, '')
		FROM audit_log
		ORDER BY ts DESC
		LIMIT $1
	`, normalizeAuditLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var action, detailJSON string
		if err := rows.Scan(&e.ID, &e.ActorID, &action, &e.TargetID, &e.Timestamp, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = AuditAction(action)
		e.Timestamp = e.Timestamp.UTC()
		e.Detail, err = unmarshalMetadata(detailJSON)
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
