// Package storage is the Postgres-backed persistence seam for the
// external data the core consumes but does not own: users, their
// encrypted provider keys, and their role assignments. Grounded on the
// teacher's internal/storage/cockroach.go: one struct per table wrapping
// *sql.DB, sentinel not-found/already-exists errors, and $N-placeholder
// queries via lib/pq.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/forgecode/agentcore/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Config tunes the connection pool, mirroring the teacher's
// CockroachConfig defaults.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns sane pool defaults for a single-instance
// deployment.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// UserStore persists user identities and credentials.
type UserStore interface {
	Create(ctx context.Context, email, hashedPassword string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// ProviderKeyStore persists a user's encrypted per-provider API keys.
type ProviderKeyStore interface {
	Upsert(ctx context.Context, key models.ProviderKey) error
	Get(ctx context.Context, userID int64, providerName string) (models.ProviderKey, error)
}

// RoleAssignmentStore persists a user's role -> model bindings.
type RoleAssignmentStore interface {
	Upsert(ctx context.Context, assignment models.RoleAssignment) error
	Get(ctx context.Context, userID int64, role models.Role) (models.RoleAssignment, error)
}

// Stores groups every Postgres-backed seam the core talks to.
type Stores struct {
	Users           UserStore
	ProviderKeys    ProviderKeyStore
	RoleAssignments RoleAssignmentStore
	closer          func() error
}

// RoleAssignment and ProviderKey let Stores satisfy
// internal/authz.RoleStore directly, so the LLM Streamer's role
// resolution reads straight from Postgres without an extra adapter type.
func (s Stores) RoleAssignment(ctx context.Context, userID int64, role models.Role) (models.RoleAssignment, error) {
	return s.RoleAssignments.Get(ctx, userID, role)
}

func (s Stores) ProviderKey(ctx context.Context, userID int64, providerName string) (models.ProviderKey, error) {
	return s.ProviderKeys.Get(ctx, userID, providerName)
}

// Close releases the underlying connection pool.
func (s Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Open connects to Postgres via dsn and returns the full Stores set.
func Open(dsn string, cfg *Config) (Stores, error) {
	if dsn == "" {
		return Stores{}, fmt.Errorf("dsn is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return Stores{}, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return Stores{}, fmt.Errorf("ping database: %w", err)
	}

	return Stores{
		Users:           &userStore{db: db},
		ProviderKeys:    &providerKeyStore{db: db},
		RoleAssignments: &roleAssignmentStore{db: db},
		closer:          db.Close,
	}, nil
}

// Migrate creates every table this package needs if absent. Schema
// evolution beyond additive CREATE TABLE IF NOT EXISTS is out of scope;
// a dedicated migration tool is not part of this core.
func Migrate(ctx context.Context, stores Stores) error {
	db, ok := underlyingDB(stores)
	if !ok {
		return fmt.Errorf("migrate: stores were not opened via storage.Open")
	}
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS provider_keys (
	user_id BIGINT NOT NULL REFERENCES users(id),
	provider_name TEXT NOT NULL,
	encrypted_blob TEXT NOT NULL,
	PRIMARY KEY (user_id, provider_name)
);
CREATE TABLE IF NOT EXISTS role_assignments (
	user_id BIGINT NOT NULL REFERENCES users(id),
	role TEXT NOT NULL,
	model_id TEXT NOT NULL,
	temperature DOUBLE PRECISION NOT NULL DEFAULT 0.2,
	PRIMARY KEY (user_id, role)
);
`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func underlyingDB(stores Stores) (*sql.DB, bool) {
	us, ok := stores.Users.(*userStore)
	if !ok {
		return nil, false
	}
	return us.db, true
}

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, email, hashedPassword string) (models.User, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, hashed_password) VALUES ($1, $2) RETURNING id`,
		email, hashedPassword).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return models.User{ID: id, Email: email, HashedPassword: hashedPassword}, nil
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, hashed_password FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.HashedPassword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

type providerKeyStore struct{ db *sql.DB }

func (s *providerKeyStore) Upsert(ctx context.Context, key models.ProviderKey) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO provider_keys (user_id, provider_name, encrypted_blob) VALUES ($1, $2, $3)
ON CONFLICT (user_id, provider_name) DO UPDATE SET encrypted_blob = excluded.encrypted_blob
`, key.UserID, key.ProviderName, key.EncryptedBlob)
	if err != nil {
		return fmt.Errorf("upsert provider key: %w", err)
	}
	return nil
}

func (s *providerKeyStore) Get(ctx context.Context, userID int64, providerName string) (models.ProviderKey, error) {
	var k models.ProviderKey
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, provider_name, encrypted_blob FROM provider_keys WHERE user_id = $1 AND provider_name = $2`,
		userID, providerName,
	).Scan(&k.UserID, &k.ProviderName, &k.EncryptedBlob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ProviderKey{}, ErrNotFound
		}
		return models.ProviderKey{}, fmt.Errorf("get provider key: %w", err)
	}
	return k, nil
}

type roleAssignmentStore struct{ db *sql.DB }

func (s *roleAssignmentStore) Upsert(ctx context.Context, assignment models.RoleAssignment) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO role_assignments (user_id, role, model_id, temperature) VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, role) DO UPDATE SET model_id = excluded.model_id, temperature = excluded.temperature
`, assignment.UserID, string(assignment.Role), assignment.ModelID, assignment.Temperature)
	if err != nil {
		return fmt.Errorf("upsert role assignment: %w", err)
	}
	return nil
}

func (s *roleAssignmentStore) Get(ctx context.Context, userID int64, role models.Role) (models.RoleAssignment, error) {
	var a models.RoleAssignment
	var roleStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, role, model_id, temperature FROM role_assignments WHERE user_id = $1 AND role = $2`,
		userID, string(role),
	).Scan(&a.UserID, &roleStr, &a.ModelID, &a.Temperature)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RoleAssignment{}, ErrNotFound
		}
		return models.RoleAssignment{}, fmt.Errorf("get role assignment: %w", err)
	}
	a.Role = models.Role(roleStr)
	return a, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
