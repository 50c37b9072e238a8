package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/fridge/internal/user/entity"
)

// UserRepo provides data access for the users and passwords tables using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users and passwords tables if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS passwords (
  user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
  salt TEXT NOT NULL,
  hash TEXT NOT NULL
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// CountByEmail returns how many users are registered with email (0 or 1).
func (r *UserRepo) CountByEmail(ctx context.Context, email string) (int, error) {
	const q = `SELECT COUNT(*) FROM users WHERE email=$1`
	var n int
	if err := r.db.GetContext(ctx, &n, q, email); err != nil {
		return 0, fmt.Errorf("count users by email: %w", err)
	}
	return n, nil
}

// CreateUserWithCredential inserts the user row and its password row in one
// transaction. Nothing is persisted unless both inserts succeed.
func (r *UserRepo) CreateUserWithCredential(ctx context.Context, nu entity.NewUser) (*entity.User, error) {
	const insertUser = `INSERT INTO users (id,email,first_name,last_name)
		VALUES ($1,$2,$3,$4) RETURNING id, email, first_name, last_name, created_at`
	const insertPassword = `INSERT INTO passwords (user_id,salt,hash) VALUES ($1,$2,$3)`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var u entity.User
	if err := tx.GetContext(ctx, &u, insertUser, nu.ID, nu.Email, nu.FirstName, nu.LastName); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertPassword, u.ID, nu.Credential.Salt, nu.Credential.Hash); err != nil {
		return nil, fmt.Errorf("insert password: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create user: %w", err)
	}
	return &u, nil
}

// FindByEmail returns the user with its credential, or ErrNotFound. A user
// without a password row comes back with a nil Credential.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.UserWithCredential, error) {
	const q = `SELECT u.id, u.email, u.first_name, u.last_name, u.created_at, p.salt, p.hash
		FROM users u LEFT JOIN passwords p ON p.user_id = u.id
		WHERE u.email=$1`
	var row struct {
		entity.User
		Salt sql.NullString `db:"salt"`
		Hash sql.NullString `db:"hash"`
	}
	if err := r.db.GetContext(ctx, &row, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	out := &entity.UserWithCredential{User: row.User}
	if row.Salt.Valid && row.Hash.Valid {
		out.Credential = &entity.Credential{Salt: row.Salt.String, Hash: row.Hash.String}
	}
	return out, nil
}

// FindByID returns the public user fields, or ErrNotFound.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*entity.User, error) {
	const q = `SELECT id, email, first_name, last_name, created_at FROM users WHERE id=$1`
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}
