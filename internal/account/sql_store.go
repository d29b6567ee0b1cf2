// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tomtom215/storeguard/internal/metrics"
)

const accountColumns = `id, kind, identifier, password_hash, role, status,
	failed_attempts, locked_until, last_login_at, created_at`

// accountRow mirrors the accounts table. Timestamps are unix seconds.
type accountRow struct {
	ID             int64         `db:"id"`
	Kind           string        `db:"kind"`
	Identifier     string        `db:"identifier"`
	PasswordHash   string        `db:"password_hash"`
	Role           string        `db:"role"`
	Status         string        `db:"status"`
	FailedAttempts int           `db:"failed_attempts"`
	LockedUntil    sql.NullInt64 `db:"locked_until"`
	LastLoginAt    sql.NullInt64 `db:"last_login_at"`
	CreatedAt      int64         `db:"created_at"`
}

func (r *accountRow) toAccount() *Account {
	return &Account{
		ID:             r.ID,
		Kind:           Kind(r.Kind),
		Identifier:     r.Identifier,
		CredentialHash: r.PasswordHash,
		Role:           r.Role,
		Status:         Status(r.Status),
		FailedAttempts: r.FailedAttempts,
		LockedUntil:    fromUnix(r.LockedUntil),
		LastLoginAt:    fromUnix(r.LastLoginAt),
		CreatedAt:      time.Unix(r.CreatedAt, 0).UTC(),
	}
}

// SQLStore is the relational Store. Queries are written with ? placeholders
// and rebound for the connected driver.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Lookup(ctx context.Context, kind Kind, identifier string) (acct *Account, err error) {
	defer observe("lookup", time.Now(), &err)

	var row accountRow
	query := s.db.Rebind(`SELECT ` + accountColumns + ` FROM accounts
		WHERE kind = ? AND identifier = ? AND status = 'active'`)
	if err := s.db.GetContext(ctx, &row, query, string(kind), identifier); err != nil {
		return nil, mapErr("lookup account", err)
	}
	return row.toAccount(), nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (acct *Account, err error) {
	defer observe("get", time.Now(), &err)

	var row accountRow
	query := s.db.Rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, mapErr("get account", err)
	}
	return row.toAccount(), nil
}

func (s *SQLStore) Create(ctx context.Context, a *Account) (id int64, err error) {
	defer observe("create", time.Now(), &err)

	status := a.Status
	if status == "" {
		status = StatusActive
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := s.db.Rebind(`INSERT INTO accounts
		(kind, identifier, password_hash, role, status, failed_attempts, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		RETURNING id`)
	err = s.db.QueryRowxContext(ctx, query,
		string(a.Kind), a.Identifier, a.CredentialHash, a.Role, string(status), created.Unix(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, mapErr("create account", err)
	}
	return id, nil
}

// RecordFailure is one UPDATE ... RETURNING. Both PostgreSQL and SQLite
// evaluate every SET expression against the pre-update row, so
// failed_attempts + 1 inside the CASE is the new count.
func (s *SQLStore) RecordFailure(ctx context.Context, id int64, threshold int, lockUntil time.Time) (res FailureResult, err error) {
	defer observe("record_failure", time.Now(), &err)

	until := lockUntil.Unix()
	query := s.db.Rebind(`UPDATE accounts SET
		failed_attempts = failed_attempts + 1,
		locked_until = CASE
			WHEN failed_attempts + 1 >= ? AND (locked_until IS NULL OR locked_until < ?) THEN ?
			ELSE locked_until
		END
		WHERE id = ?
		RETURNING failed_attempts, locked_until`)

	var (
		failed int
		locked sql.NullInt64
	)
	if err := s.db.QueryRowxContext(ctx, query, threshold, until, until, id).Scan(&failed, &locked); err != nil {
		return FailureResult{}, mapErr("record failure", err)
	}
	return FailureResult{FailedAttempts: failed, LockedUntil: fromUnix(locked)}, nil
}

func (s *SQLStore) Reset(ctx context.Context, id int64) (err error) {
	defer observe("reset", time.Now(), &err)
	return s.execOne(ctx, "reset failures",
		`UPDATE accounts SET failed_attempts = 0, locked_until = NULL WHERE id = ?`, id)
}

func (s *SQLStore) TouchLogin(ctx context.Context, id int64, at time.Time) (err error) {
	defer observe("touch_login", time.Now(), &err)
	return s.execOne(ctx, "touch login",
		`UPDATE accounts SET last_login_at = ? WHERE id = ?`, at.Unix(), id)
}

func (s *SQLStore) UpdateHash(ctx context.Context, id int64, hash string) (err error) {
	defer observe("update_hash", time.Now(), &err)
	return s.execOne(ctx, "update hash",
		`UPDATE accounts SET password_hash = ? WHERE id = ?`, hash, id)
}

func (s *SQLStore) Locked(ctx context.Context, now time.Time) (out []Account, err error) {
	defer observe("locked", time.Now(), &err)

	var rows []accountRow
	query := s.db.Rebind(`SELECT ` + accountColumns + ` FROM accounts
		WHERE locked_until IS NOT NULL AND locked_until > ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &rows, query, now.Unix()); err != nil {
		return nil, mapErr("list locked accounts", err)
	}

	out = make([]Account, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toAccount())
	}
	return out, nil
}

// execOne runs an UPDATE that must touch exactly one row.
func (s *SQLStore) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return mapErr(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return mapErr(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the connection. Used by the health endpoint.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func mapErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
		err = nil
	}
	metrics.RecordDBQuery(op, time.Since(start), err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
