package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/aprizal/myxl-bot/core/logger"
)

// PGStore persists accounts and the active pointer in Postgres. Mutations run
// inside transactions so the durable record never holds a half-applied change.
type PGStore struct {
	db *sqlx.DB

	mu       sync.RWMutex
	accounts []Account
	active   string
}

var _ Store = (*PGStore)(nil)

type accountRow struct {
	PhoneNumber  string `db:"phone_number"`
	RefreshToken string `db:"refresh_token"`
}

// NewPGStore creates a Postgres-backed store over an open connection pool.
func NewPGStore(db *sqlx.DB) (*PGStore, error) {
	if db == nil {
		return nil, errors.New("auth: nil database handle")
	}
	return &PGStore{db: db}, nil
}

// Load reads the full account sequence and the active pointer into memory.
func (s *PGStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT phone_number, refresh_token FROM accounts ORDER BY position`,
	); err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	var active sql.NullString
	if err := s.db.GetContext(ctx, &active,
		`SELECT phone_number FROM active_account WHERE id`,
	); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load active pointer: %w", err)
	}

	accounts := make([]Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, Account{
			PhoneNumber:  row.PhoneNumber,
			RefreshToken: row.RefreshToken,
		})
	}
	s.accounts = accounts
	s.active = ""
	if active.Valid && containsPhone(accounts, active.String) {
		s.active = active.String
	}

	logger.Store.Debug("tokens loaded",
		slog.String("event", "store.load"),
		slog.String("backend", "postgres"),
		slog.Int("count", len(accounts)),
	)
	return nil
}

// Add upserts the account inside a transaction, then updates memory.
func (s *PGStore) Add(ctx context.Context, phoneNumber, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add account: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (phone_number, refresh_token)
		 VALUES ($1, $2)
		 ON CONFLICT (phone_number)
		 DO UPDATE SET refresh_token = EXCLUDED.refresh_token, updated_at = now()`,
		phoneNumber, refreshToken,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("add account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add account: %w", err)
	}

	replaced := false
	for i := range s.accounts {
		if s.accounts[i].PhoneNumber == phoneNumber {
			s.accounts[i].RefreshToken = refreshToken
			replaced = true
			break
		}
	}
	if !replaced {
		s.accounts = append(s.accounts, Account{PhoneNumber: phoneNumber, RefreshToken: refreshToken})
	}

	logger.Store.Info("account saved",
		slog.String("event", "store.add"),
		slog.String("backend", "postgres"),
		slog.String("phone", phoneNumber),
		slog.Bool("replaced", replaced),
	)
	return nil
}

// SetActive repoints the active pointer inside a transaction.
func (s *PGStore) SetActive(ctx context.Context, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !containsPhone(s.accounts, phoneNumber) {
		return fmt.Errorf("set active %q: %w", phoneNumber, ErrAccountNotFound)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE active_account SET phone_number = $1 WHERE id`,
		phoneNumber,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("set active: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set active: %w", err)
	}
	s.active = phoneNumber

	logger.Store.Info("active account changed",
		slog.String("event", "store.set_active"),
		slog.String("backend", "postgres"),
		slog.String("phone", phoneNumber),
	)
	return nil
}

// Active returns the account referenced by the active pointer.
func (s *PGStore) Active(ctx context.Context) (Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == "" {
		return Account{}, false, nil
	}
	for _, acc := range s.accounts {
		if acc.PhoneNumber == s.active {
			return acc, true, nil
		}
	}
	return Account{}, false, nil
}

// List returns the account sequence in insertion order with the active marker.
func (s *PGStore) List(ctx context.Context) ([]AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]AccountInfo, 0, len(s.accounts))
	for _, acc := range s.accounts {
		infos = append(infos, AccountInfo{
			Account: acc,
			Active:  acc.PhoneNumber == s.active,
		})
	}
	return infos, nil
}
