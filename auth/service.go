package auth

import (
	"context"
	"fmt"
	"sync"

	"log/slog"

	"github.com/aprizal/myxl-bot/core/logger"
)

// TokenExchanger trades a refresh token for the short-lived identity token
// used on API calls.
type TokenExchanger interface {
	ExchangeToken(ctx context.Context, refreshToken string) (idToken string, err error)
}

// Service wraps a Store with the active-token cache and the startup
// activation rule. All methods are safe for concurrent use.
type Service struct {
	store Store
	api   TokenExchanger

	mu     sync.Mutex
	cached Tokens
	valid  bool
}

func NewService(store Store, api TokenExchanger) *Service {
	return &Service{store: store, api: api}
}

// Load hydrates the underlying store.
func (s *Service) Load(ctx context.Context) error {
	return s.store.Load(ctx)
}

// EnsureActive activates the first stored account when no account is active.
// With an empty store it is a no-op.
func (s *Service) EnsureActive(ctx context.Context) error {
	_, ok, err := s.store.Active(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	infos, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return nil
	}
	first := infos[0].PhoneNumber
	if err := s.store.SetActive(ctx, first); err != nil {
		return err
	}
	logger.Store.Info("activated first stored account",
		slog.String("event", "store.ensure_active"),
		slog.String("phone", first),
	)
	return nil
}

// AddAccount stores or replaces the refresh token for a phone number. A
// replaced token invalidates the cached identity token for that number.
func (s *Service) AddAccount(ctx context.Context, phoneNumber, refreshToken string) error {
	if err := s.store.Add(ctx, phoneNumber, refreshToken); err != nil {
		return err
	}
	s.mu.Lock()
	if s.valid && s.cached.PhoneNumber == phoneNumber {
		s.valid = false
	}
	s.mu.Unlock()
	return nil
}

// SetActive repoints the active account and drops the cached identity token.
func (s *Service) SetActive(ctx context.Context, phoneNumber string) error {
	if err := s.store.SetActive(ctx, phoneNumber); err != nil {
		return err
	}
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
	return nil
}

// ActiveAccount returns the currently active account.
func (s *Service) ActiveAccount(ctx context.Context) (Account, error) {
	acc, ok, err := s.store.Active(ctx)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, ErrNoActiveAccount
	}
	return acc, nil
}

// ListAccounts returns all stored accounts in insertion order.
func (s *Service) ListAccounts(ctx context.Context) ([]AccountInfo, error) {
	return s.store.List(ctx)
}

// ActiveTokens returns the identity token for the active account, exchanging
// the refresh token on first use and reusing the cached result until the
// active pointer moves to a different phone number.
func (s *Service) ActiveTokens(ctx context.Context) (Tokens, error) {
	acc, ok, err := s.store.Active(ctx)
	if err != nil {
		return Tokens{}, err
	}
	if !ok {
		return Tokens{}, ErrNoActiveAccount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid && s.cached.PhoneNumber == acc.PhoneNumber {
		return s.cached, nil
	}

	idToken, err := s.api.ExchangeToken(ctx, acc.RefreshToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("exchange for %s: %w", acc.PhoneNumber, err)
	}
	s.cached = Tokens{PhoneNumber: acc.PhoneNumber, IDToken: idToken}
	s.valid = true

	logger.Store.Debug("identity token refreshed",
		slog.String("event", "store.token_exchange"),
		slog.String("phone", acc.PhoneNumber),
	)
	return s.cached, nil
}
