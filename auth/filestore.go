package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"context"

	"log/slog"

	"github.com/aprizal/myxl-bot/core/logger"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	tokenFileMode    = 0o600
	tokenDirMode     = 0o700
	tempFilePattern  = ".tokens-*.toml.tmp"
	currentSchemaVer = 1
)

type fileSchema struct {
	Version  int             `toml:"version"`
	Active   string          `toml:"active,omitempty"`
	Accounts []accountSchema `toml:"accounts"`
}

type accountSchema struct {
	PhoneNumber  string `toml:"phone_number"`
	RefreshToken string `toml:"refresh_token"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVer
	}
}

// ErrSchemaVersion is returned when the token file on disk was written by a
// newer schema than this build understands.
var ErrSchemaVersion = errors.New("unsupported token file schema version")

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVer {
		return fmt.Errorf("%w: %d (current %d)", ErrSchemaVersion, s.Version, currentSchemaVer)
	}
	return nil
}

// FileStore keeps the account sequence in a single TOML file, replaced
// atomically on every mutation. It is the default backend and mirrors the
// single token file the bot historically used.
type FileStore struct {
	path string

	mu       sync.RWMutex
	accounts []Account
	active   string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by the TOML file at path. The file is
// created on first mutation; a missing file loads as an empty sequence.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("auth: empty token file path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve token file path: %w", err)
	}
	return &FileStore{path: abs}, nil
}

// Load reads the token file into memory, replacing the current sequence.
func (s *FileStore) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}

	accounts := make([]Account, 0, len(file.Accounts))
	for _, entry := range file.Accounts {
		accounts = append(accounts, Account{
			PhoneNumber:  entry.PhoneNumber,
			RefreshToken: entry.RefreshToken,
		})
	}
	s.accounts = accounts
	s.active = file.Active
	if s.active != "" && !containsPhone(accounts, s.active) {
		// Pointer must always resolve to a stored account.
		s.active = ""
	}

	logger.Store.Debug("tokens loaded",
		slog.String("event", "store.load"),
		slog.String("backend", "file"),
		slog.Int("count", len(accounts)),
	)
	return nil
}

// Add inserts or replaces the account, then atomically rewrites the file.
func (s *FileStore) Add(ctx context.Context, phoneNumber, refreshToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Account, len(s.accounts))
	copy(next, s.accounts)

	replaced := false
	for i := range next {
		if next[i].PhoneNumber == phoneNumber {
			next[i].RefreshToken = refreshToken
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, Account{PhoneNumber: phoneNumber, RefreshToken: refreshToken})
	}

	if err := s.persist(next, s.active); err != nil {
		return err
	}
	s.accounts = next

	logger.Store.Info("account saved",
		slog.String("event", "store.add"),
		slog.String("backend", "file"),
		slog.String("phone", phoneNumber),
		slog.Bool("replaced", replaced),
	)
	return nil
}

// SetActive repoints the active pointer and atomically rewrites the file.
func (s *FileStore) SetActive(ctx context.Context, phoneNumber string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !containsPhone(s.accounts, phoneNumber) {
		return fmt.Errorf("set active %q: %w", phoneNumber, ErrAccountNotFound)
	}

	if err := s.persist(s.accounts, phoneNumber); err != nil {
		return err
	}
	s.active = phoneNumber

	logger.Store.Info("active account changed",
		slog.String("event", "store.set_active"),
		slog.String("backend", "file"),
		slog.String("phone", phoneNumber),
	)
	return nil
}

// Active returns the account referenced by the active pointer.
func (s *FileStore) Active(ctx context.Context) (Account, bool, error) {
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
func (s *FileStore) List(ctx context.Context) ([]AccountInfo, error) {
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

func (s *FileStore) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read token file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode token file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()
	return file, nil
}

// persist writes the complete new state to a temp file and renames it into
// place, so a crash mid-write never leaves a partial record behind.
func (s *FileStore) persist(accounts []Account, active string) error {
	file := fileSchema{Version: currentSchemaVer, Active: active}
	file.Accounts = make([]accountSchema, 0, len(accounts))
	for _, acc := range accounts {
		file.Accounts = append(file.Accounts, accountSchema{
			PhoneNumber:  acc.PhoneNumber,
			RefreshToken: acc.RefreshToken,
		})
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, tokenDirMode); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Chmod(tokenFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	cleanup = false

	return nil
}

func containsPhone(accounts []Account, phone string) bool {
	for _, acc := range accounts {
		if acc.PhoneNumber == phone {
			return true
		}
	}
	return false
}
