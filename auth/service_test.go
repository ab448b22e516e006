package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeExchanger) ExchangeToken(_ context.Context, refreshToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, refreshToken)
	if f.err != nil {
		return "", f.err
	}
	return "id-" + refreshToken, nil
}

func (f *fakeExchanger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(t *testing.T) (*Service, *fakeExchanger) {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "tokens.toml"))
	require.NoError(t, err)
	require.NoError(t, fs.Load(context.Background()))
	api := &fakeExchanger{}
	return NewService(fs, api), api
}

func TestServiceActiveTokensNoAccount(t *testing.T) {
	svc, api := newTestService(t)

	_, err := svc.ActiveTokens(context.Background())
	require.ErrorIs(t, err, ErrNoActiveAccount)
	assert.Zero(t, api.callCount())
}

func TestServiceActiveTokensCached(t *testing.T) {
	svc, api := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddAccount(ctx, "6281111111111", "rt-1"))
	require.NoError(t, svc.SetActive(ctx, "6281111111111"))

	tok, err := svc.ActiveTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6281111111111", tok.PhoneNumber)
	assert.Equal(t, "id-rt-1", tok.IDToken)

	// Second call with the same active account reuses the cached token.
	tok, err = svc.ActiveTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-rt-1", tok.IDToken)
	assert.Equal(t, 1, api.callCount())
}

func TestServiceActiveTokensRederivedAfterSwitch(t *testing.T) {
	svc, api := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddAccount(ctx, "6281111111111", "rt-1"))
	require.NoError(t, svc.AddAccount(ctx, "6282222222222", "rt-2"))
	require.NoError(t, svc.SetActive(ctx, "6281111111111"))

	_, err := svc.ActiveTokens(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.SetActive(ctx, "6282222222222"))
	tok, err := svc.ActiveTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6282222222222", tok.PhoneNumber)
	assert.Equal(t, "id-rt-2", tok.IDToken)
	assert.Equal(t, 2, api.callCount())
}

func TestServiceActiveTokensInvalidatedByReplacedToken(t *testing.T) {
	svc, api := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddAccount(ctx, "6281111111111", "rt-old"))
	require.NoError(t, svc.SetActive(ctx, "6281111111111"))

	_, err := svc.ActiveTokens(ctx)
	require.NoError(t, err)

	// Re-login on the same number replaces the refresh token and must force
	// a fresh exchange.
	require.NoError(t, svc.AddAccount(ctx, "6281111111111", "rt-new"))
	tok, err := svc.ActiveTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-rt-new", tok.IDToken)
	assert.Equal(t, 2, api.callCount())
}

func TestServiceActiveTokensExchangeFailure(t *testing.T) {
	svc, api := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddAccount(ctx, "6281111111111", "rt-1"))
	require.NoError(t, svc.SetActive(ctx, "6281111111111"))

	wantErr := errors.New("exchange down")
	api.err = wantErr
	_, err := svc.ActiveTokens(ctx)
	require.ErrorIs(t, err, wantErr)

	// A failed exchange leaves nothing cached: the next call retries.
	api.err = nil
	tok, err := svc.ActiveTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-rt-1", tok.IDToken)
	assert.Equal(t, 2, api.callCount())
}

func TestServiceEnsureActive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Empty store: nothing to activate.
	require.NoError(t, svc.EnsureActive(ctx))
	_, err := svc.ActiveAccount(ctx)
	require.ErrorIs(t, err, ErrNoActiveAccount)

	require.NoError(t, svc.AddAccount(ctx, "6281111111111", "rt-1"))
	require.NoError(t, svc.AddAccount(ctx, "6282222222222", "rt-2"))

	require.NoError(t, svc.EnsureActive(ctx))
	acc, err := svc.ActiveAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6281111111111", acc.PhoneNumber)

	// Already active: a later call must not repoint.
	require.NoError(t, svc.SetActive(ctx, "6282222222222"))
	require.NoError(t, svc.EnsureActive(ctx))
	acc, err = svc.ActiveAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6282222222222", acc.PhoneNumber)
}

func TestServiceListAccountsMarksActive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddAccount(ctx, "6281111111111", "rt-1"))
	require.NoError(t, svc.AddAccount(ctx, "6282222222222", "rt-2"))
	require.NoError(t, svc.SetActive(ctx, "6282222222222"))

	infos, err := svc.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.False(t, infos[0].Active)
	assert.True(t, infos[1].Active)
}

var _ TokenExchanger = (*fakeExchanger)(nil)
