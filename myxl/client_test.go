package myxl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/aprizal/myxl-bot/core/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(coreconfig.MyXLConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
	})
}

func respond(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"data":   data,
	}))
}

func TestClientRequestOTP(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		respond(t, w, map[string]string{"subscriber_id": "sub-1"})
	})

	subID, err := c.RequestOTP(context.Background(), "6281234567890")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", subID)
	assert.Equal(t, "/auth/otp/request", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "6281234567890", gotBody["msisdn"])
}

func TestClientRequestOTPGatewayError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.RequestOTP(context.Background(), "6281234567890")
	require.ErrorIs(t, err, ErrOTPRequestFailed)
}

func TestClientSubmitOTP(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, TokenPair{RefreshToken: "rt", IDToken: "id"})
	})

	pair, err := c.SubmitOTP(context.Background(), "6281234567890", "123456")
	require.NoError(t, err)
	assert.Equal(t, "rt", pair.RefreshToken)
	assert.Equal(t, "id", pair.IDToken)
}

func TestClientSubmitOTPRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"error","message":"wrong code"}`))
	})

	_, err := c.SubmitOTP(context.Background(), "6281234567890", "123456")
	require.ErrorIs(t, err, ErrOTPSubmitFailed)
	assert.Contains(t, err.Error(), "wrong code")
}

func TestClientSubmitOTPIncompletePair(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, TokenPair{RefreshToken: "rt"})
	})

	_, err := c.SubmitOTP(context.Background(), "6281234567890", "123456")
	require.ErrorIs(t, err, ErrOTPSubmitFailed)
}

func TestClientExchangeToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rt", body["refresh_token"])
		respond(t, w, map[string]string{"id_token": "fresh-id"})
	})

	id, err := c.ExchangeToken(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "fresh-id", id)
}

func TestClientExchangeTokenFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ExchangeToken(context.Background(), "rt")
	require.ErrorIs(t, err, ErrTokenExchangeFailed)
}

func TestClientGetBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, Balance{Remaining: 25000, ExpiredAt: 1767225600})
	})

	bal, err := c.GetBalance(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, int64(25000), bal.Remaining)
	assert.Equal(t, int64(1767225600), bal.ExpiredAt)
}

func TestClientGetBalanceFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.GetBalance(context.Background(), "id-token")
	require.ErrorIs(t, err, ErrBalanceFetchFailed)
}
