package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprizal/myxl-bot/auth"
	"github.com/aprizal/myxl-bot/myxl"
)

type fakeAPI struct {
	requestErr  error
	submitErr   error
	submitCalls int
	lastPhone   string
	lastCode    string
}

func (f *fakeAPI) RequestOTP(_ context.Context, phoneNumber string) (string, error) {
	if f.requestErr != nil {
		return "", f.requestErr
	}
	f.lastPhone = phoneNumber
	return "sub-" + phoneNumber, nil
}

func (f *fakeAPI) SubmitOTP(_ context.Context, phoneNumber, code string) (myxl.TokenPair, error) {
	f.submitCalls++
	f.lastPhone = phoneNumber
	f.lastCode = code
	if f.submitErr != nil {
		return myxl.TokenPair{}, f.submitErr
	}
	return myxl.TokenPair{RefreshToken: "rt-" + phoneNumber, IDToken: "id-" + phoneNumber}, nil
}

type fakeAccounts struct {
	accounts  []auth.AccountInfo
	listErr   error
	setErr    error
	added     []string
	activated []string
}

func (f *fakeAccounts) AddAccount(_ context.Context, phoneNumber, refreshToken string) error {
	f.added = append(f.added, phoneNumber+"="+refreshToken)
	return nil
}

func (f *fakeAccounts) SetActive(_ context.Context, phoneNumber string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.activated = append(f.activated, phoneNumber)
	return nil
}

func (f *fakeAccounts) ListAccounts(_ context.Context) ([]auth.AccountInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.accounts, nil
}

type replyRecorder struct {
	sent []string
}

func (r *replyRecorder) fn() ReplyFunc {
	return func(text string) error {
		r.sent = append(r.sent, text)
		return nil
	}
}

func newTestMachine(api *fakeAPI, accounts *fakeAccounts) (*Machine, *Registry) {
	reg := NewRegistry()
	return NewMachine(reg, api, accounts), reg
}

const uid = int64(42)

func TestLoginHappyPath(t *testing.T) {
	api := &fakeAPI{}
	accounts := &fakeAccounts{}
	m, reg := newTestMachine(api, accounts)
	ctx := context.Background()
	rec := &replyRecorder{}

	require.NoError(t, m.BeginLogin(ctx, uid, rec.fn()))
	assert.Equal(t, StateAwaitPhone, reg.StateOf(uid))

	require.NoError(t, m.HandleText(ctx, uid, "6281234567890", rec.fn()))
	assert.Equal(t, StateAwaitOTP, reg.StateOf(uid))

	require.NoError(t, m.HandleText(ctx, uid, "123456", rec.fn()))
	assert.Equal(t, StateIdle, reg.StateOf(uid))
	assert.False(t, m.InProgress(uid))

	assert.Equal(t, []string{"6281234567890=rt-6281234567890"}, accounts.added)
	assert.Equal(t, []string{"6281234567890"}, accounts.activated)
	assert.Equal(t, "123456", api.lastCode)

	// Observable reply order for a full login.
	require.Len(t, rec.sent, 5)
	assert.Contains(t, rec.sent[0], "phone number")
	assert.Contains(t, rec.sent[1], "Requesting")
	assert.Contains(t, rec.sent[2], "OTP was sent")
	assert.Contains(t, rec.sent[3], "Verifying")
	assert.Contains(t, rec.sent[4], "Login succeeded")
}

func TestLoginRejectsBadPhoneAndStays(t *testing.T) {
	m, reg := newTestMachine(&fakeAPI{}, &fakeAccounts{})
	ctx := context.Background()
	rec := &replyRecorder{}

	require.NoError(t, m.BeginLogin(ctx, uid, rec.fn()))

	err := m.HandleText(ctx, uid, "0812345", rec.fn())
	require.ErrorIs(t, err, ErrInvalidPhoneNumber)
	assert.Equal(t, StateAwaitPhone, reg.StateOf(uid))

	// A valid number is still accepted afterwards.
	require.NoError(t, m.HandleText(ctx, uid, "6281234567890", rec.fn()))
	assert.Equal(t, StateAwaitOTP, reg.StateOf(uid))
}

func TestLoginRejectsBadOTPThenAccepts(t *testing.T) {
	api := &fakeAPI{}
	m, reg := newTestMachine(api, &fakeAccounts{})
	ctx := context.Background()
	rec := &replyRecorder{}

	require.NoError(t, m.BeginLogin(ctx, uid, rec.fn()))
	require.NoError(t, m.HandleText(ctx, uid, "6281234567890", rec.fn()))

	err := m.HandleText(ctx, uid, "12a456", rec.fn())
	require.ErrorIs(t, err, ErrInvalidOTPFormat)
	assert.Equal(t, StateAwaitOTP, reg.StateOf(uid))
	assert.Zero(t, api.submitCalls)

	require.NoError(t, m.HandleText(ctx, uid, "123456", rec.fn()))
	assert.Equal(t, 1, api.submitCalls)
	assert.Equal(t, StateIdle, reg.StateOf(uid))
}

func TestLoginOTPRequestFailureEndsFlow(t *testing.T) {
	wantErr := fmt.Errorf("%w: http 502", myxl.ErrOTPRequestFailed)
	m, reg := newTestMachine(&fakeAPI{requestErr: wantErr}, &fakeAccounts{})
	ctx := context.Background()
	rec := &replyRecorder{}

	require.NoError(t, m.BeginLogin(ctx, uid, rec.fn()))
	err := m.HandleText(ctx, uid, "6281234567890", rec.fn())
	require.ErrorIs(t, err, myxl.ErrOTPRequestFailed)
	assert.Equal(t, StateIdle, reg.StateOf(uid))
	assert.Contains(t, rec.sent[len(rec.sent)-1], "/login")
}

func TestLoginOTPSubmitFailureEndsFlow(t *testing.T) {
	api := &fakeAPI{submitErr: myxl.ErrOTPSubmitFailed}
	accounts := &fakeAccounts{}
	m, reg := newTestMachine(api, accounts)
	ctx := context.Background()
	rec := &replyRecorder{}

	require.NoError(t, m.BeginLogin(ctx, uid, rec.fn()))
	require.NoError(t, m.HandleText(ctx, uid, "6281234567890", rec.fn()))

	err := m.HandleText(ctx, uid, "123456", rec.fn())
	require.ErrorIs(t, err, myxl.ErrOTPSubmitFailed)
	assert.Equal(t, StateIdle, reg.StateOf(uid))
	assert.Empty(t, accounts.added)
}

func TestSwitchSelectsFromSnapshot(t *testing.T) {
	accounts := &fakeAccounts{accounts: []auth.AccountInfo{
		{Account: auth.Account{PhoneNumber: "6281111111111"}},
		{Account: auth.Account{PhoneNumber: "6282222222222"}, Active: true},
	}}
	m, reg := newTestMachine(&fakeAPI{}, accounts)
	ctx := context.Background()
	rec := &replyRecorder{}

	require.NoError(t, m.BeginSwitch(ctx, uid, rec.fn()))
	assert.Equal(t, StateAwaitAccount, reg.StateOf(uid))
	assert.Contains(t, rec.sent[0], "1. 6281111111111")
	assert.Contains(t, rec.sent[0], "2. 6282222222222 (active)")

	// The store changing between listing and selection must not shift the
	// meaning of the index the user sends.
	accounts.accounts = append([]auth.AccountInfo{
		{Account: auth.Account{PhoneNumber: "6280000000000"}},
	}, accounts.accounts...)

	require.NoError(t, m.HandleText(ctx, uid, "1", rec.fn()))
	assert.Equal(t, []string{"6281111111111"}, accounts.activated)
	assert.Equal(t, StateIdle, reg.StateOf(uid))
}

func TestSwitchEmptyStore(t *testing.T) {
	m, reg := newTestMachine(&fakeAPI{}, &fakeAccounts{})
	ctx := context.Background()
	rec := &replyRecorder{}

	require.NoError(t, m.BeginSwitch(ctx, uid, rec.fn()))
	assert.Equal(t, StateIdle, reg.StateOf(uid))
	assert.Contains(t, rec.sent[0], "No stored accounts")
}

func TestSwitchInvalidSelectionEndsFlow(t *testing.T) {
	accounts := &fakeAccounts{accounts: []auth.AccountInfo{
		{Account: auth.Account{PhoneNumber: "6281111111111"}},
	}}
	m, reg := newTestMachine(&fakeAPI{}, accounts)
	ctx := context.Background()

	for _, input := range []string{"0", "2", "abc"} {
		rec := &replyRecorder{}
		require.NoError(t, m.BeginSwitch(ctx, uid, rec.fn()))

		err := m.HandleText(ctx, uid, input, rec.fn())
		require.ErrorIs(t, err, ErrInvalidSelection, "input %q", input)
		assert.Equal(t, StateIdle, reg.StateOf(uid))
		assert.Empty(t, accounts.activated)
	}
}

func TestSwitchVanishedAccount(t *testing.T) {
	accounts := &fakeAccounts{
		accounts: []auth.AccountInfo{{Account: auth.Account{PhoneNumber: "6281111111111"}}},
		setErr:   auth.ErrAccountNotFound,
	}
	m, reg := newTestMachine(&fakeAPI{}, accounts)
	ctx := context.Background()
	rec := &replyRecorder{}

	require.NoError(t, m.BeginSwitch(ctx, uid, rec.fn()))
	err := m.HandleText(ctx, uid, "1", rec.fn())
	require.ErrorIs(t, err, auth.ErrAccountNotFound)
	assert.Equal(t, StateIdle, reg.StateOf(uid))
	assert.Contains(t, rec.sent[len(rec.sent)-1], "no longer exists")
}

func TestIdleFreeTextHint(t *testing.T) {
	m, _ := newTestMachine(&fakeAPI{}, &fakeAccounts{})
	rec := &replyRecorder{}

	require.NoError(t, m.HandleText(context.Background(), uid, "hello", rec.fn()))
	require.Len(t, rec.sent, 1)
	assert.Contains(t, rec.sent[0], "/login")
	assert.Contains(t, rec.sent[0], "/switch")
}

func TestCancel(t *testing.T) {
	m, reg := newTestMachine(&fakeAPI{}, &fakeAccounts{})
	ctx := context.Background()
	rec := &replyRecorder{}

	require.NoError(t, m.Cancel(ctx, uid, rec.fn()))
	assert.Contains(t, rec.sent[0], "Nothing to cancel")

	require.NoError(t, m.BeginLogin(ctx, uid, rec.fn()))
	require.NoError(t, m.Cancel(ctx, uid, rec.fn()))
	assert.Equal(t, StateIdle, reg.StateOf(uid))
	assert.False(t, m.InProgress(uid))
}

func TestReplyDeliveryErrorPropagates(t *testing.T) {
	m, _ := newTestMachine(&fakeAPI{}, &fakeAccounts{})
	wantErr := errors.New("send failed")
	failing := func(string) error { return wantErr }

	err := m.BeginLogin(context.Background(), uid, failing)
	require.ErrorIs(t, err, wantErr)
}

// The bot layer decides reply markup by asking the machine whether a flow is
// in progress, from inside the reply callback. That read must not block on
// the per-user lock the machine holds while replying.
func TestReplyCanObserveFlowProgress(t *testing.T) {
	m, _ := newTestMachine(&fakeAPI{}, &fakeAccounts{})
	ctx := context.Background()

	var seen []bool
	reply := func(string) error {
		seen = append(seen, m.InProgress(uid))
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- m.BeginLogin(ctx, uid, reply) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reply reading InProgress did not return")
	}
	require.Equal(t, []bool{true}, seen)

	// Every reply of the remaining flow reads the flow state: in progress
	// until the final confirmation, idle on that one.
	require.NoError(t, m.HandleText(ctx, uid, "6281234567890", reply))
	require.NoError(t, m.HandleText(ctx, uid, "123456", reply))
	assert.Equal(t, []bool{true, true, true, true, false}, seen)
}
