package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprizal/myxl-bot/auth"
	"github.com/aprizal/myxl-bot/myxl"
	"github.com/aprizal/myxl-bot/session"
)

type stubAPI struct{}

func (stubAPI) RequestOTP(_ context.Context, phoneNumber string) (string, error) {
	return "sub-" + phoneNumber, nil
}

func (stubAPI) SubmitOTP(_ context.Context, phoneNumber, _ string) (myxl.TokenPair, error) {
	return myxl.TokenPair{RefreshToken: "rt-" + phoneNumber}, nil
}

type accountsStub struct{}

func (accountsStub) AddAccount(context.Context, string, string) error { return nil }
func (accountsStub) SetActive(context.Context, string) error          { return nil }
func (accountsStub) ListAccounts(context.Context) ([]auth.AccountInfo, error) {
	return nil, nil
}

// TestFlowReplyMarksInFlowReplies drives a real machine through the same
// reply wiring replyFor builds: the markup decision reads the machine's
// flow state from inside the reply callback.
func TestFlowReplyMarksInFlowReplies(t *testing.T) {
	const userID = int64(7)
	m := session.NewMachine(session.NewRegistry(), stubAPI{}, accountsStub{})

	var plain, cancelable []string
	reply := flowReply(m.InProgress, userID,
		func(text string) error {
			plain = append(plain, text)
			return nil
		},
		func(text string) error {
			cancelable = append(cancelable, text)
			return nil
		})

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- m.BeginLogin(ctx, userID, reply) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first reply of the login flow never returned")
	}

	require.NoError(t, m.HandleText(ctx, userID, "6281234567890", reply))
	require.NoError(t, m.HandleText(ctx, userID, "123456", reply))

	// Every mid-flow reply carries the cancel button; the final
	// confirmation, sent after the flow ended, does not.
	require.Len(t, cancelable, 4)
	assert.Contains(t, cancelable[0], "phone number")
	require.Len(t, plain, 1)
	assert.Contains(t, plain[0], "Login succeeded")
	assert.False(t, m.InProgress(userID))
}

func TestFlowReplyIdleUserGetsPlainText(t *testing.T) {
	const userID = int64(7)
	m := session.NewMachine(session.NewRegistry(), stubAPI{}, accountsStub{})

	var plain, cancelable []string
	reply := flowReply(m.InProgress, userID,
		func(text string) error {
			plain = append(plain, text)
			return nil
		},
		func(text string) error {
			cancelable = append(cancelable, text)
			return nil
		})

	require.NoError(t, m.HandleText(context.Background(), userID, "hello", reply))
	assert.Empty(t, cancelable)
	require.Len(t, plain, 1)
	assert.Contains(t, plain[0], "/login")
}

func TestFlowReplyCancelEndsMarkup(t *testing.T) {
	const userID = int64(7)
	m := session.NewMachine(session.NewRegistry(), stubAPI{}, accountsStub{})

	var plain, cancelable []string
	reply := flowReply(m.InProgress, userID,
		func(text string) error {
			plain = append(plain, text)
			return nil
		},
		func(text string) error {
			cancelable = append(cancelable, text)
			return nil
		})

	ctx := context.Background()
	require.NoError(t, m.BeginLogin(ctx, userID, reply))
	require.NoError(t, m.Cancel(ctx, userID, reply))

	require.Len(t, cancelable, 1)
	require.Len(t, plain, 1)
	assert.Contains(t, plain[0], "Cancelled")
}
