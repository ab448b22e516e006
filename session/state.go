// Package session drives the login and account-switch conversations. Each
// user has at most one session; every inbound message is processed to
// completion, including external calls, before the next one for the same
// user starts.
package session

// State identifies a conversation step.
type State string

const (
	StateIdle         State = "idle"
	StateAwaitPhone   State = "await_phone"
	StateAwaitOTP     State = "await_otp"
	StateAwaitAccount State = "await_account"
)

// Session holds one user's conversation state. PendingPhone is set while an
// OTP challenge is outstanding. Choices is the account snapshot shown during
// a switch; the later selection resolves against this snapshot, not against
// a re-read of the store.
type Session struct {
	State        State
	PendingPhone string
	SubscriberID string
	Choices      []string
}
