package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"log/slog"

	"github.com/aprizal/myxl-bot/auth"
	"github.com/aprizal/myxl-bot/core/logger"
	"github.com/aprizal/myxl-bot/myxl"
)

// Validation errors. They are surfaced to the user inside the machine; the
// returned value is for the caller's logging only.
var (
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
	ErrInvalidOTPFormat   = errors.New("invalid otp format")
	ErrInvalidSelection   = errors.New("invalid account selection")
)

// API is the slice of the gateway client the machine calls.
type API interface {
	RequestOTP(ctx context.Context, phoneNumber string) (string, error)
	SubmitOTP(ctx context.Context, phoneNumber, code string) (myxl.TokenPair, error)
}

// Accounts is the slice of the credential service the machine mutates.
type Accounts interface {
	AddAccount(ctx context.Context, phoneNumber, refreshToken string) error
	SetActive(ctx context.Context, phoneNumber string) error
	ListAccounts(ctx context.Context) ([]auth.AccountInfo, error)
}

// ReplyFunc delivers one outbound message to the user.
type ReplyFunc func(text string) error

// Machine runs the conversation flows on top of a Registry. All user-facing
// replies are sent by the machine itself; errors returned to the caller have
// already been explained to the user.
type Machine struct {
	reg      *Registry
	api      API
	accounts Accounts
}

func NewMachine(reg *Registry, api API, accounts Accounts) *Machine {
	return &Machine{reg: reg, api: api, accounts: accounts}
}

// InProgress reports whether the user has an active flow.
func (m *Machine) InProgress(userID int64) bool {
	return m.reg.InProgress(userID)
}

// BeginLogin starts the login flow, replacing any flow already in progress.
func (m *Machine) BeginLogin(ctx context.Context, userID int64, reply ReplyFunc) error {
	e := m.reg.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.put(&Session{State: StateAwaitPhone})
	m.logTransition(ctx, userID, StateAwaitPhone, "flow.login_begin")
	return reply("Send your XL phone number. It must start with 628 and be 10 to 14 digits.")
}

// BeginSwitch starts the account-switch flow. With an empty store it replies
// and leaves the user idle.
func (m *Machine) BeginSwitch(ctx context.Context, userID int64, reply ReplyFunc) error {
	e := m.reg.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	infos, err := m.accounts.ListAccounts(ctx)
	if err != nil {
		e.put(nil)
		if rerr := reply("Could not read stored accounts. Try again."); rerr != nil {
			return rerr
		}
		return err
	}
	if len(infos) == 0 {
		e.put(nil)
		return reply("No stored accounts yet. Use /login first.")
	}

	choices := make([]string, 0, len(infos))
	var b strings.Builder
	b.WriteString("Stored accounts:\n")
	for i, info := range infos {
		choices = append(choices, info.PhoneNumber)
		marker := ""
		if info.Active {
			marker = " (active)"
		}
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, info.PhoneNumber, marker)
	}
	b.WriteString("Reply with the number of the account to activate.")

	e.put(&Session{State: StateAwaitAccount, Choices: choices})
	m.logTransition(ctx, userID, StateAwaitAccount, "flow.switch_begin")
	return reply(b.String())
}

// Cancel aborts any flow in progress.
func (m *Machine) Cancel(ctx context.Context, userID int64, reply ReplyFunc) error {
	e := m.reg.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || e.session.State == StateIdle {
		return reply("Nothing to cancel.")
	}
	e.put(nil)
	m.logTransition(ctx, userID, StateIdle, "flow.cancel")
	return reply("Cancelled.")
}

// HandleText routes free text to the user's current state. Errors have
// already produced a user-facing reply when returned.
func (m *Machine) HandleText(ctx context.Context, userID int64, text string, reply ReplyFunc) error {
	e := m.reg.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	text = strings.TrimSpace(text)
	if e.session == nil || e.session.State == StateIdle {
		return reply("Use /login to add an account or /switch to change the active one.")
	}

	switch e.session.State {
	case StateAwaitPhone:
		return m.handlePhone(ctx, userID, e, text, reply)
	case StateAwaitOTP:
		return m.handleOTP(ctx, userID, e, text, reply)
	case StateAwaitAccount:
		return m.handleSelection(ctx, userID, e, text, reply)
	default:
		e.put(nil)
		return reply("Use /login to add an account or /switch to change the active one.")
	}
}

func (m *Machine) handlePhone(ctx context.Context, userID int64, e *userEntry, text string, reply ReplyFunc) error {
	if !myxl.ValidMSISDN(text) {
		if err := reply("That does not look like an XL number. It must start with 628 and be 10 to 14 digits."); err != nil {
			return err
		}
		return ErrInvalidPhoneNumber
	}

	if err := reply("Requesting an OTP..."); err != nil {
		return err
	}
	subID, err := m.api.RequestOTP(ctx, text)
	if err != nil {
		e.put(nil)
		m.logTransition(ctx, userID, StateIdle, "flow.otp_request_failed")
		if rerr := reply("Could not request an OTP for that number. Start over with /login."); rerr != nil {
			return rerr
		}
		return err
	}

	e.session.PendingPhone = text
	e.session.SubscriberID = subID
	e.advance(StateAwaitOTP)
	m.logTransition(ctx, userID, StateAwaitOTP, "flow.otp_sent")
	return reply("An OTP was sent to " + text + ". Enter the 6-digit code.")
}

func (m *Machine) handleOTP(ctx context.Context, userID int64, e *userEntry, text string, reply ReplyFunc) error {
	if !myxl.ValidOTP(text) {
		if err := reply("The code must be exactly 6 digits. Try again."); err != nil {
			return err
		}
		return ErrInvalidOTPFormat
	}

	phone := e.session.PendingPhone
	if err := reply("Verifying the code..."); err != nil {
		return err
	}
	pair, err := m.api.SubmitOTP(ctx, phone, text)
	if err != nil {
		e.put(nil)
		m.logTransition(ctx, userID, StateIdle, "flow.otp_submit_failed")
		if rerr := reply("Login failed. Start over with /login."); rerr != nil {
			return rerr
		}
		return err
	}

	saveErr := m.accounts.AddAccount(ctx, phone, pair.RefreshToken)
	if saveErr != nil {
		saveErr = fmt.Errorf("save account: %w", saveErr)
	} else {
		saveErr = m.accounts.SetActive(ctx, phone)
	}
	if saveErr != nil {
		e.put(nil)
		m.logTransition(ctx, userID, StateIdle, "flow.store_failed")
		if rerr := reply("Login succeeded but the account could not be saved. Start over with /login."); rerr != nil {
			return rerr
		}
		return saveErr
	}

	e.put(nil)
	m.logTransition(ctx, userID, StateIdle, "flow.login_done")
	return reply("Login succeeded. " + phone + " is now the active account.")
}

// handleSelection resolves the choice against the snapshot taken when the
// list was shown. Any invalid input ends the flow; the user must run /switch
// again.
func (m *Machine) handleSelection(ctx context.Context, userID int64, e *userEntry, text string, reply ReplyFunc) error {
	choices := e.session.Choices
	idx, convErr := strconv.Atoi(text)
	if convErr != nil || idx < 1 || idx > len(choices) {
		e.put(nil)
		m.logTransition(ctx, userID, StateIdle, "flow.bad_selection")
		if err := reply(fmt.Sprintf("Invalid selection. Send a number between 1 and %d. Run /switch to try again.", len(choices))); err != nil {
			return err
		}
		return ErrInvalidSelection
	}

	phone := choices[idx-1]
	e.put(nil)
	if err := m.accounts.SetActive(ctx, phone); err != nil {
		m.logTransition(ctx, userID, StateIdle, "flow.switch_failed")
		msg := "Could not switch accounts. Run /switch to try again."
		if errors.Is(err, auth.ErrAccountNotFound) {
			msg = "That account no longer exists. Run /switch to see the current list."
		}
		if rerr := reply(msg); rerr != nil {
			return rerr
		}
		return err
	}

	m.logTransition(ctx, userID, StateIdle, "flow.switch_done")
	return reply("Active account is now " + phone + ".")
}

func (m *Machine) logTransition(ctx context.Context, userID int64, next State, event string) {
	logger.Flow.LogAttrs(ctx, slog.LevelDebug, "state transition",
		slog.String("event", event),
		slog.Int64("user_id", userID),
		slog.String("state", string(next)),
	)
}
