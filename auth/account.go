// Package auth owns the durable registry of MyXL accounts, the active-account
// pointer, and the process-lifetime cache of exchanged session tokens.
package auth

import "errors"

// Account binds a phone number to its long-lived refresh token.
type Account struct {
	PhoneNumber  string
	RefreshToken string
}

// AccountInfo is an Account annotated with the active marker for listings.
type AccountInfo struct {
	Account
	Active bool
}

// Tokens holds session tokens derived for one account during this process
// lifetime. They are never persisted.
type Tokens struct {
	PhoneNumber string
	IDToken     string
}

var (
	// ErrAccountNotFound is returned when a phone number does not resolve
	// to a stored account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrNoActiveAccount is returned when an operation requires an active
	// account and none is set.
	ErrNoActiveAccount = errors.New("no active account")
)
