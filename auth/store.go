package auth

import "context"

// Store is the durable registry of accounts plus the active-account pointer.
//
// Implementations must keep the persisted representation and the in-memory
// sequence in agreement after every successful mutating call, commit each
// mutation atomically, and serialize all access to their internal state.
// Insertion order of accounts is preserved across reloads.
type Store interface {
	// Load (re)reads the persisted account sequence into memory. It is
	// idempotent: reloading with no underlying change yields an identical
	// sequence.
	Load(ctx context.Context) error

	// Add inserts or replaces the account keyed by phoneNumber, then
	// persists. A repeated phone number overwrites the refresh token
	// without duplicating the entry.
	Add(ctx context.Context, phoneNumber, refreshToken string) error

	// SetActive points the active-account pointer at an existing account.
	// It fails with ErrAccountNotFound and leaves the previous pointer
	// untouched when the phone number is unknown.
	SetActive(ctx context.Context, phoneNumber string) error

	// Active returns the account the pointer references; ok is false when
	// no account is active.
	Active(ctx context.Context) (acc Account, ok bool, err error)

	// List returns the full account sequence in insertion order, annotated
	// with the active marker.
	List(ctx context.Context) ([]AccountInfo, error)
}
