package myxl

import "errors"

// Sentinel errors for the API operations. Callers match with errors.Is and
// map each one to a user-facing message.
var (
	ErrOTPRequestFailed    = errors.New("otp request failed")
	ErrOTPSubmitFailed     = errors.New("otp submit failed")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrBalanceFetchFailed  = errors.New("balance fetch failed")
)
