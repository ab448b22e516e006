// Package myxl is the client for the MyXL authentication and account API.
// It covers the OTP login exchange and the balance lookup used by the bot.
package myxl

// TokenPair is the result of a successful OTP submission.
type TokenPair struct {
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

// Balance is the remaining credit of an account. ExpiredAt is a unix
// timestamp in seconds.
type Balance struct {
	Remaining int64 `json:"remaining"`
	ExpiredAt int64 `json:"expired_at"`
}
