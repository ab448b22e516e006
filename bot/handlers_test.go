package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aprizal/myxl-bot/auth"
	"github.com/aprizal/myxl-bot/myxl"
)

func TestFormatThousands(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.000"},
		{25000, "25.000"},
		{1234567, "1.234.567"},
		{-25000, "-25.000"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatThousands(tc.in), "input %d", tc.in)
	}
}

func TestFormatExpiry(t *testing.T) {
	assert.Equal(t, "unknown", formatExpiry(0))
	assert.Equal(t, "unknown", formatExpiry(-5))
	// 2026-03-14T00:00:00Z
	assert.Contains(t, formatExpiry(1773446400), "2026")
}

func TestBalanceMessage(t *testing.T) {
	msg := balanceMessage(
		auth.Tokens{PhoneNumber: "6281234567890"},
		myxl.Balance{Remaining: 25000, ExpiredAt: 1773446400},
	)
	assert.Contains(t, msg, "Account 6281234567890")
	assert.Contains(t, msg, "Rp25.000")
	assert.Contains(t, msg, "Valid until:")
}
