package myxl

// Accepted subscriber numbers are XL prefix 628 plus 7 to 11 further digits.
const (
	msisdnPrefix = "628"
	msisdnMinLen = 10
	msisdnMaxLen = 14

	otpLen = 6
)

// ValidMSISDN reports whether s is an acceptable XL subscriber number:
// digits only, prefixed 628, total length between 10 and 14.
func ValidMSISDN(s string) bool {
	if len(s) < msisdnMinLen || len(s) > msisdnMaxLen {
		return false
	}
	if s[:len(msisdnPrefix)] != msisdnPrefix {
		return false
	}
	return allDigits(s)
}

// ValidOTP reports whether s is exactly six ASCII digits.
func ValidOTP(s string) bool {
	return len(s) == otpLen && allDigits(s)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
