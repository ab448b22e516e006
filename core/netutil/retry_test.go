package netutil

import (
	"errors"
	"net"
	"net/url"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

func TestShouldRetryNil(t *testing.T) {
	if ShouldRetry(nil) {
		t.Fatal("nil error must not be retryable")
	}
}

func TestShouldRetryTimeout(t *testing.T) {
	if !ShouldRetry(timeoutErr{}) {
		t.Fatal("timeout error must be retryable")
	}
}

func TestShouldRetryDial(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	if !ShouldRetry(err) {
		t.Fatal("dial error must be retryable")
	}
}

func TestShouldRetryWrappedURLError(t *testing.T) {
	err := &url.Error{Op: "Post", URL: "https://api.example", Err: timeoutErr{}}
	if !ShouldRetry(err) {
		t.Fatal("url-wrapped timeout must be retryable")
	}
}

func TestShouldRetryPlainError(t *testing.T) {
	if ShouldRetry(errors.New("bad request")) {
		t.Fatal("plain error must not be retryable")
	}
}
