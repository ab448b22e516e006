// Package sender runs outbound Telegram calls on a worker pool with retry
// on transient network failures.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/aprizal/myxl-bot/core/logger"
	"github.com/aprizal/myxl-bot/core/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull means the queue is saturated and the task was rejected.
	ErrQueueFull = errors.New("telegram sender: queue full")

	botTokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options tunes the outbound dispatcher. Zero values pick sane defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the total time spent on one task including retries.
	MaxDuration time.Duration
}

func (o *Options) applyDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
}

// task is one outbound call together with the request context it belongs to.
type task struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
type Dispatcher struct {
	opts  Options
	queue chan task
	quit  chan struct{}
	stop  sync.Once
	wg    sync.WaitGroup
	fails atomic.Uint64
}

// NewDispatcher starts the worker pool immediately.
func NewDispatcher(opts Options) *Dispatcher {
	opts.applyDefaults()
	d := &Dispatcher{
		opts:  opts,
		queue: make(chan task, opts.QueueSize),
		quit:  make(chan struct{}),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for t := range d.queue {
				d.process(t)
			}
		}()
	}
	return d
}

// Enqueue schedules run for asynchronous execution. The closure must be
// idempotent if retries are desired. It never blocks: a saturated queue
// yields ErrQueueFull so the caller can fall back to a synchronous send.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	select {
	case <-d.quit:
		return ErrQueueClosed
	default:
	}
	select {
	case d.queue <- task{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of tasks that exhausted their retries.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.fails.Load()
}

// Close stops accepting tasks and waits for workers to drain the queue.
func (d *Dispatcher) Close() {
	d.stop.Do(func() {
		close(d.quit)
		close(d.queue)
		d.wg.Wait()
	})
}

func (d *Dispatcher) process(t task) {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	deadline, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, "tg.sender", "send.start", d.taskAttrs(ctx, t)...)

	attempts := d.opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		if err := deadline.Err(); err != nil {
			d.fail(ctx, t, err, attempt, start)
			return
		}

		err := t.run()
		if err == nil {
			attrs := d.taskAttrs(ctx, t)
			if attempt > 1 {
				attrs = append(attrs, slog.Int("attempt", attempt))
			}
			attrs = append(attrs, slog.Int("elapsed_ms", elapsedMS(start)))
			level := logger.Debug
			event := "send.success"
			if attempt > 1 {
				level = logger.Info
				event = "send.retry.success"
			}
			level(ctx, "tg.sender", event, attrs...)
			return
		}

		if !netutil.ShouldRetry(err) || attempt == attempts {
			d.fail(ctx, t, err, attempt, start)
			return
		}

		wait := d.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-deadline.Done():
			timer.Stop()
			d.fail(ctx, t, deadline.Err(), attempt, start)
			return
		case <-timer.C:
		}
		logger.Debug(ctx, "tg.sender", "send.retry.backoff",
			append(d.taskAttrs(ctx, t),
				slog.Int("attempt", attempt),
				slog.Duration("delay", wait),
			)...,
		)
	}
}

func (d *Dispatcher) fail(ctx context.Context, t task, err error, attempts int, start time.Time) {
	d.fails.Add(1)
	attrs := d.taskAttrs(ctx, t)
	attrs = append(attrs,
		slog.String("error", redactError(err)),
		slog.String("error_kind", classifyError(err)),
		slog.Int("attempts", attempts),
		slog.Int("elapsed_ms", elapsedMS(start)),
	)
	logger.Error(ctx, "tg.sender", "send.fail", attrs...)
}

func (d *Dispatcher) taskAttrs(ctx context.Context, t task) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", t.action)}
	if t.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", t.endpoint))
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if id := logger.UpdateIDFrom(ctx); id != 0 {
		attrs = append(attrs, slog.Int("update_id", id))
	}
	if id := logger.ChatIDFrom(ctx); id != 0 {
		attrs = append(attrs, slog.Int64("chat_id", id))
	}
	if id := logger.UserIDFrom(ctx); id != 0 {
		attrs = append(attrs, slog.Int64("user_id", id))
	}
	return attrs
}

func elapsedMS(start time.Time) int {
	return int(logger.Took(start) / time.Millisecond)
}

// redactError strips bot tokens from error text before it reaches the logs.
func redactError(err error) string {
	if err == nil {
		return ""
	}
	return botTokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// classifyError buckets a send failure for the error_kind attribute.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case opErr.Timeout():
			return "timeout"
		case opErr.Op == "dial":
			return "dial"
		case opErr.Op == "read" || opErr.Op == "write":
			if kind := classifyError(opErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			if kind := classifyError(urlErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	switch status := telegramStatus(err); {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// telegramStatus extracts an HTTP-ish status code from telebot error types,
// falling back to the "(NNN)" suffix telebot puts in error strings.
func telegramStatus(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	msg := err.Error()
	open := strings.LastIndex(msg, "(")
	closing := strings.LastIndex(msg, ")")
	if open >= 0 && closing > open+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : closing])); convErr == nil {
			return code
		}
	}
	return 0
}
