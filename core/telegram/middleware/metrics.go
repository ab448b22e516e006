package middleware

import (
	tele "gopkg.in/telebot.v4"
)

// Context keys for the per-update outbound counters.
const (
	ctxKeyMessages = "messages"
	ctxKeyKeyboard = "kb"
)

// countingContext wraps tele.Context so every outbound send bumps the
// message counter consumed by the handler summary line.
type countingContext struct{ tele.Context }

func (m countingContext) bump(opts []interface{}) {
	n, _ := m.Get(ctxKeyMessages).(int)
	m.Set(ctxKeyMessages, n+1)
	if carriesKeyboard(opts) {
		m.Set(ctxKeyKeyboard, true)
	}
}

func carriesKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (m countingContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.bump(opts)
	}
	return err
}

func (m countingContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.bump(opts)
	}
	return err
}

func (m countingContext) Edit(what interface{}, opts ...interface{}) error {
	err := m.Context.Edit(what, opts...)
	if err == nil {
		m.bump(opts)
	}
	return err
}

func (m countingContext) EditOrSend(what interface{}, opts ...interface{}) error {
	err := m.Context.EditOrSend(what, opts...)
	if err == nil {
		m.bump(opts)
	}
	return err
}

// MessageMetricsMiddleware instruments the context so the summary line can
// report how many messages a handler produced and whether any carried a
// keyboard.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set(ctxKeyMessages, 0)
		c.Set(ctxKeyKeyboard, false)
		return next(countingContext{Context: c})
	}
}

// GetCounters reads the message count and keyboard flag back out.
func GetCounters(c tele.Context) (int, bool) {
	msgs, _ := c.Get(ctxKeyMessages).(int)
	kb, _ := c.Get(ctxKeyKeyboard).(bool)
	return msgs, kb
}
