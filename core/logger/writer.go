package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// wmsg is one unit of work for the writer goroutine: either a line to fan
// out or a flush request awaiting an ack.
type wmsg struct {
	line []byte
	ack  chan error
}

// asyncWriter decouples log formatting from sink IO. A single goroutine owns
// the buffered sinks; callers only touch the channel.
type asyncWriter struct {
	in    chan wmsg
	done  chan struct{}
	close sync.Once

	mu    sync.Mutex
	sinks []*bufio.Writer
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	var sinks []*bufio.Writer
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	aw := &asyncWriter{
		in:    make(chan wmsg, 256),
		done:  make(chan struct{}),
		sinks: sinks,
	}
	go aw.run()
	return aw
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for m := range w.in {
		if m.ack != nil {
			m.ack <- w.flushSinks()
			continue
		}
		if len(m.line) == 0 {
			continue
		}
		if err := w.fanOut(m.line); err != nil {
			w.recordErr(err)
		}
	}
	w.recordErr(w.flushSinks())
}

// Write queues one formatted line. It blocks when the queue is full: log
// lines are not dropped under pressure.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.stickyErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	line := append([]byte(nil), p...)
	w.in <- wmsg{line: line}
	return nil
}

// Flush forces buffered content out to every sink and waits for the result.
func (w *asyncWriter) Flush() error {
	if err := w.stickyErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.in <- wmsg{ack: ack}
	return <-ack
}

// Close drains the queue, flushes, and reports the first write error seen.
func (w *asyncWriter) Close() error {
	w.close.Do(func() { close(w.in) })
	<-w.done
	return w.stickyErr()
}

func (w *asyncWriter) fanOut(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if _, err := s.Write(line); err != nil {
			return err
		}
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushSinks() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, s := range w.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) stickyErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) recordErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
