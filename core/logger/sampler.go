package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler admits numerator out of every denominator events. The window
// position is a single atomic counter, so Allow stays cheap on the debug path.
type ratioSampler struct {
	state atomic.Uint64 // high 32 bits numerator, low 32 bits denominator
	seq   atomic.Uint64
}

func newRatioSampler(numerator, denominator int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set replaces the sampling ratio. Non-positive values disable sampling so
// every event passes.
func (s *ratioSampler) Set(numerator, denominator int) {
	if numerator <= 0 || denominator <= 0 {
		s.state.Store(0)
		return
	}
	if numerator > denominator {
		numerator = denominator
	}
	s.state.Store(uint64(numerator)<<32 | uint64(uint32(denominator)))
	s.seq.Store(0)
}

// Allow reports whether the current event falls inside the admitted slice of
// the window.
func (s *ratioSampler) Allow() bool {
	packed := s.state.Load()
	if packed == 0 {
		return true
	}
	num := int(packed >> 32)
	den := int(uint32(packed))
	pos := int((s.seq.Add(1) - 1) % uint64(den))
	return pos < num
}

// parseRatioSpec understands "N/M" and plain "M" (meaning 1/M). Anything
// else disables sampling.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return n, d
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
