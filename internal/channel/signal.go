package channel

import "github.com/dvbsim/receiver/internal/kernel"

// Signal is a latched sc_signal-equivalent channel: a scalar
// value whose writes notify a default event at the next delta cycle when
// the value actually changes, letting edge-driven readers (rising/falling
// edge detectors) observe a stable value during the same timestep.
type Signal[T comparable] struct {
	val     T
	changed *kernel.Event
}

// NewSignal creates a Signal holding an initial value.
func NewSignal[T comparable](initial T) *Signal[T] {
	return &Signal[T]{val: initial, changed: kernel.NewEvent("signal.changed")}
}

// Write updates the signal, deferring the change notification to the end
// of the current delta cycle. A write that does not change the value is a
// no-op, matching sc_signal's equality-gated update.
func (s *Signal[T]) Write(h *kernel.Handle, v T) {
	if v == s.val {
		return
	}
	s.val = v
	h.NotifyZero(s.changed)
}

// Read returns the current value without blocking.
func (s *Signal[T]) Read() T { return s.val }

// WaitChange suspends the calling task until the signal's value next
// changes.
func (s *Signal[T]) WaitChange(h *kernel.Handle) { h.WaitEvent(s.changed) }
