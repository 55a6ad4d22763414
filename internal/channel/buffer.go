package channel

import "github.com/dvbsim/receiver/internal/kernel"

// Buffer is the sc_buffer-equivalent signal channel: like Signal, but it
// notifies unconditionally on every write instead of only on a value
// change. It carries the non-comparable frame hand-off as well as the
// stc request/reply samples, where every write is a meaningful new sample
// even when it equals the previous value.
type Buffer[T any] struct {
	val     T
	changed *kernel.Event
}

// NewBuffer creates an unconditionally-notifying buffer channel.
func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{changed: kernel.NewEvent("buffer.changed")}
}

// Write stores v and notifies at the next delta cycle, regardless of
// whether v differs from the previous value.
func (b *Buffer[T]) Write(h *kernel.Handle, v T) {
	b.val = v
	h.NotifyZero(b.changed)
}

// Read returns the current value without blocking.
func (b *Buffer[T]) Read() T { return b.val }

// WaitChange suspends the calling task until the next write.
func (b *Buffer[T]) WaitChange(h *kernel.Handle) { h.WaitEvent(b.changed) }
