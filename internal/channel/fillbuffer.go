// Package channel implements the five typed inter-module channel kinds:
// FillBuffer, FiFoBuffer, DecoderBuffer, PictureBuffer and Signal. Each
// suspends the calling task through a kernel.Handle rather than blocking an
// OS thread, so channel operations compose with the rest of the
// cooperative scheduling model.
package channel

import "github.com/dvbsim/receiver/internal/kernel"

// FillBuffer is a fixed-element-capacity byte-bucket channel that strictly
// alternates between a filling state (writes admitted, reads blocked) and a
// draining state (writes blocked, reads admitted), flipping at full and
// empty respectively.
type FillBuffer[T any] struct {
	capacity int
	buf      []T
	draining bool
	writeIdx int
	readIdx  int
	count    int

	emptyEvent *kernel.Event
	fullEvent  *kernel.Event

	fillTrace func(int64)
}

// NewFillBuffer creates a FillBuffer holding up to capacity elements.
func NewFillBuffer[T any](capacity int) *FillBuffer[T] {
	return &FillBuffer[T]{
		capacity:   capacity,
		buf:        make([]T, capacity),
		emptyEvent: kernel.NewEvent("fillbuffer.empty"),
		fullEvent:  kernel.NewEvent("fillbuffer.full"),
	}
}

// SetFillTrace wires a trace setter invoked with the live element count on
// every write and read.
func (b *FillBuffer[T]) SetFillTrace(fn func(int64)) { b.fillTrace = fn }

func (b *FillBuffer[T]) trace() {
	if b.fillTrace != nil {
		b.fillTrace(int64(b.count))
	}
}

// Write admits an element once the buffer is filling (not yet at
// capacity); it blocks on emptyEvent while draining.
func (b *FillBuffer[T]) Write(h *kernel.Handle, v T) {
	for b.draining {
		h.WaitEvent(b.emptyEvent)
	}
	b.buf[b.writeIdx] = v
	b.writeIdx++
	b.count++
	if b.count == b.capacity {
		b.draining = true
		b.readIdx = 0
		h.Notify(b.fullEvent)
	}
	b.trace()
}

// Read admits an element once the buffer is draining (at capacity); it
// blocks on fullEvent while filling. Every read is followed by a forced
// zero-time wait so that observers see a stable delta-cycle boundary
// between successive reads.
func (b *FillBuffer[T]) Read(h *kernel.Handle) T {
	for !b.draining {
		h.WaitEvent(b.fullEvent)
	}
	v := b.buf[b.readIdx]
	var zero T
	b.buf[b.readIdx] = zero
	b.readIdx++
	b.count--
	if b.count == 0 {
		b.draining = false
		b.writeIdx = 0
		h.Notify(b.emptyEvent)
	}
	b.trace()
	h.WaitDelay(0)
	return v
}

// Reset clears every stored element and returns the buffer to its initial
// filling state. The original's reset() only rewound its indices without
// releasing buffered pointers; this drops the stored references too so
// nothing keeps an in-flight packet alive after a reset.
func (b *FillBuffer[T]) Reset() {
	var zero T
	for i := range b.buf {
		b.buf[i] = zero
	}
	b.draining = false
	b.writeIdx = 0
	b.readIdx = 0
	b.count = 0
}

// Fill returns the current element count, for invariant checks and tests.
func (b *FillBuffer[T]) Fill() int { return b.count }
