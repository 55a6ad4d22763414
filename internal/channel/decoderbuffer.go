package channel

import "github.com/dvbsim/receiver/internal/kernel"

// DecoderEntry is one PES payload held in a DecoderBuffer, tagged with its
// PTS and its own byte size (size is tracked separately from len(Payload)
// so a future truncation discipline could differ, matching the original's
// explicit size field).
type DecoderEntry struct {
	Payload []byte
	PTS     int64
	Size    int
}

// DecoderBuffer is a bounded *byte*-capacity FIFO: writes block until
// fill+size <= capacity, reads block while empty, and fill is decremented
// by an entry's own size on read.
type DecoderBuffer struct {
	capacity int
	fill     int
	queue    []DecoderEntry

	notEmpty *kernel.Event
	notFull  *kernel.Event

	fillTrace func(int64)
}

// NewDecoderBuffer creates a DecoderBuffer with the given byte capacity.
func NewDecoderBuffer(capacity int) *DecoderBuffer {
	return &DecoderBuffer{
		capacity: capacity,
		notEmpty: kernel.NewEvent("decoderbuffer.notEmpty"),
		notFull:  kernel.NewEvent("decoderbuffer.notFull"),
	}
}

func (b *DecoderBuffer) SetFillTrace(fn func(int64)) { b.fillTrace = fn }

func (b *DecoderBuffer) trace() {
	if b.fillTrace != nil {
		b.fillTrace(int64(b.fill))
	}
}

// Write blocks until there is room for e.Size more bytes. An entry whose
// size exceeds capacity blocks forever (matches the documented boundary
// behaviour; the kernel's deadlock detector is the backstop).
func (b *DecoderBuffer) Write(h *kernel.Handle, e DecoderEntry) {
	for b.fill+e.Size > b.capacity {
		h.WaitEvent(b.notFull)
	}
	b.queue = append(b.queue, e)
	b.fill += e.Size
	h.Notify(b.notEmpty)
	b.trace()
}

// Read blocks while the buffer is empty, then dequeues the oldest entry.
func (b *DecoderBuffer) Read(h *kernel.Handle) DecoderEntry {
	for len(b.queue) == 0 {
		h.WaitEvent(b.notEmpty)
	}
	e := b.queue[0]
	b.queue = b.queue[1:]
	b.fill -= e.Size
	h.Notify(b.notFull)
	b.trace()
	return e
}

// Fill returns the current occupied byte count.
func (b *DecoderBuffer) Fill() int { return b.fill }
