package channel

import "github.com/dvbsim/receiver/internal/kernel"

// FiFoBuffer is a bounded element-count FIFO of owned byte slices. Blocking
// writes defensively copy the payload; reads hand ownership of the stored
// slice to the reader without copying.
type FiFoBuffer struct {
	capacity int
	queue    [][]byte

	notEmpty *kernel.Event
	notFull  *kernel.Event

	fillTrace func(int64)
}

// NewFiFoBuffer creates a FiFoBuffer holding up to capacity elements.
func NewFiFoBuffer(capacity int) *FiFoBuffer {
	return &FiFoBuffer{
		capacity: capacity,
		notEmpty: kernel.NewEvent("fifobuffer.notEmpty"),
		notFull:  kernel.NewEvent("fifobuffer.notFull"),
	}
}

func (f *FiFoBuffer) SetFillTrace(fn func(int64)) { f.fillTrace = fn }

func (f *FiFoBuffer) trace() {
	if f.fillTrace != nil {
		f.fillTrace(int64(len(f.queue)))
	}
}

// Write blocks while the buffer is at capacity, then enqueues a defensive
// copy of data.
func (f *FiFoBuffer) Write(h *kernel.Handle, data []byte) {
	for len(f.queue) >= f.capacity {
		h.WaitEvent(f.notFull)
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	f.queue = append(f.queue, owned)
	h.Notify(f.notEmpty)
	f.trace()
}

// NBWrite enqueues a defensive copy of data without blocking, returning
// false if the buffer was already at capacity.
func (f *FiFoBuffer) NBWrite(h *kernel.Handle, data []byte) bool {
	if len(f.queue) >= f.capacity {
		return false
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	f.queue = append(f.queue, owned)
	h.Notify(f.notEmpty)
	f.trace()
	return true
}

// Read blocks while the buffer is empty, then dequeues and returns the
// stored slice, transferring ownership to the caller.
func (f *FiFoBuffer) Read(h *kernel.Handle) []byte {
	for len(f.queue) == 0 {
		h.WaitEvent(f.notEmpty)
	}
	v := f.queue[0]
	f.queue = f.queue[1:]
	h.Notify(f.notFull)
	f.trace()
	return v
}

// Reset empties the queue, releasing every buffered element.
func (f *FiFoBuffer) Reset() {
	f.queue = nil
}

// Fill returns the current element count.
func (f *FiFoBuffer) Fill() int { return len(f.queue) }
