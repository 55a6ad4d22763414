package channel

import (
	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/kernel"
)

// WrapOffset guards nbread's window selection against 33-bit PTS
// wrap-around mis-selecting a stale-but-numerically-larger key. At 90kHz,
// 5e8 ticks is roughly 92.6 minutes.
const WrapOffset = 500000000

type pictureEntry struct {
	payload  []byte
	refcount int
}

// PictureBuffer is a bounded, PTS-keyed map of reference-counted picture
// entries. Each entry starts with refcount 2 (producer and consumer each
// hold one share); Finished decrements and deletes at zero.
type PictureBuffer struct {
	capacity    int
	entries     map[int64]*pictureEntry
	lastRequest int64

	deleteEvent *kernel.Event
	log         *log.Logger

	fillTrace func(int64)
}

// NewPictureBuffer creates a PictureBuffer holding up to capacity entries.
func NewPictureBuffer(capacity int, logger *log.Logger) *PictureBuffer {
	return &PictureBuffer{
		capacity:    capacity,
		entries:     make(map[int64]*pictureEntry),
		deleteEvent: kernel.NewEvent("picturebuffer.delete"),
		log:         logger,
	}
}

func (p *PictureBuffer) SetFillTrace(fn func(int64)) { p.fillTrace = fn }

func (p *PictureBuffer) trace() {
	if p.fillTrace != nil {
		p.fillTrace(int64(len(p.entries)))
	}
}

// Write blocks while the buffer is at capacity, then inserts payload keyed
// by pts. On a key collision it increments the key by one until free,
// logging a warning, and returns the key actually used.
func (p *PictureBuffer) Write(h *kernel.Handle, pts int64, payload []byte) int64 {
	for len(p.entries) >= p.capacity {
		h.WaitEvent(p.deleteEvent)
	}
	key := pts
	for {
		if _, exists := p.entries[key]; !exists {
			break
		}
		p.log.Warn("pts collision in picture buffer, incrementing key", "pts", key)
		key++
	}
	p.entries[key] = &pictureEntry{payload: payload, refcount: 2}
	p.trace()
	return key
}

// Finished decrements the refcount of each key, deleting and notifying
// deleteEvent for every entry that reaches zero. Keys not present are a
// no-op, matching the double-finish idempotence law.
func (p *PictureBuffer) Finished(h *kernel.Handle, keys []int64) {
	p.finishLocked(h, keys)
	p.trace()
}

func (p *PictureBuffer) finishLocked(h *kernel.Handle, keys []int64) {
	for _, k := range keys {
		e, ok := p.entries[k]
		if !ok {
			continue
		}
		e.refcount--
		if e.refcount <= 0 {
			delete(p.entries, k)
			h.Notify(p.deleteEvent)
		}
	}
}

// NBRead is the time-aligned frame selector (Sync's nbread): among entries
// satisfying pt-WrapOffset < pts < pt it returns the one with the largest
// pts, finishing every other candidate and the returned entry itself (the
// consumer is understood to have used it). Returns (nil, 0) if the buffer
// is empty, without blocking.
func (p *PictureBuffer) NBRead(h *kernel.Handle, pt int64) ([]byte, int) {
	var toFinish []int64

	if pt < p.lastRequest {
		p.log.Warn("stc went backwards in picture buffer read", "pt", pt, "lastRequest", p.lastRequest)
		for k := range p.entries {
			if k > p.lastRequest {
				toFinish = append(toFinish, k)
			}
		}
	}

	if len(p.entries) == 0 {
		p.finishLocked(h, toFinish)
		p.lastRequest = pt
		p.trace()
		return nil, 0
	}

	var bestKey int64
	found := false
	for k := range p.entries {
		if !(pt-WrapOffset < k && k < pt) {
			continue
		}
		if !found {
			bestKey, found = k, true
			continue
		}
		if k > bestKey {
			toFinish = append(toFinish, bestKey)
			bestKey = k
		} else {
			toFinish = append(toFinish, k)
		}
	}

	var result []byte
	if found {
		result = p.entries[bestKey].payload
		toFinish = append(toFinish, bestKey)
	}

	p.finishLocked(h, toFinish)
	p.lastRequest = pt
	p.trace()
	return result, len(result)
}

// Close safely drains every remaining entry. Keys are collected before any
// deletion so the walk never observes a map mutated mid-range.
func (p *PictureBuffer) Close() {
	keys := make([]int64, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	for _, k := range keys {
		delete(p.entries, k)
	}
}

// Len returns the current entry count, for invariant checks and tests.
func (p *PictureBuffer) Len() int { return len(p.entries) }
