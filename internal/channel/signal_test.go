package channel

import (
	"testing"

	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/stretchr/testify/assert"
)

func TestSignalWriteIsGatedByEquality(t *testing.T) {
	e := kernel.New(nil)
	s := NewSignal(false)
	var wakeups int

	e.CreateTask("writer", func(h *kernel.Handle) {
		s.Write(h, false) // no-op, same value
		s.Write(h, true)  // wakes the waiter
	})
	e.CreateTask("waiter", func(h *kernel.Handle) {
		s.WaitChange(h)
		wakeups++
	})

	e.Run(100)
	assert.Equal(t, 1, wakeups)
	assert.True(t, s.Read())
}

func TestBufferNotifiesUnconditionally(t *testing.T) {
	e := kernel.New(nil)
	b := NewBuffer[int]()
	var wakeups int

	e.CreateTask("writer", func(h *kernel.Handle) {
		b.Write(h, 5)
		h.WaitDelay(1)
		b.Write(h, 5) // same value, still notifies
	})
	e.CreateTask("waiter", func(h *kernel.Handle) {
		b.WaitChange(h)
		wakeups++
		b.WaitChange(h)
		wakeups++
	})

	e.Run(100)
	assert.Equal(t, 2, wakeups)
	assert.Equal(t, 5, b.Read())
}
