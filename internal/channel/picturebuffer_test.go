package channel

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func TestPictureBufferWriteAndFinishReleasesEntry(t *testing.T) {
	e := kernel.New(nil)
	p := NewPictureBuffer(4, silentLogger())

	e.CreateTask("t", func(h *kernel.Handle) {
		key := p.Write(h, 100, []byte("frame"))
		require.Equal(t, int64(100), key)
		p.Finished(h, []int64{key})
		p.Finished(h, []int64{key})
	})
	e.Run(100)

	assert.Equal(t, 0, p.Len())
}

func TestPictureBufferCollisionIncrementsKey(t *testing.T) {
	e := kernel.New(nil)
	p := NewPictureBuffer(4, silentLogger())
	var k1, k2 int64

	e.CreateTask("t", func(h *kernel.Handle) {
		k1 = p.Write(h, 100, []byte("a"))
		k2 = p.Write(h, 100, []byte("b"))
	})
	e.Run(100)

	assert.Equal(t, int64(100), k1)
	assert.Equal(t, int64(101), k2)
	assert.Equal(t, 2, p.Len())
}

func TestPictureBufferNBReadSelectsLatestInWindow(t *testing.T) {
	e := kernel.New(nil)
	p := NewPictureBuffer(4, silentLogger())
	var payload []byte
	var size int

	e.CreateTask("t", func(h *kernel.Handle) {
		p.Write(h, 100, []byte("older"))
		p.Write(h, 200, []byte("newer"))
		payload, size = p.NBRead(h, 300)
	})
	e.Run(100)

	assert.Equal(t, []byte("newer"), payload)
	assert.Equal(t, len("newer"), size)
	// NBRead releases only the consumer's share; the producer's share of
	// each entry is still held, so both entries remain.
	assert.Equal(t, 2, p.Len())
}

func TestPictureBufferNBReadEmptyReturnsNil(t *testing.T) {
	e := kernel.New(nil)
	p := NewPictureBuffer(4, silentLogger())
	var payload []byte
	var size int

	e.CreateTask("t", func(h *kernel.Handle) {
		payload, size = p.NBRead(h, 1000)
	})
	e.Run(100)

	assert.Nil(t, payload)
	assert.Equal(t, 0, size)
}

func TestPictureBufferNBReadIgnoresEntriesOutsideWindow(t *testing.T) {
	e := kernel.New(nil)
	p := NewPictureBuffer(4, silentLogger())
	var payload []byte

	e.CreateTask("t", func(h *kernel.Handle) {
		p.Write(h, 100, []byte("too old"))
		payload, _ = p.NBRead(h, 100+WrapOffset+1)
	})
	e.Run(100)

	assert.Nil(t, payload)
}
