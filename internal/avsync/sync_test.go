package avsync

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

// keepalive holds the timed queue non-empty past runTime so that Sync's
// and OutPut's recurring process loops, left blocked after a test stops
// driving them, never trip the engine's deadlock detector.
func keepalive(e *kernel.Engine, past kernel.Time) {
	e.CreateTask("keepalive", func(h *kernel.Handle) { h.WaitDelay(past) })
}

func stubOffsetServer(e *kernel.Engine, req *channel.Buffer[bool], reply *channel.Buffer[int64], value int64) {
	e.CreateTask("offsetServer", func(h *kernel.Handle) {
		for {
			req.WaitChange(h)
			if req.Read() {
				reply.Write(h, value)
			}
		}
	})
}

func TestSyncSelectsTimeAlignedFrameOnRequestEdge(t *testing.T) {
	e := kernel.New(silentLogger())
	frameIn := channel.NewPictureBuffer(8, silentLogger())
	frameRequest := channel.NewSignal(false)
	frameOut := channel.NewBuffer[Frame]()
	offsetRequest := channel.NewBuffer[bool]()
	offsetReply := channel.NewBuffer[int64]()

	s := NewSync(frameRequest, frameIn, frameOut, offsetRequest, offsetReply)
	s.RunTask(e, "sync")
	keepalive(e, 1000)
	stubOffsetServer(e, offsetRequest, offsetReply, 100001)

	e.CreateTask("producer", func(h *kernel.Handle) {
		frameIn.Write(h, 100000, []byte("picture"))
	})
	e.CreateTask("requester", func(h *kernel.Handle) {
		h.WaitDelay(0) // let the producer insert its entry first
		frameRequest.Write(h, true)
	})

	var got Frame
	e.CreateTask("collector", func(h *kernel.Handle) {
		frameOut.WaitChange(h)
		got = frameOut.Read()
	})

	e.Run(5)
	require.NotNil(t, got.Payload)
	assert.Equal(t, "picture", string(got.Payload))
}

func TestSyncReturnsNilPayloadWhenNoFrameInWindow(t *testing.T) {
	e := kernel.New(silentLogger())
	frameIn := channel.NewPictureBuffer(8, silentLogger())
	frameRequest := channel.NewSignal(false)
	frameOut := channel.NewBuffer[Frame]()
	offsetRequest := channel.NewBuffer[bool]()
	offsetReply := channel.NewBuffer[int64]()

	s := NewSync(frameRequest, frameIn, frameOut, offsetRequest, offsetReply)
	s.RunTask(e, "sync")
	keepalive(e, 1000)
	stubOffsetServer(e, offsetRequest, offsetReply, 5)

	e.CreateTask("requester", func(h *kernel.Handle) {
		frameRequest.Write(h, true)
	})

	var got Frame
	e.CreateTask("collector", func(h *kernel.Handle) {
		frameOut.WaitChange(h)
		got = frameOut.Read()
	})

	e.Run(5)
	assert.Nil(t, got.Payload)
	assert.Equal(t, 0, got.Size)
}
