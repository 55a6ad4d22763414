// Package avsync implements the frame-rate-driven pull side of the
// pipeline: Sync answers a request edge by selecting the time-aligned
// frame from a PictureBuffer, and OutPut is the pull master asserting that
// request once per nominal frame period and detecting stutter.
package avsync

import (
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/dvbsim/receiver/internal/stc"
)

// Frame is one frame handed from Sync to OutPut; Payload is nil when no
// time-aligned frame was available.
type Frame struct {
	Payload []byte
	Size    int
}

// Sync waits for OutPut's request edge, samples the offset-shifted stc,
// and selects the matching frame from FrameIn.
type Sync struct {
	FrameRequest *channel.Signal[bool]
	FrameIn      *channel.PictureBuffer
	FrameOut     *channel.Buffer[Frame]

	OffsetRequest *channel.Buffer[bool]
	OffsetReply   *channel.Buffer[int64]
}

// NewSync constructs a Sync wired to the given channels.
func NewSync(frameRequest *channel.Signal[bool], frameIn *channel.PictureBuffer, frameOut *channel.Buffer[Frame], offsetRequest *channel.Buffer[bool], offsetReply *channel.Buffer[int64]) *Sync {
	return &Sync{
		FrameRequest:  frameRequest,
		FrameIn:       frameIn,
		FrameOut:      frameOut,
		OffsetRequest: offsetRequest,
		OffsetReply:   offsetReply,
	}
}

// RunTask registers the Sync processing task on engine e.
func (s *Sync) RunTask(e *kernel.Engine, module string) {
	e.CreateTask(module, s.process)
}

func (s *Sync) process(h *kernel.Handle) {
	for {
		s.FrameRequest.WaitChange(h)
		if !s.FrameRequest.Read() {
			continue
		}
		stcVal := stc.Request(h, s.OffsetRequest, s.OffsetReply)
		payload, size := s.FrameIn.NBRead(h, stcVal)
		s.FrameOut.Write(h, Frame{Payload: payload, Size: size})
	}
}
