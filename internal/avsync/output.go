package avsync

import (
	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
)

// OutPut is the pull master: it asserts a request edge once per nominal
// frame period, reads back whatever Sync selected, and logs a stutter
// warning the first time a requested frame comes back empty after
// playback has already started — at most once per run.
type OutPut struct {
	FrameRequest *channel.Signal[bool]
	FrameIn      *channel.Buffer[Frame]

	framerate       float64
	firstFrameShown bool
	stutterLogged   bool

	log               *log.Logger
	traceDisplayFrame func(bool)
}

// NewOutPut constructs an OutPut pulling at framerate frames/sec.
func NewOutPut(frameRequest *channel.Signal[bool], frameIn *channel.Buffer[Frame], framerate float64, logger *log.Logger) *OutPut {
	return &OutPut{FrameRequest: frameRequest, FrameIn: frameIn, framerate: framerate, log: logger}
}

// SetDisplayFrameTrace wires the optional displayFrame bool trace setter.
func (o *OutPut) SetDisplayFrameTrace(fn func(bool)) { o.traceDisplayFrame = fn }

// RunTask registers the pull loop on engine e.
func (o *OutPut) RunTask(e *kernel.Engine, module string) {
	e.CreateTask(module, o.process)
}

func (o *OutPut) process(h *kernel.Handle) {
	for {
		o.FrameRequest.Write(h, true)
		o.FrameIn.WaitChange(h)
		frame := o.FrameIn.Read()

		if frame.Payload == nil {
			if o.firstFrameShown && !o.stutterLogged {
				o.log.Warn("stutter occurred")
				o.stutterLogged = true
			}
			if o.traceDisplayFrame != nil {
				o.traceDisplayFrame(false)
			}
		} else {
			o.firstFrameShown = true
			if o.traceDisplayFrame != nil {
				o.traceDisplayFrame(true)
			}
		}

		o.FrameRequest.Write(h, false)
		h.WaitDelay(kernel.Time(1.0 / o.framerate))
	}
}
