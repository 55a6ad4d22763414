package stc

import (
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
)

// StcOffset interposes between a consumer and Stc, shifting the sampled
// clock by a configured presentation-time offset and tolerating a single
// in-flight 33-bit wrap: when a new sample is smaller than the previous
// one, it holds the wrap delta until the shifted clock naturally catches
// back up past the wrap point.
type StcOffset struct {
	offset int64

	oldStc           int64
	warparoundOffset int64
	warparoundStc    int64
	wrapping         bool

	RequestFromModule *channel.Buffer[bool]
	ReplyToModule     *channel.Buffer[int64]
	RequestToStc      *channel.Buffer[bool]
	ReplyFromStc      *channel.Buffer[int64]

	traceIn  func(int64)
	traceOut func(int64)
}

// NewStcOffset constructs a StcOffset shifting by offset ticks.
func NewStcOffset(offset int64) *StcOffset {
	return &StcOffset{
		offset:            offset,
		RequestFromModule: channel.NewBuffer[bool](),
		ReplyToModule:     channel.NewBuffer[int64](),
		RequestToStc:      channel.NewBuffer[bool](),
		ReplyFromStc:      channel.NewBuffer[int64](),
	}
}

// SetTraces wires optional CSV trace setters for the sampled input and
// shifted output stc; either may be nil.
func (so *StcOffset) SetTraces(in, out func(int64)) {
	so.traceIn = in
	so.traceOut = out
}

// RunTask registers the StcOffset processing task on engine e.
func (so *StcOffset) RunTask(e *kernel.Engine, module string) {
	e.CreateTask(module, so.process)
}

func (so *StcOffset) process(h *kernel.Handle) {
	for {
		so.RequestFromModule.WaitChange(h)
		if !so.RequestFromModule.Read() {
			continue
		}

		stcVal := Request(h, so.RequestToStc, so.ReplyFromStc)
		if so.traceIn != nil {
			so.traceIn(stcVal)
		}

		if stcVal < so.oldStc {
			so.warparoundOffset = so.oldStc - stcVal
			so.warparoundStc = so.oldStc
			so.wrapping = true
		}
		so.oldStc = stcVal

		var out int64
		if so.wrapping {
			out = stcVal - so.offset + so.warparoundOffset
			if so.warparoundStc < out {
				so.wrapping = false
				out = stcVal - so.offset
			}
		} else {
			out = stcVal - so.offset
		}
		if out < 0 {
			out = 0
		}

		so.ReplyToModule.Write(h, out)
		if so.traceOut != nil {
			so.traceOut(out)
		}
	}
}
