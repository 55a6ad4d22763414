package decoder

import (
	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/dvbsim/receiver/internal/stc"
)

// AudioDecoder reads PES payloads from In and republishes each, unmodified,
// to Out. Unlike VideoDecoder it never sub-divides a payload.
type AudioDecoder struct {
	In  *channel.DecoderBuffer
	Out *channel.PictureBuffer

	StcRequest    *channel.Buffer[bool]
	StcReply      *channel.Buffer[int64]
	OffsetRequest *channel.Buffer[bool]
	OffsetReply   *channel.Buffer[int64]

	log      *log.Logger
	counters frameCounters
}

// NewAudioDecoder constructs an AudioDecoder.
func NewAudioDecoder(logger *log.Logger) *AudioDecoder {
	return &AudioDecoder{log: logger}
}

// SetFrameCounterTraces wires the optional per-second/per-minute frame
// count trace setters; either may be nil.
func (a *AudioDecoder) SetFrameCounterTraces(fps, fpm func(int64)) {
	a.counters.traceFps = fps
	a.counters.traceFpm = fpm
}

// RunTask registers the decode loop on engine e.
func (a *AudioDecoder) RunTask(e *kernel.Engine, module string) {
	e.CreateTask(module, a.run)
}

func (a *AudioDecoder) run(h *kernel.Handle) {
	for {
		entry := a.In.Read(h)
		_ = stc.Request(h, a.StcRequest, a.StcReply)
		_ = stc.Request(h, a.OffsetRequest, a.OffsetReply)

		key := a.Out.Write(h, entry.PTS, entry.Payload)
		a.Out.Finished(h, []int64{key})
		a.counters.sample(float64(h.Now()))
	}
}
