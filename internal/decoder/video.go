// Package decoder implements the configurable-latency "decode" stage:
// AudioDecoder passes PES payloads through unmodified, VideoDecoder
// additionally splits an MPEG-2 elementary stream payload into per-picture
// units at start-code boundaries.
package decoder

import (
	"math"

	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/dvbsim/receiver/internal/stc"
)

const mpeg2VideoType = "13818-2 video (MPEG-2)"

var frameRateTable = map[byte]float64{
	1: 24000.0 / 1001.0,
	2: 24,
	3: 25,
	4: 30000.0 / 1001.0,
	5: 30,
	6: 50,
	7: 60000.0 / 1001.0,
	8: 60,
}

// VideoDecoder reads PES payloads from In, optionally splits MPEG-2
// payloads into per-picture units, and publishes each to Out.
type VideoDecoder struct {
	videoTyp     string
	decodingTime float64

	In  *channel.DecoderBuffer
	Out *channel.PictureBuffer

	StcRequest    *channel.Buffer[bool]
	StcReply      *channel.Buffer[int64]
	OffsetRequest *channel.Buffer[bool]
	OffsetReply   *channel.Buffer[int64]

	log       *log.Logger
	counters  frameCounters
	frameRate float64
}

// New constructs a VideoDecoder. videoTyp selects MPEG-2 picture-splitting
// behaviour when it equals "13818-2 video (MPEG-2)"; any other value is a
// passthrough. decodingTime is the fixed virtual-time latency applied to
// every PES payload before publication.
func New(videoTyp string, decodingTime float64, logger *log.Logger) *VideoDecoder {
	return &VideoDecoder{
		videoTyp:     videoTyp,
		decodingTime: decodingTime,
		log:          logger,
		frameRate:    25,
	}
}

// SetFrameCounterTraces wires the optional per-second/per-minute frame
// count trace setters; either may be nil.
func (v *VideoDecoder) SetFrameCounterTraces(fps, fpm func(int64)) {
	v.counters.traceFps = fps
	v.counters.traceFpm = fpm
}

// RunTask registers the decode loop on engine e.
func (v *VideoDecoder) RunTask(e *kernel.Engine, module string) {
	e.CreateTask(module, v.run)
}

func (v *VideoDecoder) run(h *kernel.Handle) {
	for {
		entry := v.In.Read(h)
		if v.decodingTime > 0 {
			h.WaitDelay(kernel.Time(v.decodingTime))
		}
		_ = stc.Request(h, v.StcRequest, v.StcReply)
		_ = stc.Request(h, v.OffsetRequest, v.OffsetReply)

		if v.videoTyp == mpeg2VideoType {
			v.splitAndPublish(h, entry)
		} else {
			v.publish(h, entry.Payload, entry.PTS)
		}
		v.counters.sample(float64(h.Now()))
	}
}

func (v *VideoDecoder) publish(h *kernel.Handle, payload []byte, pts int64) {
	key := v.Out.Write(h, pts, payload)
	v.Out.Finished(h, []int64{key})
}

// splitAndPublish implements the MPEG-2 picture-splitting scan: a sequence
// header (00 00 01 B3) updates the framerate from a fixed byte offset, and
// every picture start code (00 00 01 00) closes out the previous picture
// with a framerate-interpolated PTS. The first picture start code only
// opens a range; it does not close one, since there is nothing before it
// worth emitting. If no picture start code is ever found the whole payload
// is emitted under its original PTS.
func (v *VideoDecoder) splitAndPublish(h *kernel.Handle, entry channel.DecoderEntry) {
	payload := entry.Payload
	pictStart := 0
	foundPictureStart := false
	countPict := int64(0)

	emit := func(start, end int) {
		pts := entry.PTS + int64(math.Round(float64(countPict)/v.frameRate*90000))
		v.publish(h, append([]byte(nil), payload[start:end]...), pts)
		countPict++
	}

	for i := 0; i+3 < len(payload); i++ {
		if payload[i] != 0x00 || payload[i+1] != 0x00 || payload[i+2] != 0x01 {
			continue
		}
		switch payload[i+3] {
		case 0xB3:
			v.frameRate = decodeFrameRate(payload, v.log)
		case 0x00:
			if foundPictureStart {
				emit(pictStart, i)
			}
			foundPictureStart = true
			pictStart = i
		}
	}

	if foundPictureStart {
		emit(pictStart, len(payload))
		return
	}
	v.publish(h, payload, entry.PTS)
}

func decodeFrameRate(payload []byte, logger *log.Logger) float64 {
	if len(payload) <= 7 {
		logger.Warn("sequence header too short to read frame rate index, defaulting to 25")
		return 25
	}
	idx := payload[7] & 0x0F
	if fr, ok := frameRateTable[idx]; ok {
		return fr
	}
	logger.Warn("unknown frame rate index, defaulting to 25", "index", idx)
	return 25
}
