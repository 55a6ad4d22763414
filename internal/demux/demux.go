// Package demux implements TS PID filtering, continuity-counter
// validation, PES reassembly across TS packet boundaries, PCR extraction
// and PTS extraction, fanning out to the audio/video elementary-stream
// buffers and the Stc clock.
package demux

import (
	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/dvbsim/receiver/internal/stc"
	"github.com/dvbsim/receiver/internal/ts"
)

type esState struct {
	buf     []byte
	started bool
}

// Demux reads 188-byte TS packets from In and fans out PES payloads, PCR
// samples and per-packet diagnostics.
type Demux struct {
	videoPID uint16
	audioPID uint16
	pcrPID   uint16

	cc       map[uint16]int
	video    esState
	audio    esState
	firstPcr bool

	In          *channel.FillBuffer[[]byte]
	VideoOut    *channel.DecoderBuffer
	AudioOut    *channel.DecoderBuffer
	PcrOut      *channel.Buffer[int64]
	StartStcOut *channel.Signal[bool]

	// Raw-stc sampling, for the timeToPresent diagnostic.
	StcRequest *channel.Buffer[bool]
	StcReply   *channel.Buffer[int64]

	// StcOffset sampling, for the timeToPresentIncludingStcOffset diagnostic.
	OffsetRequest *channel.Buffer[bool]
	OffsetReply   *channel.Buffer[int64]

	log *log.Logger

	traceTimeToPresentVideo               func(float64)
	traceTimeToPresentVideoWithOffset     func(float64)
	traceTimeToPresentAudio               func(float64)
	traceTimeToPresentAudioWithOffset     func(float64)
	tracePesVideoPacketSize               func(int64)
	tracePesAudioPacketSize               func(int64)
}

// New constructs a Demux filtering on the three configured PIDs.
func New(videoPID, audioPID, pcrPID uint16, logger *log.Logger) *Demux {
	return &Demux{
		videoPID: videoPID,
		audioPID: audioPID,
		pcrPID:   pcrPID,
		cc:       make(map[uint16]int),
		log:      logger,
	}
}

// SetTraces wires the optional diagnostic trace setters; any may be nil.
func (d *Demux) SetTraces(
	timeToPresentVideo, timeToPresentVideoOffset func(float64),
	timeToPresentAudio, timeToPresentAudioOffset func(float64),
	pesVideoSize, pesAudioSize func(int64),
) {
	d.traceTimeToPresentVideo = timeToPresentVideo
	d.traceTimeToPresentVideoWithOffset = timeToPresentVideoOffset
	d.traceTimeToPresentAudio = timeToPresentAudio
	d.traceTimeToPresentAudioWithOffset = timeToPresentAudioOffset
	d.tracePesVideoPacketSize = pesVideoSize
	d.tracePesAudioPacketSize = pesAudioSize
}

// RunTask registers the demultiplex task on engine e.
func (d *Demux) RunTask(e *kernel.Engine, module string) {
	e.CreateTask(module, d.run)
}

func (d *Demux) run(h *kernel.Handle) {
	for {
		pkt := d.In.Read(h)
		d.handlePacket(h, pkt)
	}
}

func (d *Demux) handlePacket(h *kernel.Handle, pkt []byte) {
	pid := ts.PID(pkt)
	if pid != d.videoPID && pid != d.audioPID && pid != d.pcrPID {
		return
	}
	if !d.checkCC(pkt, pid) {
		return
	}

	if pid == d.pcrPID && ts.HasAdaptation(pkt) && ts.HasPCR(pkt) {
		base, ext := ts.PCR(pkt)
		pcrVal := int64(ts.PCRValue(base, ext))
		d.PcrOut.Write(h, pcrVal)
		if !d.firstPcr {
			d.firstPcr = true
			d.StartStcOut.Write(h, true)
		}
	}

	switch pid {
	case d.videoPID:
		d.accumulate(h, &d.video, pkt, true)
	case d.audioPID:
		d.accumulate(h, &d.audio, pkt, false)
	}
}

// checkCC implements the continuity-counter policy: accept a fresh PID,
// the expected next counter, a repeated counter on an adaptation-only
// packet, adopt-and-continue on a genuine mismatch, or drop a duplicate
// payload-bearing packet.
func (d *Demux) checkCC(pkt []byte, pid uint16) bool {
	cc := int(ts.CC(pkt))
	hasPayload := ts.HasPayload(pkt)
	stored, seen := d.cc[pid]
	if !seen {
		d.cc[pid] = cc
		return true
	}
	switch {
	case cc == (stored+1)%16:
		d.cc[pid] = cc
		return true
	case cc == stored%16 && !hasPayload:
		return true
	case cc == stored && hasPayload:
		d.log.Warn("Double Packet", "pid", pid, "cc", cc)
		return false
	default:
		d.log.Warn("continuity counter mismatch, adopting new counter", "pid", pid, "expected", (stored+1)%16, "got", cc)
		d.cc[pid] = cc
		return true
	}
}

func (d *Demux) accumulate(h *kernel.Handle, st *esState, pkt []byte, isVideo bool) {
	payload := ts.Payload(pkt)
	if ts.UnitStart(pkt) {
		if len(st.buf) > 0 {
			d.emitPES(h, st.buf, isVideo)
		}
		st.buf = append([]byte(nil), payload...)
		st.started = true
		return
	}
	if !st.started {
		return
	}
	st.buf = append(st.buf, payload...)
}

func (d *Demux) emitPES(h *kernel.Handle, pes []byte, isVideo bool) {
	if err := ts.ValidatePESHeader(pes); err != nil {
		d.log.Warn("invalid pes header, dropping", "err", err)
		return
	}
	if !ts.HasPTS(pes) || !ts.ValidatePTS(pes) {
		d.log.Warn("pes packet missing or invalid pts, dropping")
		return
	}

	pts := ts.GetPTS(pes)
	payload := ts.PESPayload(pes)
	owned := append([]byte(nil), payload...)

	stcVal := stc.Request(h, d.StcRequest, d.StcReply)
	offsetStc := stc.Request(h, d.OffsetRequest, d.OffsetReply)

	timeToPresent := float64(pts - stcVal)
	timeToPresentOffset := float64(pts - offsetStc)

	entry := channel.DecoderEntry{Payload: owned, PTS: pts, Size: len(owned)}
	if isVideo {
		d.VideoOut.Write(h, entry)
		if d.traceTimeToPresentVideo != nil {
			d.traceTimeToPresentVideo(timeToPresent)
		}
		if d.traceTimeToPresentVideoWithOffset != nil {
			d.traceTimeToPresentVideoWithOffset(timeToPresentOffset)
		}
		if d.tracePesVideoPacketSize != nil {
			d.tracePesVideoPacketSize(int64(len(owned)))
		}
	} else {
		d.AudioOut.Write(h, entry)
		if d.traceTimeToPresentAudio != nil {
			d.traceTimeToPresentAudio(timeToPresent)
		}
		if d.traceTimeToPresentAudioWithOffset != nil {
			d.traceTimeToPresentAudioWithOffset(timeToPresentOffset)
		}
		if d.tracePesAudioPacketSize != nil {
			d.tracePesAudioPacketSize(int64(len(owned)))
		}
	}
}
