// Package source implements the two TS packet producers: TunerDVB, which
// paces packets by a configured bitrate, and ReadMulticast, which paces
// them from a per-packet delay sidecar file.
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/dvbsim/receiver/internal/ts"
)

// TunerDVB reads 188-byte TS packets from a file at a fixed bitrate,
// resynchronizing on sync-byte loss by advancing one byte at a time.
type TunerDVB struct {
	filename string
	bitRate  float64
	Out      *channel.FillBuffer[[]byte]
	log      *log.Logger
}

// NewTunerDVB constructs a TunerDVB reading filename at bitRate bits/sec.
func NewTunerDVB(filename string, bitRate float64, logger *log.Logger) *TunerDVB {
	return &TunerDVB{filename: filename, bitRate: bitRate, log: logger}
}

// RunTask registers the read loop on engine e.
func (t *TunerDVB) RunTask(e *kernel.Engine, module string) {
	e.CreateTask(module, t.run)
}

func (t *TunerDVB) run(h *kernel.Handle) {
	f, err := os.Open(t.filename)
	if err != nil {
		t.log.Warn("could not open ts file", "filename", t.filename, "err", err)
		return
	}
	defer f.Close()

	readTimeout := kernel.Time(float64(ts.PacketSize) / (t.bitRate / 8))
	buf := make([]byte, ts.PacketSize)

	for {
		pkt, ok := readAndResync(f, buf, t.log)
		if !ok {
			return
		}
		t.Out.Write(h, pkt)
		h.WaitDelay(readTimeout)
	}
}

// readAndResync reads one TS packet from f, resynchronizing one byte at a
// time on sync-byte loss. Returns ok=false on EOF/short read during either
// the initial read or a resync attempt.
func readAndResync(f *os.File, buf []byte, logger *log.Logger) ([]byte, bool) {
	if _, err := io.ReadFull(f, buf); err != nil {
		logger.Warn("ts file end reached", "err", err)
		return nil, false
	}

	skipped := 0
	for !ts.Validate(buf) {
		if skipped == 0 {
			logger.Warn("invalid tsPacket, trying to find sync byte")
		}
		if _, err := f.Seek(-(int64(ts.PacketSize) - 1), io.SeekCurrent); err != nil {
			logger.Warn("ts file end reached during resync", "err", err)
			return nil, false
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			logger.Warn("ts file end reached during resync", "err", err)
			return nil, false
		}
		skipped++
	}
	if skipped > 0 {
		logger.Warn(fmt.Sprintf("sync byte found %d bytes Later.", skipped))
	}

	out := make([]byte, ts.PacketSize)
	copy(out, buf)
	return out, true
}
