package source

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/dvbsim/receiver/internal/util"
)

// ReadMulticast reads 188-byte TS packets from a file, identically to
// TunerDVB, but paces them from a paired .aux sidecar: one 8-byte
// big-endian 27MHz tick count per packet. It sleeps after sending each
// packet rather than before — multicat itself sleeps before sending, but
// sleeping after uniformly means the first packet needs no special case.
type ReadMulticast struct {
	filename    string
	filenameAux string
	Out         *channel.FillBuffer[[]byte]
	log         *log.Logger
}

// NewReadMulticast constructs a ReadMulticast reading filename paced by
// filenameAux.
func NewReadMulticast(filename, filenameAux string, logger *log.Logger) *ReadMulticast {
	return &ReadMulticast{filename: filename, filenameAux: filenameAux, log: logger}
}

// RunTask registers the read loop on engine e.
func (r *ReadMulticast) RunTask(e *kernel.Engine, module string) {
	e.CreateTask(module, r.run)
}

func (r *ReadMulticast) run(h *kernel.Handle) {
	f, err := os.Open(r.filename)
	if err != nil {
		r.log.Warn("could not open ts file", "filename", r.filename, "err", err)
		return
	}
	defer f.Close()

	aux, err := os.Open(r.filenameAux)
	if err != nil {
		r.log.Warn("could not open aux file", "filename", r.filenameAux, "err", err)
		return
	}
	defer aux.Close()

	buf := make([]byte, 188)
	auxBuf := make([]byte, 8)

	for {
		pkt, ok := readAndResync(f, buf, r.log)
		if !ok {
			return
		}
		if _, err := io.ReadFull(aux, auxBuf); err != nil {
			r.log.Warn("aux file end reached", "err", err)
			return
		}
		pos := 0
		auxStc := util.ReadUint64(auxBuf, &pos)

		r.Out.Write(h, pkt)

		sleep := float64(auxStc) / 27_000_000.0
		h.WaitDelay(kernel.Time(sleep))
	}
}
