// Package stc implements PCR-locked virtual clock recovery: the Stc module
// interpolates a virtual 27MHz counter from incoming PCR samples and
// answers request/reply clock samples, and StcOffset adapts that counter
// into a presentation-time-aligned, wrap-tolerant variant.
package stc

import (
	"math"

	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/kernel"
)

// Wrap33 is 2^33, the PCR base field's modulus.
const Wrap33 = int64(1) << 33

// PcrAt interpolates the virtual 27MHz counter at time t (seconds):
// pcr(t) = ((27e6*t)/300 mod 2^33)*300 + (27e6*t mod 300), in integer
// arithmetic over a rounded tick count.
func PcrAt(t float64) int64 {
	ticks := int64(math.Round(27_000_000 * t))
	base := (ticks / 300) % Wrap33
	ext := ticks % 300
	return base*300 + ext
}

// Request performs one round of the recurring request/reply sampling
// protocol shared by every clock consumer: assert request, wait for the
// reply to change, read it, then deassert request.
func Request(h *kernel.Handle, request *channel.Buffer[bool], reply *channel.Buffer[int64]) int64 {
	request.Write(h, true)
	reply.WaitChange(h)
	v := reply.Read()
	request.Write(h, false)
	return v
}

// Stc is the PCR-locked virtual clock. It runs three concurrent tasks:
// startStcProc mirrors the startStc signal, stcUpdateProc re-seeds or
// error-tracks on every PCR sample, and stcRequestProc answers sampling
// requests once running.
type Stc struct {
	pcrJumpBorder int64

	offset      int64
	initialized bool
	lastPcr     int64
	running     bool

	rmsSumSquares float64
	rmsCount      int64

	PcrIn    *channel.Buffer[int64]
	StartStc *channel.Signal[bool]
	Request  *channel.Buffer[bool]
	Reply    *channel.Buffer[int64]

	log *log.Logger

	traceMiddleError  func(float64)
	traceIncomingPcr  func(int64)
	tracePlainError   func(float64)
	traceStcRunning   func(bool)
}

// New constructs a Stc module. pcrJumpBorder is the maximum tolerated
// difference between a PCR sample and the previous PCR sample before the
// offset is re-seeded.
func New(pcrJumpBorder int64, logger *log.Logger) *Stc {
	return &Stc{
		pcrJumpBorder: pcrJumpBorder,
		PcrIn:         channel.NewBuffer[int64](),
		StartStc:      channel.NewSignal(false),
		Request:       channel.NewBuffer[bool](),
		Reply:         channel.NewBuffer[int64](),
		log:           logger,
	}
}

// SetTraces wires optional CSV trace setters; any may be nil.
func (s *Stc) SetTraces(middleError func(float64), incomingPcr func(int64), plainError func(float64), running func(bool)) {
	s.traceMiddleError = middleError
	s.traceIncomingPcr = incomingPcr
	s.tracePlainError = plainError
	s.traceStcRunning = running
}

// Value returns stc(t) = pcr(t) + offset, the current interpolated clock in
// 27MHz ticks.
func (s *Stc) Value(t float64) int64 {
	return PcrAt(t) + s.offset
}

// RunTasks registers the three concurrent Stc tasks on engine e.
func (s *Stc) RunTasks(e *kernel.Engine, module string) {
	e.CreateTask(module, s.startStcProc)
	e.CreateTask(module, s.updateProc)
	e.CreateTask(module, s.requestProc)
}

func (s *Stc) startStcProc(h *kernel.Handle) {
	for {
		s.StartStc.WaitChange(h)
		s.running = s.StartStc.Read()
		if s.traceStcRunning != nil {
			s.traceStcRunning(s.running)
		}
	}
}

func (s *Stc) updateProc(h *kernel.Handle) {
	for {
		s.PcrIn.WaitChange(h)
		p := s.PcrIn.Read()
		if s.traceIncomingPcr != nil {
			s.traceIncomingPcr(p)
		}

		if !s.initialized {
			s.offset = p - PcrAt(float64(h.Now()))
			s.initialized = true
			s.log.Info("set new offset", "pcr", p, "offset", s.offset)
		} else if abs64(p-s.lastPcr) > s.pcrJumpBorder {
			s.offset = p - PcrAt(float64(h.Now()))
			s.log.Warn("pcr jump or warp around", "pcr", p, "offset", s.offset)
		} else {
			errVal := p - s.Value(float64(h.Now()))
			s.rmsSumSquares += float64(errVal) * float64(errVal)
			s.rmsCount++
			if s.tracePlainError != nil {
				s.tracePlainError(float64(errVal))
			}
			if s.traceMiddleError != nil && s.rmsCount > 0 {
				s.traceMiddleError(math.Sqrt(s.rmsSumSquares / float64(s.rmsCount)))
			}
		}
		s.lastPcr = p
	}
}

func (s *Stc) requestProc(h *kernel.Handle) {
	for {
		if !s.running {
			s.StartStc.WaitChange(h)
			continue
		}
		s.Request.WaitChange(h)
		if s.Request.Read() {
			s.Reply.Write(h, s.Value(float64(h.Now()))/300)
		}
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
