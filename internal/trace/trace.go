// Package trace implements the CSV variable-snapshot observer: modules
// register named variables, the engine samples them once per scheduling
// iteration, and a row is appended to that variable's CSV file whenever its
// value changed since the last sample.
package trace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Var is a single traced signal: a qualified name ("<module>.<field>"), a
// formatter for its current value, and a dirty flag set by the setter that
// Bool, Int64 or Float64 returned for it.
type Var struct {
	name   string
	file   *os.File
	w      *bufio.Writer
	get    func() string
	last   string
	dirty  bool
	opened bool
}

// Recorder owns every registered Var for one simulation run and decides,
// per scheduling iteration, whether delta-cycle samples are written or only
// end-of-timestep samples.
type Recorder struct {
	dir         string
	log         *log.Logger
	vars        []*Var
	deltaCycles bool
}

// NewRecorder prepares a recorder writing CSV files into dir. dir must
// already exist.
func NewRecorder(dir string, logger *log.Logger) *Recorder {
	return &Recorder{dir: dir, log: logger}
}

// SetDeltaCycles controls whether Sample(..., isDelta=true) batches produce
// rows (true) or are skipped in favour of only end-of-timestep batches
// (false, the default). Mirrors the per-module trace granularity knob.
func (r *Recorder) SetDeltaCycles(b bool) { r.deltaCycles = b }

// Bool registers a traced bool signal named "<module>.<name>" and returns a
// setter. The value is written as "1"/"0", matching the original's default
// stream formatting.
func (r *Recorder) Bool(module, name string, initial bool) func(bool) {
	cur := initial
	v := r.register(module, name, func() string {
		if cur {
			return "1"
		}
		return "0"
	})
	return func(val bool) {
		cur = val
		r.markDirty(v)
	}
}

// Int64 registers a traced int64 signal and returns a setter.
func (r *Recorder) Int64(module, name string, initial int64) func(int64) {
	cur := initial
	v := r.register(module, name, func() string { return fmt.Sprintf("%d", cur) })
	return func(val int64) {
		cur = val
		r.markDirty(v)
	}
}

// Float64 registers a traced float64 signal and returns a setter.
func (r *Recorder) Float64(module, name string, initial float64) func(float64) {
	cur := initial
	v := r.register(module, name, func() string { return fmt.Sprintf("%g", cur) })
	return func(val float64) {
		cur = val
		r.markDirty(v)
	}
}

func (r *Recorder) register(module, name string, get func() string) *Var {
	qualified := module + "." + name
	v := &Var{name: qualified, get: get}
	r.vars = append(r.vars, v)
	return v
}

func (r *Recorder) markDirty(v *Var) { v.dirty = true }

func (r *Recorder) ensureOpen(v *Var) error {
	if v.opened {
		return nil
	}
	path := filepath.Join(r.dir, v.name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	v.file = f
	v.w = bufio.NewWriter(f)
	v.opened = true
	fmt.Fprintf(v.w, "time,%s\n", v.name)
	return nil
}

// Sample is invoked by the kernel once per scheduling iteration. now is the
// current virtual time; isDelta distinguishes a delta-cycle batch from an
// end-of-timestep batch.
func (r *Recorder) Sample(now float64, isDelta bool) {
	if isDelta && !r.deltaCycles {
		return
	}
	for _, v := range r.vars {
		cur := v.get()
		if cur == v.last && v.opened {
			continue
		}
		if !v.dirty && v.opened {
			continue
		}
		if err := r.ensureOpen(v); err != nil {
			r.log.Warn("could not open trace file", "var", v.name, "err", err)
			continue
		}
		fmt.Fprintf(v.w, "%.9f,%s\n", now, cur)
		v.last = cur
		v.dirty = false
	}
}

// Close flushes and closes every opened trace file.
func (r *Recorder) Close() {
	for _, v := range r.vars {
		if !v.opened {
			continue
		}
		v.w.Flush()
		v.file.Close()
	}
}
