package trace

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func readCSV(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name+".csv"))
	require.NoError(t, err)
	return string(data)
}

func TestSampleWritesHeaderAndInitialValueOnFirstCall(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, silentLogger())
	_ = r.Int64("demux", "ccErrors", 0)

	r.Sample(0.0, false)
	r.Close()

	got := readCSV(t, dir, "demux.ccErrors")
	assert.Equal(t, "time,demux.ccErrors\n0.000000000,0\n", got)
}

func TestSampleSkipsUnchangedValue(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, silentLogger())
	set := r.Int64("demux", "ccErrors", 0)

	r.Sample(0.0, false)
	set(0) // dirty, but value unchanged
	r.Sample(1.0, false)
	r.Close()

	got := readCSV(t, dir, "demux.ccErrors")
	assert.Equal(t, "time,demux.ccErrors\n0.000000000,0\n", got)
}

func TestSampleWritesRowOnValueChange(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, silentLogger())
	set := r.Int64("demux", "ccErrors", 0)

	r.Sample(0.0, false)
	set(1)
	r.Sample(2.5, false)
	r.Close()

	got := readCSV(t, dir, "demux.ccErrors")
	assert.Equal(t, "time,demux.ccErrors\n0.000000000,0\n2.500000000,1\n", got)
}

func TestSampleIgnoresDeltaCyclesByDefault(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, silentLogger())
	set := r.Bool("sync", "displayFrame", false)

	set(true)
	r.Sample(1.0, true) // delta-cycle batch, deltaCycles disabled
	r.Close()

	_, err := os.Stat(filepath.Join(dir, "sync.displayFrame.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestSampleRecordsDeltaCyclesWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, silentLogger())
	r.SetDeltaCycles(true)
	set := r.Bool("sync", "displayFrame", false)

	set(true)
	r.Sample(1.0, true)
	r.Close()

	got := readCSV(t, dir, "sync.displayFrame")
	assert.Equal(t, "time,sync.displayFrame\n1.000000000,1\n", got)
}

func TestFloat64FormatsWithGVerb(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, silentLogger())
	set := r.Float64("stc", "middleError", 0)

	set(0.125)
	r.Sample(0.0, false)
	r.Close()

	got := readCSV(t, dir, "stc.middleError")
	assert.Equal(t, "time,stc.middleError\n0.000000000,0.125\n", got)
}
