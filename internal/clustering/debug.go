package clustering

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
//
//	Ops   run lifecycle and invalid-cluster reports
//	Diag  threshold tables, degenerate clusters, per-event cluster dumps
//	Trace per-cluster accept and reject decisions
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

const logPrefix = "[cluster] "

var (
	mu    sync.RWMutex
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
)

// SetLogWriters configures all three streams. A nil writer disables its
// stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	ops = streamLogger(w.Ops)
	diag = streamLogger(w.Diag)
	trace = streamLogger(w.Trace)
}

func streamLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, logPrefix, log.LstdFlags|log.Lmicroseconds)
}

// stream returns the logger behind *l, or nil when the stream is off.
func stream(l **log.Logger) *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return *l
}

func printTo(l **log.Logger, format string, args []interface{}) {
	if lg := stream(l); lg != nil {
		lg.Printf(format, args...)
	}
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...interface{}) { printTo(&ops, format, args) }

// Diagf logs to the diag stream.
func Diagf(format string, args ...interface{}) { printTo(&diag, format, args) }

// Tracef logs to the trace stream.
func Tracef(format string, args ...interface{}) { printTo(&trace, format, args) }

// layerDiagf logs a diag line tagged with the layer it concerns.
func layerDiagf(layer int, format string, args ...interface{}) {
	if lg := stream(&diag); lg != nil {
		lg.Printf("layer %d: %s", layer, fmt.Sprintf(format, args...))
	}
}

// layerTracef is layerDiagf for the trace stream. Hot loops call it per
// cluster, so nothing is formatted while tracing is off.
func layerTracef(layer int, format string, args ...interface{}) {
	if lg := stream(&trace); lg != nil {
		lg.Printf("layer %d: %s", layer, fmt.Sprintf(format, args...))
	}
}
