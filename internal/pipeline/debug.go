package pipeline

import (
	"io"
	"log"

	"github.com/banshee-data/hitreco/internal/clustering"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the pipeline package.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("[pipeline] ", ops)
	diagLogger = newLogger("[pipeline] ", diag)
	traceLogger = newLogger("[pipeline] ", trace)
}

// ConfigureLogging routes the pipeline and clustering streams to w
// according to verbosity: ops always, diag from 1, trace from 2.
// A nil writer disables all streams.
func ConfigureLogging(w io.Writer, verbosity int) {
	var diag, trace io.Writer
	if verbosity >= 1 {
		diag = w
	}
	if verbosity >= 2 {
		trace = w
	}
	SetLogWriters(w, diag, trace)
	clustering.SetLogWriters(clustering.LogWriters{Ops: w, Diag: diag, Trace: trace})
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (aborted events, sink failures).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs to the diag stream (run lifecycle, per-event summaries).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-clusterizer timings).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
