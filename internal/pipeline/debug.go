package pipeline

import (
	"io"
	"log"
	"sync/atomic"
)

// Three log streams, all off until SetLogWriters is called:
//
//	ops    dropped detections, sink failures
//	diag   track lifecycle, zone edits
//	trace  one line per frame
var opsLog, diagLog, traceLog atomic.Pointer[log.Logger]

// SetLogWriters routes the pipeline log streams. A nil writer silences
// its stream. Safe to call while frames are being processed.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLog.Store(streamLogger(ops))
	diagLog.Store(streamLogger(diag))
	traceLog.Store(streamLogger(trace))
}

func streamLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[pipeline] ", log.LstdFlags|log.Lmicroseconds)
}

func logTo(p *atomic.Pointer[log.Logger], format string, args []interface{}) {
	if l := p.Load(); l != nil {
		l.Printf(format, args...)
	}
}

func opsf(format string, args ...interface{})   { logTo(&opsLog, format, args) }
func diagf(format string, args ...interface{})  { logTo(&diagLog, format, args) }
func tracef(format string, args ...interface{}) { logTo(&traceLog, format, args) }
