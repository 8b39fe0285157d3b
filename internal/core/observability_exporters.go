package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var varsSeq uint64

// OpStats summarizes the outcomes of one service operation, e.g. all reserve
// calls since process start.
type OpStats struct {
	Calls     int64   `json:"calls"`
	Failures  int64   `json:"failures"`
	MeanMS    float64 `json:"mean_ms"`
	SlowestMS float64 `json:"slowest_ms"`
}

// VarsRecorder keeps per-operation call statistics and publishes them on the
// process expvar page, so a /debug/vars scrape shows how each ledger verb is
// behaving without a metrics backend.
type VarsRecorder struct {
	name string

	mu  sync.Mutex
	ops map[string]*varsEntry
}

type varsEntry struct {
	calls     int64
	failures  int64
	totalMS   float64
	slowestMS float64
}

// NewVarsRecorder publishes a recorder under name. An empty name gets a
// generated one, which keeps repeated construction in tests from colliding
// on the expvar namespace.
func NewVarsRecorder(name string) *VarsRecorder {
	if name == "" {
		name = fmt.Sprintf("grovecore_ops_%d", atomic.AddUint64(&varsSeq, 1))
	}
	rec := &VarsRecorder{
		name: name,
		ops:  make(map[string]*varsEntry),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Stats()
	}))
	return rec
}

// Name returns the expvar key the recorder publishes under.
func (r *VarsRecorder) Name() string {
	return r.name
}

// Observe implements MetricsRecorder.
func (r *VarsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.ops[operation]
	if e == nil {
		e = &varsEntry{}
		r.ops[operation] = e
	}
	e.calls++
	if !success {
		e.failures++
	}
	e.totalMS += ms
	if ms > e.slowestMS {
		e.slowestMS = ms
	}
}

// Stats returns the per-operation summaries accumulated so far.
func (r *VarsRecorder) Stats() map[string]OpStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OpStats, len(r.ops))
	for op, e := range r.ops {
		s := OpStats{
			Calls:     e.calls,
			Failures:  e.failures,
			SlowestMS: e.slowestMS,
		}
		if e.calls > 0 {
			s.MeanMS = e.totalMS / float64(e.calls)
		}
		out[op] = s
	}
	return out
}

// MultiMetrics fans every observation out to each recorder, letting a
// deployment feed Prometheus and the expvar page from one service option.
func MultiMetrics(recorders ...MetricsRecorder) MetricsRecorder {
	return multiMetrics(recorders)
}

type multiMetrics []MetricsRecorder

func (m multiMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, rec := range m {
		rec.Observe(ctx, operation, success, duration)
	}
}

// SpanRecord is one completed operation span as written to the span log.
type SpanRecord struct {
	Op  string    `json:"op"`
	OK  bool      `json:"ok"`
	MS  float64   `json:"ms"`
	Err string    `json:"err,omitempty"`
	At  time.Time `json:"at"`
}

const spanLogKeep = 256

// SpanLog is a Tracer that appends finished spans as JSON lines and keeps the
// most recent ones in memory for inspection.
type SpanLog struct {
	mu     sync.Mutex
	enc    *json.Encoder
	recent []SpanRecord
}

// NewSpanLog writes spans to w as they finish. A nil writer keeps the
// in-memory tail only.
func NewSpanLog(w io.Writer) *SpanLog {
	log := &SpanLog{}
	if w != nil {
		log.enc = json.NewEncoder(w)
	}
	return log
}

// Recent returns the retained tail of finished spans, oldest first.
func (l *SpanLog) Recent() []SpanRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SpanRecord, len(l.recent))
	copy(out, l.recent)
	return out
}

// Start implements Tracer.
func (l *SpanLog) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &spanLogSpan{log: l, op: operation, started: time.Now().UTC()}
}

type spanLogSpan struct {
	log     *SpanLog
	op      string
	started time.Time
}

func (s *spanLogSpan) End(err error) {
	ended := time.Now().UTC()
	rec := SpanRecord{
		Op: s.op,
		OK: err == nil,
		MS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		At: ended,
	}
	if err != nil {
		rec.Err = err.Error()
	}

	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	s.log.recent = append(s.log.recent, rec)
	if len(s.log.recent) > spanLogKeep {
		s.log.recent = s.log.recent[len(s.log.recent)-spanLogKeep:]
	}
	if s.log.enc != nil {
		_ = s.log.enc.Encode(rec)
	}
}
