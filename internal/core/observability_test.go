package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestVarsRecorderAggregates(t *testing.T) {
	rec := NewVarsRecorder("")
	ctx := context.Background()
	rec.Observe(ctx, "reserve", true, 20*time.Millisecond)
	rec.Observe(ctx, "reserve", false, 30*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second) // ignored

	stats := rec.Stats()["reserve"]
	if stats.Calls != 2 || stats.Failures != 1 {
		t.Fatalf("unexpected call counts: %+v", stats)
	}
	if stats.MeanMS != 25 || stats.SlowestMS != 30 {
		t.Fatalf("unexpected timings: %+v", stats)
	}
	if rec.Name() == "" {
		t.Fatal("expected generated expvar name")
	}
}

func TestMultiMetricsFansOut(t *testing.T) {
	a := NewVarsRecorder("")
	b := NewVarsRecorder("")
	MultiMetrics(a, b).Observe(context.Background(), "cancel", false, time.Millisecond)

	if a.Stats()["cancel"].Failures != 1 || b.Stats()["cancel"].Failures != 1 {
		t.Fatalf("observation did not reach both recorders: %+v / %+v", a.Stats(), b.Stats())
	}
}

func TestSpanLogRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	log := NewSpanLog(&buf)
	_, span := log.Start(context.Background(), "mark_dug")
	span.End(errors.New("boom"))

	recent := log.Recent()
	if len(recent) != 1 {
		t.Fatalf("expected one span, got %d", len(recent))
	}
	if recent[0].Op != "mark_dug" || recent[0].OK || recent[0].Err != "boom" {
		t.Fatalf("unexpected span: %+v", recent[0])
	}
	var decoded SpanRecord
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode emitted span: %v", err)
	}
	if decoded.Op != "mark_dug" {
		t.Fatalf("emitted span op = %s", decoded.Op)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "reserve", true, 10*time.Millisecond)
	rec.Observe(context.Background(), "reserve", false, 15*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]bool{}
	for _, mf := range families {
		byName[mf.GetName()] = true
	}
	for _, want := range []string{"grovecore_stock_operation_duration_seconds", "grovecore_stock_operation_results_total"} {
		if !byName[want] {
			t.Fatalf("metric family %s not registered (have %v)", want, byName)
		}
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

type capturingLogger struct {
	warns []string
}

func (l *capturingLogger) Debug(string, ...any)      {}
func (l *capturingLogger) Info(string, ...any)       {}
func (l *capturingLogger) Warn(msg string, _ ...any) { l.warns = append(l.warns, msg) }
func (l *capturingLogger) Error(string, ...any)      {}

func TestServiceInstrumentation(t *testing.T) {
	logger := &capturingLogger{}
	rec := NewVarsRecorder("")
	tracer := NewSpanLog(nil)
	svc := newTestService(t, WithLogger(logger), WithMetrics(rec), WithTracer(tracer))
	ctx := context.Background()
	seedZone(t, svc, "zone-a")
	ids := plantGroup(t, svc, "zone-a", 1)

	if _, err := svc.Reserve(ctx, ids, "deal-missing"); err == nil {
		t.Fatal("expected reserve failure")
	}
	if stats := rec.Stats()["reserve"]; stats.Failures != 1 {
		t.Fatalf("metrics missed failed reserve: %+v", stats)
	}
	spans := tracer.Recent()
	found := false
	for _, s := range spans {
		if s.Op == "reserve" && !s.OK {
			found = true
		}
	}
	if !found {
		t.Fatalf("trace missed failed reserve: %+v", spans)
	}
	if len(logger.warns) == 0 {
		t.Fatal("expected warn log for failed operation")
	}
}
