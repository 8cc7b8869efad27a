package otel

import (
	"context"
	"sync"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"outreach-tracker/backend/internal/telemetry"
)

type recordingProcessor struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (p *recordingProcessor) OnEmit(_ context.Context, r *sdklog.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r.Clone())
	return nil
}

func (p *recordingProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool { return true }

func (p *recordingProcessor) Shutdown(context.Context) error   { return nil }
func (p *recordingProcessor) ForceFlush(context.Context) error { return nil }

func TestNewEventEmitter_NilProvider(t *testing.T) {
	e := NewEventEmitter(nil)
	if err := e.Emit(context.Background(), telemetry.NewEvent(telemetry.EventLogin)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
}

func TestEventEmitter_Attributes(t *testing.T) {
	proc := &recordingProcessor{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(proc))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ev := telemetry.NewEvent(telemetry.EventRefreshRejected)
	ev.UserID, ev.EID, ev.Reason = 7, "alice", "expired"
	if err := NewEventEmitter(provider).Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if len(proc.records) != 1 {
		t.Fatalf("records = %d, want 1", len(proc.records))
	}
	rec := proc.records[0]
	if rec.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want warn", rec.Severity())
	}
	attrs := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"event_id":   ev.ID,
		"event_type": telemetry.EventRefreshRejected,
		"source":     telemetry.SourceServer,
		"user_id":    "7",
		"eid":        "alice",
		"reason":     "expired",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}
}
