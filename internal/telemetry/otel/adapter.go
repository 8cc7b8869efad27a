package otel

import (
	"context"
	"strconv"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"outreach-tracker/backend/internal/telemetry"
)

const instrumentationName = "outreach-tracker/auth"

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.Nop{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName)}
}

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	e.logger.Emit(ctx, toRecord(event))
	return nil
}

func toRecord(event *telemetry.Event) otellog.Record {
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetEventName(event.EventType)
	rec.SetBody(otellog.StringValue(event.EventType))
	rec.SetSeverity(severityOf(event.EventType))
	rec.AddAttributes(
		otellog.String("event_id", event.ID),
		otellog.String("event_type", event.EventType),
		otellog.String("source", event.Source),
	)
	if event.UserID != 0 {
		rec.AddAttributes(otellog.String("user_id", strconv.FormatInt(event.UserID, 10)))
	}
	if event.EID != "" {
		rec.AddAttributes(otellog.String("eid", event.EID))
	}
	if event.IP != "" {
		rec.AddAttributes(otellog.String("client_ip", event.IP))
	}
	if event.Reason != "" {
		rec.AddAttributes(otellog.String("reason", event.Reason))
	}
	for k, v := range event.Metadata {
		rec.AddAttributes(otellog.String("meta."+k, v))
	}
	return rec
}

func severityOf(eventType string) otellog.Severity {
	switch eventType {
	case telemetry.EventLoginFailed, telemetry.EventRefreshRejected, telemetry.EventAccessDenied, telemetry.EventUnauthenticated:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityInfo
	}
}
