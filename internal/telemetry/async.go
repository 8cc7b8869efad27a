package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// emitTimeout is the max time allowed for a single async emit. Used by Async and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// Async wraps an EventEmitter so Emit never blocks the request path.
// Each event is sent from its own goroutine with emitTimeout, detached from request cancellation.
type Async struct {
	next   EventEmitter
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewAsync returns an Async emitter over next. next may be nil, making Emit a no-op.
func NewAsync(next EventEmitter, logger *zap.Logger) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Async{next: next, logger: logger.Named("telemetry")}
}

// Emit schedules event and returns nil immediately. Failures are logged.
func (a *Async) Emit(_ context.Context, event *Event) error {
	if a == nil || a.next == nil || event == nil {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := a.next.Emit(emitCtx, event); err != nil {
			a.logger.Warn("async emit failed", zap.String("event_type", event.EventType), zap.Error(err))
		}
	}()
	return nil
}

// Drain waits for in-flight emits or for ctx to end.
func (a *Async) Drain(ctx context.Context) {
	if a == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
