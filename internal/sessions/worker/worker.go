package worker

import (
	"context"
	"time"

	"callgist/internal/observability"
	"callgist/internal/sessions/processor"
)

// SessionReaper handles background cleanup of idle live sessions
type SessionReaper struct {
	sessions *processor.SessionManager
	logger   *observability.Logger
	stopChan chan bool
	interval time.Duration
	maxIdle  time.Duration
}

// New creates a new SessionReaper
func New(sessions *processor.SessionManager, logger *observability.Logger, interval, maxIdle time.Duration) *SessionReaper {
	return &SessionReaper{
		sessions: sessions,
		logger:   logger,
		stopChan: make(chan bool),
		interval: interval,
		maxIdle:  maxIdle,
	}
}

// Start begins the background worker
func (w *SessionReaper) Start(ctx context.Context) {
	w.logger.Info(ctx, "Starting session reaper")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.reap(ctx)
		case <-w.stopChan:
			w.logger.Info(ctx, "Stopping session reaper")
			return
		case <-ctx.Done():
			w.logger.Info(ctx, "Context cancelled, stopping session reaper")
			return
		}
	}
}

// Stop stops the background worker
func (w *SessionReaper) Stop() {
	close(w.stopChan)
}

func (w *SessionReaper) reap(ctx context.Context) {
	if reaped := w.sessions.ReapIdleSessions(ctx, w.maxIdle); reaped > 0 {
		w.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "reaped", Value: reaped}),
			"reaped idle sessions")
	}
}
