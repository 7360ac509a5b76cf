package handler

import (
	"context"
	"time"

	"callgist/internal/broadcast"
	"callgist/internal/calls/processor"
	"callgist/internal/store"
)

// CallStore defines the store operations required by the calls handler
type CallStore interface {
	CreateCallRecord(ctx context.Context, params store.CreateCallRecordParams) (store.CallRecord, error)
	GetCallRecord(ctx context.Context, callID string) (store.CallRecord, error)
	SearchCallRecords(ctx context.Context, params store.SearchCallsParams) ([]store.CallRecord, int, error)
	GetDashboardAnalytics(ctx context.Context, from, to time.Time) (store.DashboardAnalytics, error)
}

// CallPipeline defines the processing operations required by the calls handler
type CallPipeline interface {
	ProcessAudio(ctx context.Context, callID string, audio processor.AudioInput) error
}

// EventSubscriber provides per-call event subscriptions for streaming
type EventSubscriber interface {
	Subscribe(callID string) *broadcast.Subscriber
	Unsubscribe(callID string, sub *broadcast.Subscriber)
}
