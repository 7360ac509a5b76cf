package processor

import (
	"context"

	openaiclient "callgist/internal/clients/openai"
	"callgist/internal/store"
)

// CallStore defines the store operations required by the call processor
type CallStore interface {
	// GetCallRecord retrieves a call record by its call id
	GetCallRecord(ctx context.Context, callID string) (store.CallRecord, error)

	// SetCallTranscript writes the transcript for an in-flight record
	SetCallTranscript(ctx context.Context, callID, transcript string, duration *float64) error

	// CompleteCallRecord transitions a processing record to completed
	CompleteCallRecord(ctx context.Context, callID string, params store.CompleteCallRecordParams) error

	// FailCallRecord transitions a processing record to failed
	FailCallRecord(ctx context.Context, callID, errorDetail string) error
}

// Transcriber converts call audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (openaiclient.TranscriptionResult, error)
}

// Analyzer produces a raw structured-insight response for a transcript
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (string, error)
}

// EventPublisher fans processing events out to live subscribers
type EventPublisher interface {
	Publish(ctx context.Context, callID, eventType string, data map[string]interface{})
	CloseTopic(callID string)
}

// CRMNotifier pushes completed records to an external CRM system
type CRMNotifier interface {
	Notify(ctx context.Context, record store.CallRecord) error
}
