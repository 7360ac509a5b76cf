package processor

import (
	"context"

	callprocessor "callgist/internal/calls/processor"
	"callgist/internal/store"
)

// TranscriptPipeline defines the call-pipeline operations required by the
// session manager
type TranscriptPipeline interface {
	ProcessTranscript(ctx context.Context, callID string, turns []callprocessor.DialogTurn) error
}

// CallStore defines the store operations required by the session manager
type CallStore interface {
	CreateCallRecord(ctx context.Context, params store.CreateCallRecordParams) (store.CallRecord, error)
}
