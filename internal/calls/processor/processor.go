package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"callgist/internal/broadcast"
	openaiclient "callgist/internal/clients/openai"
	"callgist/internal/observability"
	"callgist/internal/store"
)

var (
	// ErrAlreadyProcessing is returned when processing is requested for a call
	// id that already has an in-flight run
	ErrAlreadyProcessing = errors.New("call is already being processed")

	// ErrUnsupportedFormat is returned for audio in a format outside the
	// supported set
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

var supportedFormats = map[string]struct{}{
	"mp3":  {},
	"wav":  {},
	"webm": {},
	"m4a":  {},
	"opus": {},
}

// IsSupportedFormat reports whether the audio format can be processed
func IsSupportedFormat(format string) bool {
	_, ok := supportedFormats[strings.ToLower(strings.TrimPrefix(format, "."))]
	return ok
}

// AudioInput is an uploaded recording handed to the processing pipeline
type AudioInput struct {
	Data     []byte
	Filename string
	Format   string
}

// DialogTurn is one utterance of a live session transcript
type DialogTurn struct {
	Speaker string
	Text    string
}

// TerminalHook is invoked after a call reaches completed or failed
type TerminalHook func(callID, status string)

// CallProcessor drives a call record through transcription, sanitization and
// analysis to a terminal state. At most one run per call id is in flight.
type CallProcessor struct {
	store       CallStore
	transcriber Transcriber
	analyzer    Analyzer
	events      EventPublisher
	notifier    CRMNotifier
	sanitizer   *Sanitizer
	logger      *observability.Logger

	transcriptionTimeout time.Duration
	analysisTimeout      time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	hooks    []TerminalHook
}

// NewCallProcessor creates a new call processor
func NewCallProcessor(
	callStore CallStore,
	transcriber Transcriber,
	analyzer Analyzer,
	events EventPublisher,
	notifier CRMNotifier,
	sanitizer *Sanitizer,
	transcriptionTimeout time.Duration,
	analysisTimeout time.Duration,
	logger *observability.Logger,
) *CallProcessor {
	return &CallProcessor{
		store:                callStore,
		transcriber:          transcriber,
		analyzer:             analyzer,
		events:               events,
		notifier:             notifier,
		sanitizer:            sanitizer,
		logger:               logger,
		transcriptionTimeout: transcriptionTimeout,
		analysisTimeout:      analysisTimeout,
		inflight:             make(map[string]struct{}),
	}
}

// OnTerminal registers a hook invoked when a call reaches a terminal state.
// Hooks must be registered before processing starts.
func (p *CallProcessor) OnTerminal(hook TerminalHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
}

// IsProcessing reports whether a run is in flight for the call id
func (p *CallProcessor) IsProcessing(callID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[callID]
	return ok
}

// ProcessAudio starts asynchronous processing of an uploaded recording. The
// call record must already exist in the processing state.
func (p *CallProcessor) ProcessAudio(ctx context.Context, callID string, audio AudioInput) error {
	if !IsSupportedFormat(audio.Format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, audio.Format)
	}
	return p.start(ctx, callID, func(runCtx context.Context) {
		p.run(runCtx, callID, &audio, nil)
	})
}

// ProcessTranscript starts asynchronous processing of a live-session
// transcript, skipping the transcription step.
func (p *CallProcessor) ProcessTranscript(ctx context.Context, callID string, turns []DialogTurn) error {
	return p.start(ctx, callID, func(runCtx context.Context) {
		p.run(runCtx, callID, nil, turns)
	})
}

// start acquires the per-call in-flight guard, checks preconditions and
// launches the pipeline goroutine
func (p *CallProcessor) start(ctx context.Context, callID string, run func(context.Context)) error {
	p.mu.Lock()
	if _, ok := p.inflight[callID]; ok {
		p.mu.Unlock()
		p.logger.Warn(observability.WithFields(ctx,
			observability.Field{Key: "call_id", Value: callID}),
			"rejecting duplicate processing request")
		return ErrAlreadyProcessing
	}
	p.inflight[callID] = struct{}{}
	p.mu.Unlock()

	record, err := p.store.GetCallRecord(ctx, callID)
	if err != nil {
		p.release(callID)
		return err
	}
	if record.IsTerminal() {
		p.release(callID)
		return store.ErrRecordTerminal
	}

	// The run outlives the request that triggered it.
	runCtx := observability.WithFields(context.WithoutCancel(ctx),
		observability.Field{Key: "call_id", Value: callID})
	go run(runCtx)
	return nil
}

func (p *CallProcessor) release(callID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, callID)
}

// run executes the pipeline for one call. Exactly one of audio and turns is
// set.
func (p *CallProcessor) run(ctx context.Context, callID string, audio *AudioInput, turns []DialogTurn) {
	defer p.release(callID)

	p.events.Publish(ctx, callID, broadcast.EventStatusChanged, map[string]interface{}{
		"status": store.CallStatusProcessing,
	})

	var transcript string
	var duration *float64
	if audio != nil {
		p.events.Publish(ctx, callID, broadcast.EventProcessingProgress, map[string]interface{}{
			"step": "transcribing",
		})
		result, err := p.transcribeWithRetry(ctx, *audio)
		if err != nil {
			p.fail(ctx, callID, "transcription", err)
			return
		}
		transcript = result.Text
		duration = &result.Duration
	} else {
		transcript = joinTurns(turns)
	}

	transcript = p.sanitizer.Sanitize(transcript)
	if err := p.store.SetCallTranscript(ctx, callID, transcript, duration); err != nil {
		p.fail(ctx, callID, "persist transcript", err)
		return
	}
	p.events.Publish(ctx, callID, broadcast.EventTranscriptReady, map[string]interface{}{
		"transcript": transcript,
	})

	p.events.Publish(ctx, callID, broadcast.EventProcessingProgress, map[string]interface{}{
		"step": "analyzing",
	})
	insights, err := p.analyzeWithRetry(ctx, transcript)
	if err != nil {
		p.fail(ctx, callID, "analysis", err)
		return
	}

	completeParams := store.CompleteCallRecordParams{
		Summary:          insights.Summary,
		Sentiment:        insights.Sentiment,
		Category:         insights.Category,
		Priority:         insights.Priority,
		ResolutionStatus: insights.ResolutionStatus,
		Tags:             insights.Tags,
		ActionItems:      insights.ActionItems,
		CustomerRequests: insights.CustomerRequests,
		AgentPerformance: insights.AgentPerformance,
		FollowUpRequired: insights.FollowUpRequired,
	}
	if err := p.store.CompleteCallRecord(ctx, callID, completeParams); err != nil {
		p.fail(ctx, callID, "persist analysis", err)
		return
	}

	p.events.Publish(ctx, callID, broadcast.EventSummaryReady, map[string]interface{}{
		"summary":           insights.Summary,
		"sentiment":         insights.Sentiment,
		"category":          insights.Category,
		"priority":          insights.Priority,
		"resolution_status": insights.ResolutionStatus,
	})
	p.finish(ctx, callID, store.CallStatusCompleted, nil)

	p.logger.Info(ctx, "call processing completed")

	go p.syncCRM(ctx, callID)
}

// fail transitions the record to failed and tears the topic down. The cause
// is recorded with the step that produced it.
func (p *CallProcessor) fail(ctx context.Context, callID, step string, cause error) {
	detail := fmt.Sprintf("%s: %v", step, cause)
	p.logger.Error(observability.WithFields(ctx,
		observability.Field{Key: "step", Value: step}),
		"call processing failed", cause)

	if err := p.store.FailCallRecord(ctx, callID, detail); err != nil {
		if errors.Is(err, store.ErrRecordTerminal) {
			return
		}
		p.logger.Error(ctx, "failed to persist failure state", err)
	}
	p.finish(ctx, callID, store.CallStatusFailed, &detail)
}

// finish publishes the terminal status event, closes the topic and invokes
// terminal hooks
func (p *CallProcessor) finish(ctx context.Context, callID, status string, detail *string) {
	data := map[string]interface{}{"status": status}
	if detail != nil {
		data["error_detail"] = *detail
	}
	p.events.Publish(ctx, callID, broadcast.EventStatusChanged, data)
	p.events.CloseTopic(callID)

	p.mu.Lock()
	hooks := make([]TerminalHook, len(p.hooks))
	copy(hooks, p.hooks)
	p.mu.Unlock()
	for _, hook := range hooks {
		hook(callID, status)
	}
}

// transcribeWithRetry calls the transcription service with one retry, each
// attempt under its own timeout
func (p *CallProcessor) transcribeWithRetry(ctx context.Context, audio AudioInput) (openaiclient.TranscriptionResult, error) {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.transcriptionTimeout)
		var res openaiclient.TranscriptionResult
		res, err = p.transcriber.Transcribe(attemptCtx, audio.Data, audio.Filename)
		cancel()
		if err == nil {
			return res, nil
		}
		if attempt == 1 {
			p.logger.Warn(ctx, "transcription attempt failed, retrying")
		}
	}
	return openaiclient.TranscriptionResult{}, err
}

// analyzeWithRetry calls the analysis service and validates the response, with
// one retry covering both transport and schema failures
func (p *CallProcessor) analyzeWithRetry(ctx context.Context, transcript string) (insights Insights, err error) {
	for attempt := 1; attempt <= 2; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.analysisTimeout)
		var raw string
		raw, err = p.analyzer.Analyze(attemptCtx, transcript)
		cancel()
		if err == nil {
			insights, err = ParseInsights(raw)
			if err == nil {
				return insights, nil
			}
		}
		if attempt == 1 {
			p.logger.Warn(ctx, "analysis attempt failed, retrying")
		}
	}
	return Insights{}, err
}

// syncCRM pushes the completed record to the CRM system. Failures are logged,
// never retried, and never affect the record.
func (p *CallProcessor) syncCRM(ctx context.Context, callID string) {
	syncCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	record, err := p.store.GetCallRecord(syncCtx, callID)
	if err != nil {
		p.logger.Error(syncCtx, "failed to load record for CRM sync", err)
		return
	}
	if err := p.notifier.Notify(syncCtx, record); err != nil {
		p.logger.Error(syncCtx, "CRM sync failed", err)
	}
}

// joinTurns flattens a live-session dialog into a plain transcript
func joinTurns(turns []DialogTurn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(turn.Speaker), turn.Text))
	}
	return strings.Join(lines, "\n")
}
