package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	callprocessor "callgist/internal/calls/processor"
	"callgist/internal/observability"
	"callgist/internal/store"

	"github.com/google/uuid"
)

// Session lifecycle states. A session becomes processing when it ends and its
// transcript is handed to the call pipeline, then ended once the call record
// reaches a terminal state.
const (
	SessionActive     = "active"
	SessionProcessing = "processing"
	SessionEnded      = "ended"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrSessionNotActive = errors.New("session is not active")
	ErrSessionEmpty     = errors.New("session has no turns")
)

// Session is a live call captured turn by turn
type Session struct {
	SessionID    string                     `json:"session_id"`
	Status       string                     `json:"status"`
	StartedAt    time.Time                  `json:"started_at"`
	LastActivity time.Time                  `json:"last_activity"`
	EndedAt      *time.Time                 `json:"ended_at,omitempty"`
	Turns        []callprocessor.DialogTurn `json:"turns"`
}

// SessionManager tracks in-memory live sessions and hands completed ones to
// the call pipeline. Session ids double as call ids so the resulting record
// is addressable under the same identifier.
type SessionManager struct {
	pipeline  TranscriptPipeline
	callStore CallStore
	logger    *observability.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a new session manager
func NewSessionManager(pipeline TranscriptPipeline, callStore CallStore, logger *observability.Logger) *SessionManager {
	return &SessionManager{
		pipeline:  pipeline,
		callStore: callStore,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// StartSession opens a new live session. Callers may supply their own session
// id; one is generated when sessionID is empty. A second start for an id that
// is already tracked is rejected with ErrSessionExists.
func (m *SessionManager) StartSession(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		sessionID = "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	}

	now := time.Now().UTC()
	session := &Session{
		SessionID:    sessionID,
		Status:       SessionActive,
		StartedAt:    now,
		LastActivity: now,
		Turns:        []callprocessor.DialogTurn{},
	}

	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return Session{}, ErrSessionExists
	}
	m.sessions[sessionID] = session
	m.mu.Unlock()

	m.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "session_id", Value: sessionID}),
		"live session started")
	return *session, nil
}

// AppendTurn adds one utterance to an active session
func (m *SessionManager) AppendTurn(ctx context.Context, sessionID, speaker, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Status != SessionActive {
		return ErrSessionNotActive
	}
	session.Turns = append(session.Turns, callprocessor.DialogTurn{Speaker: speaker, Text: text})
	session.LastActivity = time.Now().UTC()
	return nil
}

// GetSession returns a snapshot of a session
func (m *SessionManager) GetSession(sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	snapshot := *session
	snapshot.Turns = append([]callprocessor.DialogTurn(nil), session.Turns...)
	return snapshot, nil
}

// EndSession closes an active session and hands its transcript to the call
// pipeline. The session stays in processing until the call record reaches a
// terminal state.
func (m *SessionManager) EndSession(ctx context.Context, sessionID string) (Session, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	if session.Status != SessionActive {
		m.mu.Unlock()
		return Session{}, ErrSessionNotActive
	}
	if len(session.Turns) == 0 {
		m.mu.Unlock()
		return Session{}, ErrSessionEmpty
	}
	session.Status = SessionProcessing
	turns := append([]callprocessor.DialogTurn(nil), session.Turns...)
	snapshot := *session
	m.mu.Unlock()

	if _, err := m.callStore.CreateCallRecord(ctx, store.CreateCallRecordParams{
		CallID:   sessionID,
		Metadata: store.JSONB{"source": "live_session", "turn_count": len(turns)},
	}); err != nil {
		m.logger.Error(ctx, "failed to create call record for session", err)
		m.markEnded(sessionID)
		return Session{}, err
	}
	if err := m.pipeline.ProcessTranscript(ctx, sessionID, turns); err != nil {
		m.logger.Error(ctx, "failed to start session transcript processing", err)
		m.markEnded(sessionID)
		return Session{}, err
	}

	m.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "session_id", Value: sessionID},
		observability.Field{Key: "turns", Value: len(turns)}),
		"live session handed to call pipeline")
	return snapshot, nil
}

// HandleTerminal transitions a processing session to ended once its call
// record reaches a terminal state. Registered as a pipeline terminal hook.
func (m *SessionManager) HandleTerminal(callID, status string) {
	m.markEnded(callID)
}

// ReapIdleSessions force-ends active sessions with no activity for longer
// than maxIdle and drops ended sessions past the same age. Returns how many
// sessions were acted on.
func (m *SessionManager) ReapIdleSessions(ctx context.Context, maxIdle time.Duration) int {
	now := time.Now().UTC()

	m.mu.Lock()
	var stale []string
	for id, session := range m.sessions {
		switch session.Status {
		case SessionActive:
			if now.Sub(session.LastActivity) > maxIdle {
				stale = append(stale, id)
			}
		case SessionEnded:
			if session.EndedAt != nil && now.Sub(*session.EndedAt) > maxIdle {
				delete(m.sessions, id)
			}
		}
	}
	m.mu.Unlock()

	reaped := 0
	for _, id := range stale {
		if _, err := m.EndSession(ctx, id); err != nil {
			if errors.Is(err, ErrSessionEmpty) {
				m.markEnded(id)
				reaped++
				continue
			}
			m.logger.Warn(observability.WithFields(ctx,
				observability.Field{Key: "session_id", Value: id},
				observability.Field{Key: "reason", Value: err.Error()}),
				"failed to reap idle session")
			continue
		}
		m.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "session_id", Value: id}),
			"idle session force-ended")
		reaped++
	}
	return reaped
}

func (m *SessionManager) markEnded(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || session.Status == SessionEnded {
		return
	}
	now := time.Now().UTC()
	session.Status = SessionEnded
	session.EndedAt = &now
}
