package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	callprocessor "callgist/internal/calls/processor"
	"callgist/internal/observability"
	"callgist/internal/sessions/processor"
	"callgist/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockTranscriptPipeline is a mock implementation of processor.TranscriptPipeline
type MockTranscriptPipeline struct {
	mock.Mock
}

func (m *MockTranscriptPipeline) ProcessTranscript(ctx context.Context, callID string, turns []callprocessor.DialogTurn) error {
	args := m.Called(ctx, callID, turns)
	return args.Error(0)
}

// MockCallStore is a mock implementation of processor.CallStore
type MockCallStore struct {
	mock.Mock
}

func (m *MockCallStore) CreateCallRecord(ctx context.Context, params store.CreateCallRecordParams) (store.CallRecord, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(store.CallRecord), args.Error(1)
}

func newTestRouter(t *testing.T) (*gin.Engine, *MockTranscriptPipeline, *MockCallStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := observability.NewLogger()
	pipeline := new(MockTranscriptPipeline)
	callStore := new(MockCallStore)
	h := New(processor.NewSessionManager(pipeline, callStore, logger), logger)

	router := gin.New()
	router.POST("/api/v1/sessions/start", h.HandleStartSession)
	router.POST("/api/v1/sessions/:session_id/turns", h.HandleAppendTurn)
	router.GET("/api/v1/sessions/:session_id", h.HandleGetSession)
	router.POST("/api/v1/sessions/:session_id/end", h.HandleEndSession)
	router.POST("/api/v1/phone/answer", h.HandleAnswerPhone)
	return router, pipeline, callStore
}

func startSession(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/start", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response["session_id"].(string)
}

func postTurn(t *testing.T, router *gin.Engine, sessionID, speaker, text string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"speaker": speaker, "text": text})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/turns", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router, pipeline, callStore := newTestRouter(t)

	sessionID := startSession(t, router)
	assert.Contains(t, sessionID, "call_")

	assert.Equal(t, http.StatusOK, postTurn(t, router, sessionID, "agent", "Hello").Code)
	assert.Equal(t, http.StatusOK, postTurn(t, router, sessionID, "customer", "My bundle failed").Code)

	callStore.On("CreateCallRecord", mock.Anything, store.CreateCallRecordParams{
		CallID:   sessionID,
		Metadata: store.JSONB{"source": "live_session", "turn_count": 2},
	}).Return(store.CallRecord{CallID: sessionID, Status: store.CallStatusProcessing}, nil)
	pipeline.On("ProcessTranscript", mock.Anything, sessionID, []callprocessor.DialogTurn{
		{Speaker: "agent", Text: "Hello"},
		{Speaker: "customer", Text: "My bundle failed"},
	}).Return(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/end", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, sessionID, response["call_id"])
	assert.Equal(t, processor.SessionProcessing, response["status"])

	// Turns are rejected after the session ends.
	assert.Equal(t, http.StatusConflict, postTurn(t, router, sessionID, "agent", "too late").Code)

	pipeline.AssertExpectations(t)
	callStore.AssertExpectations(t)
}

func TestStartSession_ClientSuppliedID(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{"session_id": "call_client000001"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "call_client000001", response["session_id"])
}

func TestStartSession_DuplicateIDConflict(t *testing.T) {
	router, _, _ := newTestRouter(t)

	post := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"session_id": "call_client000001"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/start", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, post().Code)
	assert.Equal(t, http.StatusConflict, post().Code)
}

func TestAppendTurn_InvalidSpeaker(t *testing.T) {
	router, _, _ := newTestRouter(t)
	sessionID := startSession(t, router)

	assert.Equal(t, http.StatusBadRequest, postTurn(t, router, sessionID, "narrator", "Hello").Code)
}

func TestAppendTurn_UnknownSession(t *testing.T) {
	router, _, _ := newTestRouter(t)

	assert.Equal(t, http.StatusNotFound, postTurn(t, router, "call_missing00001", "agent", "Hello").Code)
}

func TestEndSession_Empty(t *testing.T) {
	router, pipeline, _ := newTestRouter(t)
	sessionID := startSession(t, router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/end", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	pipeline.AssertNotCalled(t, "ProcessTranscript", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleAnswerPhone_ReturnsTwiML(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/phone/answer", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/xml")
	assert.Contains(t, w.Body.String(), "<Connect>")
	assert.Contains(t, w.Body.String(), "/api/v1/phone/media-stream")
}
