package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callgist/internal/broadcast"
	"callgist/internal/calls/processor"
	"callgist/internal/observability"
	"callgist/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockCallStore is a mock implementation of CallStore
type MockCallStore struct {
	mock.Mock
}

func (m *MockCallStore) CreateCallRecord(ctx context.Context, params store.CreateCallRecordParams) (store.CallRecord, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(store.CallRecord), args.Error(1)
}

func (m *MockCallStore) GetCallRecord(ctx context.Context, callID string) (store.CallRecord, error) {
	args := m.Called(ctx, callID)
	return args.Get(0).(store.CallRecord), args.Error(1)
}

func (m *MockCallStore) SearchCallRecords(ctx context.Context, params store.SearchCallsParams) ([]store.CallRecord, int, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]store.CallRecord), args.Int(1), args.Error(2)
}

func (m *MockCallStore) GetDashboardAnalytics(ctx context.Context, from, to time.Time) (store.DashboardAnalytics, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(store.DashboardAnalytics), args.Error(1)
}

// MockCallPipeline is a mock implementation of CallPipeline
type MockCallPipeline struct {
	mock.Mock
}

func (m *MockCallPipeline) ProcessAudio(ctx context.Context, callID string, audio processor.AudioInput) error {
	args := m.Called(ctx, callID, audio)
	return args.Error(0)
}

func newTestRouter(t *testing.T, callStore *MockCallStore, pipeline *MockCallPipeline) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := observability.NewLogger()
	h := New(pipeline, callStore, broadcast.New(logger), "", logger)

	router := gin.New()
	router.POST("/api/v1/calls/upload", h.HandleUploadCall)
	router.GET("/api/v1/calls", h.HandleSearchCalls)
	router.GET("/api/v1/calls/:call_id/status", h.HandleGetCallStatus)
	router.GET("/api/v1/calls/:call_id/transcript", h.HandleGetCallTranscript)
	router.GET("/api/v1/calls/:call_id/summary", h.HandleGetCallSummary)
	router.GET("/api/v1/analytics/dashboard", h.HandleDashboardAnalytics)
	return router
}

func multipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	assert.NoError(t, err)
	_, err = part.Write(content)
	assert.NoError(t, err)
	for key, value := range fields {
		assert.NoError(t, writer.WriteField(key, value))
	}
	assert.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHandleUploadCall_Accepted(t *testing.T) {
	callStore := new(MockCallStore)
	pipeline := new(MockCallPipeline)
	router := newTestRouter(t, callStore, pipeline)

	callStore.On("CreateCallRecord", mock.Anything, mock.MatchedBy(func(params store.CreateCallRecordParams) bool {
		return params.CallID != "" && *params.AudioFormat == "mp3" &&
			params.Metadata["source"] == "upload"
	})).Return(store.CallRecord{Status: store.CallStatusProcessing}, nil)
	pipeline.On("ProcessAudio", mock.Anything, mock.Anything, mock.MatchedBy(func(audio processor.AudioInput) bool {
		return audio.Format == "mp3" && len(audio.Data) > 0
	})).Return(nil)

	body, contentType := multipartUpload(t, "recording.mp3", []byte("audio-bytes"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, store.CallStatusProcessing, response["status"])
	assert.Contains(t, response["call_id"], "call_")
	callStore.AssertExpectations(t)
	pipeline.AssertExpectations(t)
}

func TestHandleUploadCall_UnsupportedFormat(t *testing.T) {
	callStore := new(MockCallStore)
	pipeline := new(MockCallPipeline)
	router := newTestRouter(t, callStore, pipeline)

	body, contentType := multipartUpload(t, "recording.flac", []byte("audio-bytes"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	callStore.AssertNotCalled(t, "CreateCallRecord", mock.Anything, mock.Anything)
}

func TestHandleUploadCall_EmptyFile(t *testing.T) {
	router := newTestRouter(t, new(MockCallStore), new(MockCallPipeline))

	body, contentType := multipartUpload(t, "recording.mp3", nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleUploadCall_ExistingCallIDConflict(t *testing.T) {
	callStore := new(MockCallStore)
	pipeline := new(MockCallPipeline)
	router := newTestRouter(t, callStore, pipeline)

	callStore.On("GetCallRecord", mock.Anything, "call_existing0001").
		Return(store.CallRecord{CallID: "call_existing0001"}, nil)

	body, contentType := multipartUpload(t, "recording.mp3", []byte("audio-bytes"),
		map[string]string{"call_id": "call_existing0001"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	callStore.AssertNotCalled(t, "CreateCallRecord", mock.Anything, mock.Anything)
	pipeline.AssertNotCalled(t, "ProcessAudio", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleGetCallStatus_NotFound(t *testing.T) {
	callStore := new(MockCallStore)
	router := newTestRouter(t, callStore, new(MockCallPipeline))

	callStore.On("GetCallRecord", mock.Anything, "call_missing00001").
		Return(store.CallRecord{}, store.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/call_missing00001/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetCallStatus_Failed(t *testing.T) {
	callStore := new(MockCallStore)
	router := newTestRouter(t, callStore, new(MockCallPipeline))

	detail := "analysis: service unavailable"
	callStore.On("GetCallRecord", mock.Anything, "call_abc123def456").
		Return(store.CallRecord{
			CallID:      "call_abc123def456",
			Status:      store.CallStatusFailed,
			ErrorDetail: &detail,
		}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/call_abc123def456/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, store.CallStatusFailed, response["status"])
	assert.Equal(t, detail, response["error_detail"])
}

func TestHandleGetCallTranscript_NotReady(t *testing.T) {
	callStore := new(MockCallStore)
	router := newTestRouter(t, callStore, new(MockCallPipeline))

	callStore.On("GetCallRecord", mock.Anything, "call_abc123def456").
		Return(store.CallRecord{
			CallID: "call_abc123def456",
			Status: store.CallStatusProcessing,
		}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/call_abc123def456/transcript", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandleGetCallTranscript_Ready(t *testing.T) {
	callStore := new(MockCallStore)
	router := newTestRouter(t, callStore, new(MockCallPipeline))

	transcript := "AGENT: Hello, how can I help?"
	duration := 33.0
	callStore.On("GetCallRecord", mock.Anything, "call_abc123def456").
		Return(store.CallRecord{
			CallID:        "call_abc123def456",
			Status:        store.CallStatusCompleted,
			Transcript:    &transcript,
			AudioDuration: &duration,
		}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/call_abc123def456/transcript", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, transcript, response["transcript"])
	assert.Equal(t, duration, response["audio_duration"])
}

func TestHandleGetCallSummary_Completed(t *testing.T) {
	callStore := new(MockCallStore)
	router := newTestRouter(t, callStore, new(MockCallPipeline))

	sentiment := store.SentimentPositive
	category := store.CategoryBilling
	callStore.On("GetCallRecord", mock.Anything, "call_abc123def456").
		Return(store.CallRecord{
			CallID:    "call_abc123def456",
			Status:    store.CallStatusCompleted,
			Summary:   store.StringArray{"point one", "point two"},
			Sentiment: &sentiment,
			Category:  &category,
		}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/call_abc123def456/summary", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, store.SentimentPositive, response["sentiment"])
	assert.Len(t, response["summary"], 2)
}

func TestHandleSearchCalls_ParsesFilters(t *testing.T) {
	callStore := new(MockCallStore)
	router := newTestRouter(t, callStore, new(MockCallPipeline))

	callStore.On("SearchCallRecords", mock.Anything, mock.MatchedBy(func(params store.SearchCallsParams) bool {
		return params.Category != nil && *params.Category == "billing" &&
			len(params.Tags) == 2 &&
			params.Page == 2 && params.PerPage == 10
	})).Return([]store.CallRecord{}, 0, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/calls?category=billing&tags=payment_issue,data_bundle&page=2&per_page=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	callStore.AssertExpectations(t)
}

func TestHandleSearchCalls_InvalidDate(t *testing.T) {
	router := newTestRouter(t, new(MockCallStore), new(MockCallPipeline))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls?date_from=not-a-date", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDashboardAnalytics(t *testing.T) {
	callStore := new(MockCallStore)
	router := newTestRouter(t, callStore, new(MockCallPipeline))

	callStore.On("GetDashboardAnalytics", mock.Anything, mock.Anything, mock.Anything).
		Return(store.DashboardAnalytics{
			TotalCalls:         5,
			CategoryBreakdown:  map[string]int{"billing": 3, "bundles": 2},
			SentimentBreakdown: map[string]int{"positive": 2, "negative": 3},
			ResolutionRate:     0.6,
			FollowUpRate:       0.4,
		}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/dashboard", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	analytics := response["analytics"].(map[string]interface{})
	assert.Equal(t, float64(5), analytics["total_calls"])
}
