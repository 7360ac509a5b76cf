package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"callgist/internal/calls/processor"
	"callgist/internal/observability"
	"callgist/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxUploadBytes caps uploaded recordings at 25MB, the transcription service
// limit.
const maxUploadBytes = 25 << 20

type Handler struct {
	pipeline  CallPipeline
	callStore CallStore
	events    EventSubscriber
	uploadDir string
	logger    *observability.Logger
}

func New(pipeline CallPipeline, callStore CallStore, events EventSubscriber, uploadDir string, logger *observability.Logger) Handler {
	return Handler{
		pipeline:  pipeline,
		callStore: callStore,
		events:    events,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// newCallID generates an external call identifier
func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// HandleUploadCall handles POST /api/v1/calls/upload
func (h *Handler) HandleUploadCall(c *gin.Context) {
	ctx := c.Request.Context()

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.logger.Error(ctx, "missing audio file in upload", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}
	defer file.Close()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if !processor.IsSupportedFormat(format) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported audio format %q, supported: mp3, wav, webm, m4a, opus", format),
		})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		h.logger.Error(ctx, "failed to read uploaded audio", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audio file"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is empty"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio file exceeds 25MB limit"})
		return
	}

	callID := c.PostForm("call_id")
	if callID == "" {
		callID = newCallID()
	} else {
		// Client-supplied ids must not collide with an existing record.
		if _, err := h.callStore.GetCallRecord(ctx, callID); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "call id already exists"})
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check call id"})
			return
		}
	}

	if h.uploadDir != "" {
		if err := h.saveAudio(callID, format, data); err != nil {
			h.logger.Error(ctx, "failed to save uploaded audio", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store audio file"})
			return
		}
	}

	filename := header.Filename
	_, err = h.callStore.CreateCallRecord(ctx, store.CreateCallRecordParams{
		CallID:        callID,
		AudioFilename: &filename,
		AudioFormat:   &format,
		Metadata:      store.JSONB{"source": "upload", "size_bytes": len(data)},
	})
	if err != nil {
		h.logger.Error(ctx, "failed to create call record", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create call record"})
		return
	}

	err = h.pipeline.ProcessAudio(ctx, callID, processor.AudioInput{
		Data:     data,
		Filename: header.Filename,
		Format:   format,
	})
	if err != nil {
		if errors.Is(err, processor.ErrAlreadyProcessing) {
			c.JSON(http.StatusConflict, gin.H{"error": "call is already being processed"})
			return
		}
		h.logger.Error(ctx, "failed to start call processing", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start processing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"call_id": callID,
		"status":  store.CallStatusProcessing,
		"message": "Call uploaded, processing started",
	})
}

// saveAudio persists the raw upload for later replay or reprocessing
func (h *Handler) saveAudio(callID, format string, data []byte) error {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	path := filepath.Join(h.uploadDir, fmt.Sprintf("%s.%s", callID, format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}

// HandleGetCallStatus handles GET /api/v1/calls/:call_id/status
func (h *Handler) HandleGetCallStatus(c *gin.Context) {
	ctx := c.Request.Context()
	callID := c.Param("call_id")

	record, err := h.callStore.GetCallRecord(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		h.logger.Error(ctx, "failed to get call record", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get call"})
		return
	}

	response := gin.H{
		"call_id":    record.CallID,
		"status":     record.Status,
		"created_at": record.CreatedAt,
	}
	if record.ProcessedAt != nil {
		response["processed_at"] = record.ProcessedAt
	}
	if record.ErrorDetail != nil {
		response["error_detail"] = record.ErrorDetail
	}
	c.JSON(http.StatusOK, response)
}

// HandleGetCallTranscript handles GET /api/v1/calls/:call_id/transcript
func (h *Handler) HandleGetCallTranscript(c *gin.Context) {
	ctx := c.Request.Context()
	callID := c.Param("call_id")

	record, err := h.callStore.GetCallRecord(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		h.logger.Error(ctx, "failed to get call record", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get call"})
		return
	}

	if record.Transcript == nil {
		if record.Status == store.CallStatusFailed {
			c.JSON(http.StatusOK, gin.H{
				"call_id":      record.CallID,
				"status":       record.Status,
				"error_detail": record.ErrorDetail,
			})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"call_id": record.CallID,
			"status":  record.Status,
			"message": "Transcript not ready yet",
		})
		return
	}

	response := gin.H{
		"call_id":    record.CallID,
		"status":     record.Status,
		"transcript": record.Transcript,
	}
	if record.AudioDuration != nil {
		response["audio_duration"] = record.AudioDuration
	}
	c.JSON(http.StatusOK, response)
}

// HandleGetCallSummary handles GET /api/v1/calls/:call_id/summary
func (h *Handler) HandleGetCallSummary(c *gin.Context) {
	ctx := c.Request.Context()
	callID := c.Param("call_id")

	record, err := h.callStore.GetCallRecord(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		h.logger.Error(ctx, "failed to get call record", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get call"})
		return
	}

	switch record.Status {
	case store.CallStatusProcessing:
		c.JSON(http.StatusAccepted, gin.H{
			"call_id": record.CallID,
			"status":  record.Status,
			"message": "Analysis not ready yet",
		})
	case store.CallStatusFailed:
		c.JSON(http.StatusOK, gin.H{
			"call_id":      record.CallID,
			"status":       record.Status,
			"error_detail": record.ErrorDetail,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"call_id":            record.CallID,
			"status":             record.Status,
			"summary":            record.Summary,
			"sentiment":          record.Sentiment,
			"category":           record.Category,
			"priority":           record.Priority,
			"resolution_status":  record.ResolutionStatus,
			"tags":               record.Tags,
			"action_items":       record.ActionItems,
			"customer_requests":  record.CustomerRequests,
			"agent_performance":  record.AgentPerformance,
			"follow_up_required": record.FollowUpRequired,
			"processed_at":       record.ProcessedAt,
		})
	}
}
