package handler

import (
	"errors"
	"net/http"

	"callgist/internal/observability"
	"callgist/internal/sessions/processor"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	sessions *processor.SessionManager
	logger   *observability.Logger
}

func New(sessions *processor.SessionManager, logger *observability.Logger) Handler {
	return Handler{
		sessions: sessions,
		logger:   logger,
	}
}

// StartSessionRequest represents the optional HTTP request body for starting
// a session. The server generates a session id when none is supplied.
type StartSessionRequest struct {
	SessionID string `json:"session_id"`
}

// HandleStartSession handles POST /api/v1/sessions/start
func (h *Handler) HandleStartSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req StartSessionRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Error(ctx, "failed to bind start session request", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
			return
		}
	}

	session, err := h.sessions.StartSession(ctx, req.SessionID)
	if err != nil {
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// AppendTurnRequest represents the HTTP request for appending a session turn
type AppendTurnRequest struct {
	Speaker string `json:"speaker" binding:"required,oneof=agent customer"`
	Text    string `json:"text" binding:"required"`
}

// HandleAppendTurn handles POST /api/v1/sessions/:session_id/turns
func (h *Handler) HandleAppendTurn(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	var req AppendTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error(ctx, "failed to bind turn request", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "speaker (agent|customer) and text are required"})
		return
	}

	if err := h.sessions.AppendTurn(ctx, sessionID, req.Speaker, req.Text); err != nil {
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "message": "turn recorded"})
}

// HandleGetSession handles GET /api/v1/sessions/:session_id
func (h *Handler) HandleGetSession(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Param("session_id"))
	if err != nil {
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// HandleEndSession handles POST /api/v1/sessions/:session_id/end
func (h *Handler) HandleEndSession(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	session, err := h.sessions.EndSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, processor.ErrSessionEmpty) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session has no turns to process"})
			return
		}
		h.respondSessionError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"session_id": session.SessionID,
		"call_id":    session.SessionID,
		"status":     session.Status,
		"message":    "Session ended, processing started",
	})
}

func (h *Handler) respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, processor.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, processor.ErrSessionExists):
		c.JSON(http.StatusConflict, gin.H{"error": "session already exists"})
	case errors.Is(err, processor.ErrSessionNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "session is not active"})
	default:
		h.logger.Error(c.Request.Context(), "session operation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session operation failed"})
	}
}
