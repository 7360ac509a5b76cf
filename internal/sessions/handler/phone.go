package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"callgist/internal/observability"
	"callgist/internal/sessions/processor"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/twilio/twilio-go/twiml"
)

// upgrader is a shared WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleAnswerPhone handles POST /api/v1/phone/answer. Twilio calls it when a
// phone call comes in; the TwiML response connects the call to the live
// media-stream endpoint.
func (h *Handler) HandleAnswerPhone(c *gin.Context) {
	ctx := c.Request.Context()

	scheme := "wss"
	if c.Request.TLS == nil && !strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "ws"
	}
	streamURL := fmt.Sprintf("%s://%s/api/v1/phone/media-stream", scheme, c.Request.Host)

	say := &twiml.VoiceSay{
		Message: "Thank you for calling. This call will be recorded and transcribed for quality purposes.",
	}
	stream := twiml.VoiceStream{
		Name: "media-stream",
		Url:  streamURL,
	}
	connect := twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}

	response, err := twiml.Voice([]twiml.Element{say, connect})
	if err != nil {
		h.logger.Error(ctx, "failed to render TwiML response", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "stream_url", Value: streamURL}),
		"answering inbound phone call")
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, response)
}

// streamMessage is one inbound frame on the live media-stream socket. Twilio
// control frames carry an event, dictation frames carry a turn.
type streamMessage struct {
	Event   string `json:"event,omitempty"`
	Type    string `json:"type,omitempty"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`
}

// HandleMediaStream handles GET /api/v1/phone/media-stream. Each connection
// opens one live session; turn frames append utterances and closing the
// socket ends the session and starts processing.
func (h *Handler) HandleMediaStream(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}
	defer conn.Close()

	session, err := h.sessions.StartSession(ctx, "")
	if err != nil {
		h.logger.Error(ctx, "failed to start media stream session", err)
		conn.WriteJSON(gin.H{"type": "error", "error": "failed to start session"})
		return
	}
	h.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "session_id", Value: session.SessionID}),
		"media stream connected")

	conn.WriteJSON(gin.H{
		"type":       "session_started",
		"session_id": session.SessionID,
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Warn(ctx, "dropping malformed media-stream frame")
			continue
		}

		switch {
		case msg.Event == "start" || msg.Event == "media" || msg.Event == "mark":
			// Twilio control and media frames carry no dictation.
		case msg.Event == "stop" || msg.Type == "end":
			h.endStreamSession(c, conn, session.SessionID)
			return
		case msg.Type == "turn":
			if err := h.sessions.AppendTurn(ctx, session.SessionID, msg.Speaker, msg.Text); err != nil {
				conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
			}
		}
	}

	// Client went away without an explicit end. Whatever was captured still
	// gets processed.
	h.endStreamSession(c, conn, session.SessionID)
}

func (h *Handler) endStreamSession(c *gin.Context, conn *websocket.Conn, sessionID string) {
	ctx := c.Request.Context()

	session, err := h.sessions.EndSession(ctx, sessionID)
	if err != nil {
		h.logger.Warn(observability.WithFields(ctx,
			observability.Field{Key: "session_id", Value: sessionID},
			observability.Field{Key: "reason", Value: err.Error()}),
			"media stream session not processed")
		conn.WriteJSON(gin.H{"type": "session_discarded", "session_id": sessionID})
		return
	}

	conn.WriteJSON(gin.H{
		"type":       "session_ended",
		"session_id": session.SessionID,
		"call_id":    session.SessionID,
		"status":     processor.SessionProcessing,
	})
}
