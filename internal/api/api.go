package api

import (
	"net/http"

	callsHandler "callgist/internal/calls/handler"
	sessionsHandler "callgist/internal/sessions/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router          *gin.RouterGroup
	callsHandler    callsHandler.Handler
	sessionsHandler sessionsHandler.Handler
}

func New(router *gin.RouterGroup, callsHandler callsHandler.Handler, sessionsHandler sessionsHandler.Handler) API {
	return API{
		router:          router,
		callsHandler:    callsHandler,
		sessionsHandler: sessionsHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api/v1")
	{
		callsGroup := apiGroup.Group("/calls")
		callsGroup.POST("/upload", a.callsHandler.HandleUploadCall)
		callsGroup.GET("", a.callsHandler.HandleSearchCalls)
		callsGroup.GET("/:call_id/status", a.callsHandler.HandleGetCallStatus)
		callsGroup.GET("/:call_id/transcript", a.callsHandler.HandleGetCallTranscript)
		callsGroup.GET("/:call_id/summary", a.callsHandler.HandleGetCallSummary)
		callsGroup.GET("/:call_id/stream", a.callsHandler.HandleStreamCallEvents)
	}
	{
		sessionsGroup := apiGroup.Group("/sessions")
		sessionsGroup.POST("/start", a.sessionsHandler.HandleStartSession)
		sessionsGroup.GET("/:session_id", a.sessionsHandler.HandleGetSession)
		sessionsGroup.POST("/:session_id/turns", a.sessionsHandler.HandleAppendTurn)
		sessionsGroup.POST("/:session_id/end", a.sessionsHandler.HandleEndSession)
	}
	{
		phoneGroup := apiGroup.Group("/phone")
		phoneGroup.POST("/answer", a.sessionsHandler.HandleAnswerPhone)
		phoneGroup.GET("/media-stream", a.sessionsHandler.HandleMediaStream)
	}
	apiGroup.GET("/analytics/dashboard", a.callsHandler.HandleDashboardAnalytics)
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
