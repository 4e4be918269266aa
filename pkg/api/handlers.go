package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldworks/answerhub/pkg/events"
)

// maxMessageLength bounds an incoming question.
const maxMessageLength = 2000

// emitterBuffer is the per-request event buffer between the workflow
// and the SSE writer. Small on purpose: a stalled client stalls the
// workflow rather than queueing events without bound.
const emitterBuffer = 16

type answerRequest struct {
	Input struct {
		Message string `json:"message"`
	} `json:"input"`
	Conversation struct {
		ID        string `json:"id"`
		UserID    string `json:"user_id"`
		CompanyID string `json:"company_id"`
	} `json:"conversation"`
}

// validate enforces the request contract: message 1..2000 characters,
// all conversation identifiers present.
func (r *answerRequest) validate() string {
	switch {
	case r.Input.Message == "":
		return "input.message is required"
	case len(r.Input.Message) > maxMessageLength:
		return "input.message exceeds 2000 characters"
	case r.Conversation.ID == "":
		return "conversation.id is required"
	case r.Conversation.UserID == "":
		return "conversation.user_id is required"
	case r.Conversation.CompanyID == "":
		return "conversation.company_id is required"
	}
	return ""
}

// handleAnswer runs the workflow and streams its events as SSE frames,
// one `data: <json>` line per event.
func (s *Server) handleAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	em := events.NewEmitter(emitterBuffer)
	go func() {
		// Run emits the terminal event and closes the emitter itself.
		_ = s.engine.Run(c.Request.Context(), req.Conversation.ID, req.Input.Message, em)
	}()

	start := time.Now()
	for ev := range em.Events() {
		frame, err := events.EncodeSSE(ev)
		if err != nil {
			slog.Error("Dropping unencodable event", "type", ev.Type, "error", err)
			continue
		}
		if _, err := c.Writer.Write(frame); err != nil {
			slog.Info("Client went away mid-stream",
				"thread_id", req.Conversation.ID, "error", err)
			return
		}
		c.Writer.Flush()
	}
	slog.Info("Answer stream finished",
		"thread_id", req.Conversation.ID, "duration", time.Since(start))
}

// handleHealth reports liveness plus conversation-store reachability.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
