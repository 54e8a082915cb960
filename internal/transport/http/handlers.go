package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/stompdebug/internal/config"
	"github.com/vovakirdan/stompdebug/internal/proto"
	"github.com/vovakirdan/stompdebug/internal/session"
	"github.com/vovakirdan/stompdebug/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Handlers serves the control API.
type Handlers struct {
	ctrl       Controller
	lines      LineSource
	transcript store.Transcript
	cfg        config.Config
	log        *zerolog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(ctrl Controller, lines LineSource, transcript store.Transcript, cfg config.Config, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		ctrl:       ctrl,
		lines:      lines,
		transcript: transcript,
		cfg:        cfg,
		log:        logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse describes the session state.
type SessionResponse struct {
	State    string `json:"state"`
	UserID   string `json:"userId,omitempty"`
	FullName string `json:"fullName,omitempty"`
	ConnID   string `json:"connId,omitempty"`
}

// ConnectRequest overrides the configured identity.
type ConnectRequest struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
}

// StatusRequest sets the presence status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SendMessageRequest is a direct message to publish.
type SendMessageRequest struct {
	To      string `json:"to" binding:"required"`
	Content string `json:"content"`
}

// MessagesResponse lists rendered log lines.
type MessagesResponse struct {
	Lines []string `json:"lines"`
}

// HistoryEntry is one persisted transcript entry.
type HistoryEntry struct {
	ID      int64     `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
	Line    string    `json:"line"`
}

// GetSession reports the session state.
// GET /api/session
func (h *Handlers) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionResponse(h.ctrl.Snapshot()))
}

// Connect opens the session.
// POST /api/session/connect
func (h *Handlers) Connect(c *gin.Context) {
	var req ConnectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid connect request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	id := session.Identity{UserID: h.cfg.UserID, FullName: h.cfg.FullName}
	if req.UserID != "" {
		id.UserID = req.UserID
	}
	if req.FullName != "" {
		id.FullName = req.FullName
	}

	ctx, cancel := h.connectContext(c.Request.Context())
	defer cancel()

	if err := h.ctrl.Connect(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(h.ctrl.Snapshot()))
}

// Disconnect closes the session.
// POST /api/session/disconnect
func (h *Handlers) Disconnect(c *gin.Context) {
	if err := h.ctrl.Disconnect(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(h.ctrl.Snapshot()))
}

// SetStatus publishes AVAILABLE or AWAY.
// PUT /api/status
func (h *Handlers) SetStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	status, err := proto.ParseStatus(req.Status)
	if err != nil || status == proto.StatusOffline {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status must be AVAILABLE or AWAY"})
		return
	}

	if err := h.ctrl.SetStatus(c.Request.Context(), status); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendMessage publishes a direct message.
// POST /api/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.ctrl.SendMessage(c.Request.Context(), req.To, req.Content); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ListMessages returns the most recent rendered lines.
// GET /api/messages?limit=n
func (h *Handlers) ListMessages(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	lines := h.lines.Lines(limit)
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, MessagesResponse{Lines: lines})
}

// ListHistory returns persisted transcript entries.
// GET /api/history?limit=n
func (h *Handlers) ListHistory(c *gin.Context) {
	if h.transcript == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "history is disabled"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	entries, err := h.transcript.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:      e.ID,
			From:    e.From,
			To:      e.To,
			Content: e.Content,
			Date:    e.Date,
			Line:    e.Line,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) connectContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.ConnectTimeout > 0 {
		return context.WithTimeout(parent, h.cfg.ConnectTimeout)
	}
	return context.WithCancel(parent)
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrAlreadyConnected):
		h.log.Warn().Err(err).Msg("rejected in current session state")
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, session.ErrInvalidIdentity), errors.Is(err, session.ErrNoRecipient):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("broker operation failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	}
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}

func toSessionResponse(snap session.Snapshot) SessionResponse {
	return SessionResponse{
		State:    snap.State.String(),
		UserID:   snap.Identity.UserID,
		FullName: snap.Identity.FullName,
		ConnID:   snap.ConnID,
	}
}
