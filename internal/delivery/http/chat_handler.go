package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"investly/internal/delivery/http/dto"
	"investly/internal/domain"
)

// Assistant processes one conversation turn
type Assistant interface {
	Process(ctx context.Context, scope, text string) (string, error)
}

// ChatHandler handles assistant conversation requests
type ChatHandler struct {
	assistant Assistant
	history   domain.MessageHistory
	tools     []domain.ToolDefinition
	locks     *scopeLocks
	timeout   time.Duration
}

// NewChatHandler creates a new ChatHandler. history may be nil.
func NewChatHandler(assistant Assistant, history domain.MessageHistory, tools []domain.ToolDefinition, timeout time.Duration) *ChatHandler {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &ChatHandler{
		assistant: assistant,
		history:   history,
		tools:     tools,
		locks:     newScopeLocks(),
		timeout:   timeout,
	}
}

// Chat posts a prompt to the scope's thread and returns the reply
// POST /api/chat
func (h *ChatHandler) Chat(c echo.Context) error {
	var req dto.ChatRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request body")
	}

	req.Scope = strings.TrimSpace(req.Scope)
	req.TextPrompt = strings.TrimSpace(req.TextPrompt)
	if req.Scope == "" || req.TextPrompt == "" {
		return BadRequestResponse(c, "scope and text_prompt are required")
	}

	unlock := h.locks.lock(req.Scope)
	defer unlock()

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	answer, err := h.assistant.Process(ctx, req.Scope, req.TextPrompt)
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	return SuccessResponse(c, dto.ChatResponse{Scope: req.Scope, Answer: answer})
}

// History lists the persisted messages of a scope
// GET /api/chat/history?scope=
func (h *ChatHandler) History(c echo.Context) error {
	if h.history == nil {
		return NotFoundResponse(c, "History is not available")
	}

	scope := strings.TrimSpace(c.QueryParam("scope"))
	if scope == "" {
		return BadRequestResponse(c, "scope is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	records, err := h.history.History(ctx, scope)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load history", err)
	}

	out := make([]dto.MessageOutput, 0, len(records))
	for _, r := range records {
		out = append(out, dto.MessageOutput{Role: r.Role, Text: r.Text, ThreadID: r.ThreadID, CreatedAt: r.CreatedAt})
	}
	return SuccessResponse(c, out)
}

// Tools lists the functions exposed to the assistant
// GET /api/tools
func (h *ChatHandler) Tools(c echo.Context) error {
	out := make([]dto.ToolOutput, 0, len(h.tools))
	for _, t := range h.tools {
		out = append(out, dto.ToolOutput{Name: t.Name, Description: t.Description})
	}
	return SuccessResponse(c, out)
}

// statusFor maps an error kind onto an HTTP status
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch domain.KindOf(err) {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindRunTimeout:
		return http.StatusGatewayTimeout
	case domain.KindNetworkFailure, domain.KindProviderRejected, domain.KindRunTerminalFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
