package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"

	"investly/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config holds the assistant provider settings
type Config struct {
	BaseURL     string
	APIKey      string
	AssistantID string
	Timeout     time.Duration
}

// AssistantClient implements domain.AssistantProvider over the Assistants v2 REST API
type AssistantClient struct {
	http        *resty.Client
	assistantID string
}

// NewAssistantClient creates a new AssistantClient
func NewAssistantClient(cfg Config) (*AssistantClient, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewError(domain.KindConfiguration, "assistant API key is required", nil)
	}
	if cfg.AssistantID == "" {
		return nil, domain.NewError(domain.KindConfiguration, "assistant id is required", nil)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetAuthToken(cfg.APIKey)
	client.SetHeader("OpenAI-Beta", "assistants=v2")
	client.SetHeader("Content-Type", "application/json")
	client.SetJSONMarshaler(json.Marshal)
	client.SetJSONUnmarshaler(json.Unmarshal)

	return &AssistantClient{http: client, assistantID: cfg.AssistantID}, nil
}

// Wire types

type threadObject struct {
	ID string `json:"id"`
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type createMessageRequest struct {
	Role    string     `json:"role"`
	Content []textPart `json:"content"`
}

type functionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type createRunRequest struct {
	AssistantID       string     `json:"assistant_id"`
	Tools             []toolSpec `json:"tools,omitempty"`
	ToolChoice        string     `json:"tool_choice"`
	ParallelToolCalls bool       `json:"parallel_tool_calls"`
}

type submitToolOutputsRequest struct {
	ToolOutputs []domain.ToolOutput `json:"tool_outputs"`
}

type runObject struct {
	ID             string `json:"id"`
	ThreadID       string `json:"thread_id"`
	Status         string `json:"status"`
	RequiredAction *struct {
		Type              string `json:"type"`
		SubmitToolOutputs struct {
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type runList struct {
	Data []runObject `json:"data"`
}

type messageObject struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	RunID   string `json:"run_id"`
	Content []struct {
		Type string `json:"type"`
		Text *struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

type messageList struct {
	Data []messageObject `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (r runObject) toDomain() domain.Run {
	run := domain.Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   domain.RunStatus(r.Status),
	}
	if r.RequiredAction != nil {
		for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			run.ToolCalls = append(run.ToolCalls, domain.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	if r.LastError != nil {
		run.LastError = strings.TrimSpace(r.LastError.Code + " " + r.LastError.Message)
	}
	return run
}

// CreateThread opens an empty thread
func (c *AssistantClient) CreateThread(ctx context.Context) (string, error) {
	var out threadObject
	if err := c.call(ctx, http.MethodPost, "/threads", struct{}{}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", domain.NewError(domain.KindProviderRejected, "create thread: empty thread id", nil)
	}
	return out.ID, nil
}

// AddMessage posts a user text message to the thread
func (c *AssistantClient) AddMessage(ctx context.Context, threadID, text string) error {
	body := createMessageRequest{
		Role:    domain.RoleUser,
		Content: []textPart{{Type: "text", Text: text}},
	}
	return c.call(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil)
}

// CreateRun starts a run of the configured assistant with the given tools
func (c *AssistantClient) CreateRun(ctx context.Context, threadID string, tools []domain.ToolDefinition) (domain.Run, error) {
	body := createRunRequest{
		AssistantID:       c.assistantID,
		ToolChoice:        "auto",
		ParallelToolCalls: true,
	}
	for _, t := range tools {
		body.Tools = append(body.Tools, toolSpec{
			Type:     "function",
			Function: functionSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}

	var out runObject
	if err := c.call(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &out); err != nil {
		return domain.Run{}, err
	}
	return out.toDomain(), nil
}

// ListRuns lists the thread's runs, most recent first
func (c *AssistantClient) ListRuns(ctx context.Context, threadID string) ([]domain.Run, error) {
	var out runList
	if err := c.call(ctx, http.MethodGet, "/threads/"+threadID+"/runs", nil, &out); err != nil {
		return nil, err
	}
	runs := make([]domain.Run, 0, len(out.Data))
	for _, r := range out.Data {
		runs = append(runs, r.toDomain())
	}
	return runs, nil
}

// SubmitToolOutputs submits one batch of outputs for a run awaiting action
func (c *AssistantClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error) {
	var out runObject
	path := "/threads/" + threadID + "/runs/" + runID + "/submit_tool_outputs"
	if err := c.call(ctx, http.MethodPost, path, submitToolOutputsRequest{ToolOutputs: outputs}, &out); err != nil {
		return domain.Run{}, err
	}
	return out.toDomain(), nil
}

// CancelRun requests cancellation of a run
func (c *AssistantClient) CancelRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	var out runObject
	if err := c.call(ctx, http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/cancel", struct{}{}, &out); err != nil {
		return domain.Run{}, err
	}
	return out.toDomain(), nil
}

// ListMessages lists the thread's messages newest first
func (c *AssistantClient) ListMessages(ctx context.Context, threadID string) ([]domain.ThreadMessage, error) {
	var out messageList
	if err := c.call(ctx, http.MethodGet, "/threads/"+threadID+"/messages?order=desc", nil, &out); err != nil {
		return nil, err
	}

	messages := make([]domain.ThreadMessage, 0, len(out.Data))
	for _, m := range out.Data {
		msg := domain.ThreadMessage{ID: m.ID, Role: m.Role, RunID: m.RunID}
		for _, part := range m.Content {
			content := domain.MessageContent{Type: part.Type}
			if part.Text != nil {
				content.Text = part.Text.Value
			}
			msg.Contents = append(msg.Contents, content)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *AssistantClient) call(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return domain.NewError(domain.KindNetworkFailure, fmt.Sprintf("assistant %s %s", method, path), err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		msg := strings.TrimSpace(resp.String())
		var apiErr apiError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return &domain.Error{
			Kind:       domain.KindProviderRejected,
			HTTPStatus: resp.StatusCode(),
			Message:    fmt.Sprintf("assistant %s %s: %s", method, path, msg),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return domain.NewError(domain.KindProviderRejected, fmt.Sprintf("decode assistant %s response", path), err)
	}
	return nil
}
