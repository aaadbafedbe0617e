package dto

import "time"

// ChatRequest represents one user prompt for a conversation scope
type ChatRequest struct {
	Scope      string `json:"scope" validate:"required"`
	TextPrompt string `json:"text_prompt" validate:"required"`
}

// ChatResponse carries the assistant's reply
type ChatResponse struct {
	Scope  string `json:"scope"`
	Answer string `json:"answer"`
}

// MessageOutput is one persisted line of a conversation
type MessageOutput struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolOutput describes one tool the assistant can call
type ToolOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
