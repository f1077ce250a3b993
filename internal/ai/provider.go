package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type ChatRequest struct {
	Messages []Message
	// JSON asks the model for a single JSON object as the reply.
	JSON        bool
	Temperature float64
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}
