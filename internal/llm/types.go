package llm

import "errors"

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrMissingAPIKey is returned by NewProvider when the provider's key
	// variable is unset.
	ErrMissingAPIKey = errors.New("api key not set")
	// ErrUnsupportedProvider is returned for unknown provider names.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest contains the parameters for an LLM completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// CompletionResponse contains the result of an LLM completion request.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}

// prompt flattens the conversation for providers that only accept a single
// input string.
func (r CompletionRequest) prompt() string {
	var out string
	for i, m := range r.Messages {
		if i > 0 {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}
