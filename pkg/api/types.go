package api

import "encoding/json"

// MessagesRequest is the Anthropic Messages envelope accepted on /v1/messages.
// Option fields are pointers so that "absent" and "zero" stay distinguishable:
// an unset temperature is omitted from the outbound request, never sent as null.
type MessagesRequest struct {
	Messages    []Message `json:"messages" binding:"required,min=1,dive"`
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type Message struct {
	Role    string  `json:"role" binding:"required,oneof=user assistant"`
	Content Content `json:"content"`
}

// Content handles the union type: string | []ContentBlock
type Content struct {
	Text   string
	Blocks []ContentBlock
}

func (c *Content) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &c.Blocks)
	}
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// Flatten collapses block content down to a single string for backends that
// only speak plain-text messages.
func (c Content) Flatten() string {
	if c.Blocks == nil {
		return c.Text
	}
	out := ""
	for _, b := range c.Blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessageResponse is the normalized Anthropic-compatible response envelope.
// Every backend produces exactly this shape, whatever its native format.
type MessageResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Type    string `json:"type"`
}

const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthUnknown   = "unknown"
)

// BackendHealth is the result of probing a backend. Probes never fail with an
// error; unreachability is encoded in Status.
type BackendHealth struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}
