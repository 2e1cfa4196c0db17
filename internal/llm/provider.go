// Package llm defines the backend Provider interface, the type registry, and
// the factory that turns a BackendConfig into a running provider instance.
package llm

import (
	"context"

	"github.com/ephram/relay/pkg/api"
)

// Provider is one way of talking to a backend family. Instances are immutable
// value holders: everything they need is captured at construction, so the
// active provider can be swapped under concurrent requests without locking.
type Provider interface {
	// Name is the configured backend name, e.g. "local" or "cloud".
	Name() string
	// Type is the backend family, e.g. "managed-cloud".
	Type() string
	// Complete sends the conversation to the backend and returns the
	// normalized Anthropic envelope, or a classified *api.Error. It never
	// returns a partially translated response.
	Complete(ctx context.Context, req *api.MessagesRequest) (*api.MessageResponse, error)
	// Models describes the models this backend serves, for /v1/models.
	Models() []api.ModelInfo
}

// HealthChecker is an optional capability. Callers check for it with a type
// assertion; a provider that does not implement it reports as "unknown",
// never as "unhealthy".
type HealthChecker interface {
	Health(ctx context.Context) api.BackendHealth
}
