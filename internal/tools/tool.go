// Package tools defines the closed set of capabilities the model may invoke
// during a streamed chat turn, together with the registry that dispatches
// them and the schemas advertised to the model.
//
// Adding a capability means adding a type here and listing it in
// NewRegistry; there is no open runtime registration.
package tools

import (
	"context"

	"google.golang.org/genai"

	"github.com/okarin0/relay/internal/search"
)

// Credentials carries the per-request provider credentials a capability may
// need. Credentials arrive with each inbound request and are never stored.
type Credentials struct {
	GeminiAPIKey string
	TavilyAPIKey string
}

// Tool is a capability the model can request instead of answering directly.
//
// Execute never returns a Go error: every failure mode is folded into the
// Result so the orchestrator has a single failure signal to inspect.
type Tool interface {
	// Name is the identifier the model uses to request this capability.
	Name() string

	// Declaration is the schema advertised to the model.
	Declaration() *genai.FunctionDeclaration

	// Execute runs the capability with the model-provided arguments.
	Execute(ctx context.Context, args map[string]any, creds Credentials) search.Result
}
