package search

import (
	"context"
	"fmt"
	"log/slog"
)

// NoResultsSentinel is returned as the results payload when every query
// variant came back empty. It is a deliberate non-empty marker so callers
// can distinguish "nothing found" from an empty list.
const NoResultsSentinel = "No relevant information found"

// resultThreshold stops further query variants once the accumulated hit
// count exceeds it. The check runs between variants, so the final count is
// not capped at this value.
const resultThreshold = 5

// Result is the outcome of a search capability invocation. Exactly one of
// Results and Error is meaningful; Error non-empty means the invocation
// failed. Results is either []Item or the NoResultsSentinel string.
type Result struct {
	Results any    `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether the result carries a provider or transport error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Payload converts the result into the response map handed back to the
// model as the tool output.
func (r Result) Payload() map[string]any {
	if r.Failed() {
		return map[string]any{"error": r.Error}
	}
	return map[string]any{"results": r.Results}
}

// Service aggregates provider searches across query variants.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates a search service.
func NewService(client *Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, logger: logger}
}

// queryVariants are the reformulations tried for each search, in order.
func queryVariants(query string) []string {
	return []string{
		query,
		fmt.Sprintf("what is %s", query),
		fmt.Sprintf("%s company information", query),
		fmt.Sprintf("%s overview", query),
	}
}

// Search runs the query variants sequentially at basic depth, accumulating
// hits until the count exceeds the threshold. Failures never propagate as
// errors; they are folded into the Result.
func (s *Service) Search(ctx context.Context, query, apiKey string) Result {
	var all []Item

	for _, q := range queryVariants(query) {
		hits, err := s.client.Search(ctx, q, DepthBasic, apiKey)
		if err != nil {
			s.logger.Warn("search variant failed", "query", q, "error", err)
			return Result{Error: fmt.Sprintf("Failed to perform internet search. Details: %v", err)}
		}

		all = append(all, hits...)
		if len(all) > resultThreshold {
			break
		}
	}

	if len(all) == 0 {
		return Result{Results: NoResultsSentinel}
	}

	s.logger.Debug("search completed", "query", query, "hits", len(all))
	return Result{Results: all}
}
