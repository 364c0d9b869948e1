package tools

import (
	"context"
	"log/slog"

	"google.golang.org/genai"

	"github.com/okarin0/relay/internal/search"
)

// InternetSearchName is the tool identifier advertised to the model.
const InternetSearchName = "internet_search"

// InternetSearch is the web search capability. It wraps the search service
// and adapts it to the Tool contract.
type InternetSearch struct {
	service *search.Service
	logger  *slog.Logger
}

// NewInternetSearch creates the internet search tool.
func NewInternetSearch(service *search.Service, logger *slog.Logger) *InternetSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternetSearch{service: service, logger: logger}
}

// Name returns the tool identifier.
func (t *InternetSearch) Name() string {
	return InternetSearchName
}

// Declaration returns the schema advertised to the model.
func (t *InternetSearch) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name: InternetSearchName,
		Description: "Searches the internet for real-time, up-to-date information on any topic. " +
			"Use this for questions about current events, facts, or anything that requires fresh data.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "The specific search query or question to look up on the internet.",
				},
			},
			Required: []string{"query"},
		},
	}
}

// Execute runs the search with the model-provided query.
func (t *InternetSearch) Execute(ctx context.Context, args map[string]any, creds Credentials) search.Result {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return search.Result{Error: "missing required string argument 'query'"}
	}

	t.logger.Info("executing internet search", "query", query)
	return t.service.Search(ctx, query, creds.TavilyAPIKey)
}
