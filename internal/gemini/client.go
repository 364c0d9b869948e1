// Package gemini wraps the google.golang.org/genai SDK behind the two call
// shapes the streaming orchestrator needs: a fully-materialized probe call
// whose response can be inspected for a tool invocation, and a streaming
// call yielding text deltas.
package gemini

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"
)

// Config describes one per-request client. The API key comes from the
// inbound request body, the model name from server configuration; neither
// is process-global state.
type Config struct {
	APIKey string
	Model  string

	// Tools are the function declarations advertised on every call.
	Tools []*genai.FunctionDeclaration
}

// Client is a thin wrapper over the genai SDK scoped to a single request.
type Client struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewClient creates a Gemini client for one request.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{}
	if len(cfg.Tools) > 0 {
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: cfg.Tools}}
	}

	return &Client{client: client, model: cfg.Model, config: genConfig}, nil
}

// Generate issues a single non-streaming call. The response is complete, so
// the caller can inspect it for a function call before any delta is
// forwarded downstream.
func (c *Client) Generate(ctx context.Context, turns []*genai.Content) (*genai.GenerateContentResponse, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, turns, c.config)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	return resp, nil
}

// Stream issues a streaming call and yields each text chunk as it arrives.
// A provider error ends the sequence with that error.
func (c *Client) Stream(ctx context.Context, turns []*genai.Content) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, turns, c.config) {
			if err != nil {
				yield("", fmt.Errorf("model stream failed: %w", err))
				return
			}

			for _, text := range chunkTexts(resp) {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

// chunkTexts extracts the text parts of one streamed response chunk.
func chunkTexts(resp *genai.GenerateContentResponse) []string {
	var texts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
	}
	return texts
}

// FunctionCall returns the function call carried by the first part of the
// response's first candidate, or nil when the model answered directly. The
// model emits a tool request as one discrete leading part, never as
// incremental text.
func FunctionCall(resp *genai.GenerateContentResponse) *genai.FunctionCall {
	cand := firstCandidate(resp)
	if cand == nil || len(cand.Content.Parts) == 0 {
		return nil
	}
	return cand.Content.Parts[0].FunctionCall
}

// CallContent returns the model's own content from the probe response, used
// to extend the history before the post-tool call.
func CallContent(resp *genai.GenerateContentResponse) *genai.Content {
	cand := firstCandidate(resp)
	if cand == nil {
		return nil
	}
	return cand.Content
}

// ResponseText concatenates the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	cand := firstCandidate(resp)
	if cand == nil {
		return ""
	}

	var out string
	for _, part := range cand.Content.Parts {
		out += part.Text
	}
	return out
}

func firstCandidate(resp *genai.GenerateContentResponse) *genai.Candidate {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0]
}
