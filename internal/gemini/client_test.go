package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, len(texts))
	for i, t := range texts {
		parts[i] = &genai.Part{Text: t}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: genai.RoleModel, Parts: parts}}},
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := NewClient(ctx, Config{Model: "gemini-2.5-flash"})
	assert.ErrorContains(t, err, "api key")

	_, err = NewClient(ctx, Config{APIKey: "k"})
	assert.ErrorContains(t, err, "model name")
}

func TestFunctionCall(t *testing.T) {
	t.Parallel()

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, FunctionCall(nil))
	})

	t.Run("text response", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, FunctionCall(textResponse("Paris")))
	})

	t.Run("tool request", func(t *testing.T) {
		t.Parallel()

		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{
					Name: "internet_search",
					Args: map[string]any{"query": "Acme Corp"},
				}}},
			}}},
		}

		fc := FunctionCall(resp)
		require.NotNil(t, fc)
		assert.Equal(t, "internet_search", fc.Name)
		assert.Equal(t, "Acme Corp", fc.Args["query"])
	})

	t.Run("empty candidate content", func(t *testing.T) {
		t.Parallel()

		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{Role: genai.RoleModel}}},
		}
		assert.Nil(t, FunctionCall(resp))
	})
}

func TestResponseText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", ResponseText(nil))
	assert.Equal(t, "Paris is the capital.", ResponseText(textResponse("Paris ", "is the capital.")))
}

func TestCallContent(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CallContent(nil))

	resp := textResponse("hello")
	content := CallContent(resp)
	require.NotNil(t, content)
	assert.Equal(t, genai.RoleModel, content.Role)
}

func TestChunkTexts_SkipsEmpty(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{
			Parts: []*genai.Part{{Text: "a"}, {Text: ""}, {Text: "b"}},
		}}},
	}
	assert.Equal(t, []string{"a", "b"}, chunkTexts(resp))
}
