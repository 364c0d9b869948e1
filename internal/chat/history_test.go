package chat

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestHistory_RoleMapping(t *testing.T) {
	t.Parallel()

	turns := History([]Message{
		{Role: RoleUser, Content: TextContent("question")},
		{Role: RoleAssistant, Content: TextContent("answer")},
	})

	require.Len(t, turns, 2)
	assert.Equal(t, genai.RoleUser, turns[0].Role)
	assert.Equal(t, genai.RoleModel, turns[1].Role)
	assert.Equal(t, "question", turns[0].Parts[0].Text)
	assert.Equal(t, "answer", turns[1].Parts[0].Text)
}

func TestHistory_EmptyMessagesDropped(t *testing.T) {
	t.Parallel()

	turns := History([]Message{
		{Role: RoleUser, Content: TextContent("")},
		{Role: RoleUser, Content: Content{List: true, Parts: []Part{{Kind: PartText, Text: ""}}}},
		{Role: RoleUser, Content: Content{List: true}},
	})

	assert.Empty(t, turns)
}

func TestHistory_NeverMoreTurnsThanMessages(t *testing.T) {
	t.Parallel()

	messages := []Message{
		{Role: RoleUser, Content: TextContent("a")},
		{Role: RoleUser, Content: TextContent("")},
		{Role: RoleAssistant, Content: TextContent("b")},
	}

	turns := History(messages)
	assert.LessOrEqual(t, len(turns), len(messages))
}

func TestHistory_DataURLImage(t *testing.T) {
	t.Parallel()

	payload := base64.StdEncoding.EncodeToString([]byte{0x89, 0x50, 0x4e, 0x47})
	turns := History([]Message{{
		Role: RoleUser,
		Content: Content{List: true, Parts: []Part{
			{Kind: PartText, Text: "what is in this picture?"},
			{Kind: PartImageURL, URL: "data:image/png;base64," + payload},
		}},
	}})

	require.Len(t, turns, 1)
	require.Len(t, turns[0].Parts, 2)

	blob := turns[0].Parts[1].InlineData
	require.NotNil(t, blob)
	assert.Equal(t, "image/png", blob.MIMEType)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, blob.Data)
}

func TestHistory_NonDataImageBecomesPlaceholder(t *testing.T) {
	t.Parallel()

	turns := History([]Message{{
		Role: RoleUser,
		Content: Content{List: true, Parts: []Part{
			{Kind: PartImageURL, URL: "https://example.com/cat.jpg"},
		}},
	}})

	require.Len(t, turns, 1)
	assert.Equal(t, "[Image URL: https://example.com/cat.jpg]", turns[0].Parts[0].Text)
	assert.Nil(t, turns[0].Parts[0].InlineData)
}

func TestHistory_MalformedDataURLFallsBack(t *testing.T) {
	t.Parallel()

	for _, url := range []string{
		"data:image/png;base64",          // no comma
		"data:image/png,notbase64flag",   // missing base64 marker
		"data:image/png;base64,!!!not!!", // invalid payload
	} {
		turns := History([]Message{{
			Role:    RoleUser,
			Content: Content{List: true, Parts: []Part{{Kind: PartImageURL, URL: url}}},
		}})

		require.Len(t, turns, 1, "url %q", url)
		assert.Contains(t, turns[0].Parts[0].Text, "[Image URL: ", "url %q", url)
	}
}

func TestHistory_FileReferencePlaceholder(t *testing.T) {
	t.Parallel()

	turns := History([]Message{{
		Role: RoleUser,
		Content: Content{List: true, Parts: []Part{
			{Kind: PartFileURL, URL: "https://example.com/doc.pdf"},
		}},
	}})

	require.Len(t, turns, 1)
	assert.Equal(t, "[File URL: https://example.com/doc.pdf]", turns[0].Parts[0].Text)
}

func TestHistory_UnknownPartKindSkipped(t *testing.T) {
	t.Parallel()

	turns := History([]Message{{
		Role: RoleUser,
		Content: Content{List: true, Parts: []Part{
			{Kind: PartKind("audio_url"), URL: "https://example.com/a.mp3"},
			{Kind: PartText, Text: "transcribe this"},
		}},
	}})

	require.Len(t, turns, 1)
	require.Len(t, turns[0].Parts, 1)
	assert.Equal(t, "transcribe this", turns[0].Parts[0].Text)
}
