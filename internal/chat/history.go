package chat

import (
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// History converts the inbound message list into Gemini turns.
//
// Rules:
//   - assistant → model role, everything else → user role
//   - plain-text content becomes a single text part (empty text is dropped)
//   - data-URL images are decoded into inline blobs; any other image URL is
//     degraded to a text placeholder, as are file references
//   - a message that yields no parts contributes no turn
//
// The conversion never fails: malformed data URLs take the placeholder path.
func History(messages []Message) []*genai.Content {
	turns := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		if !msg.Content.List {
			if msg.Content.Text != "" {
				parts = append(parts, &genai.Part{Text: msg.Content.Text})
			}
		} else {
			for _, p := range msg.Content.Parts {
				switch p.Kind {
				case PartText:
					if p.Text != "" {
						parts = append(parts, &genai.Part{Text: p.Text})
					}
				case PartImageURL:
					parts = append(parts, imagePart(p.URL))
				case PartFileURL:
					parts = append(parts, &genai.Part{Text: fmt.Sprintf("[File URL: %s]", p.URL)})
				}
			}
		}

		if len(parts) > 0 {
			turns = append(turns, &genai.Content{Role: role, Parts: parts})
		}
	}

	return turns
}

// imagePart decodes a data-URL image into an inline blob. Anything that is
// not a well-formed base64 image data URL degrades to a text placeholder.
func imagePart(url string) *genai.Part {
	mime, data, ok := decodeDataURL(url)
	if !ok {
		return &genai.Part{Text: fmt.Sprintf("[Image URL: %s]", url)}
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}}
}

// decodeDataURL parses "data:image/<sub>;base64,<payload>" into a MIME type
// and raw bytes.
func decodeDataURL(url string) (mime string, data []byte, ok bool) {
	if !strings.HasPrefix(url, "data:image/") {
		return "", nil, false
	}

	header, payload, found := strings.Cut(url, ",")
	if !found {
		return "", nil, false
	}

	// header is "data:<mime>;base64"
	meta := strings.TrimPrefix(header, "data:")
	mime, enc, found := strings.Cut(meta, ";")
	if !found || enc != "base64" || mime == "" {
		return "", nil, false
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	return mime, raw, true
}
