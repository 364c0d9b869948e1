// Package chat defines the inbound message model and the pure conversions
// applied to it before a model call: formatting role-tagged messages into
// Gemini turns and extracting the prompt summary that is persisted with
// each conversation.
package chat

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

// Valid message roles. Anything other than RoleAssistant maps to the user
// side of the conversation when formatting.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind discriminates the closed set of content part variants.
type PartKind string

const (
	PartText     PartKind = "text"
	PartImageURL PartKind = "image_url"
	PartFileURL  PartKind = "file_url"
)

// Part is one element of a multi-part message content. Exactly one of the
// payload fields is meaningful depending on Kind. Parts with an unknown
// kind survive decoding but are skipped by every consumer.
type Part struct {
	Kind PartKind

	// Text payload for PartText.
	Text string

	// URL payload for PartImageURL (possibly a data: URL) and PartFileURL.
	URL string
}

// partJSON is the wire shape of a content part.
type partJSON struct {
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL *urlJSON `json:"image_url,omitempty"`
	FileURL  *urlJSON `json:"file_url,omitempty"`
}

type urlJSON struct {
	URL string `json:"url"`
}

// UnmarshalJSON decodes the tagged wire format into a Part.
func (p *Part) UnmarshalJSON(data []byte) error {
	var raw partJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding content part: %w", err)
	}

	p.Kind = PartKind(raw.Type)
	switch p.Kind {
	case PartText:
		p.Text = raw.Text
	case PartImageURL:
		if raw.ImageURL != nil {
			p.URL = raw.ImageURL.URL
		}
	case PartFileURL:
		if raw.FileURL != nil {
			p.URL = raw.FileURL.URL
		}
	}
	return nil
}

// MarshalJSON encodes the Part back into its tagged wire format.
func (p Part) MarshalJSON() ([]byte, error) {
	raw := partJSON{Type: string(p.Kind)}
	switch p.Kind {
	case PartText:
		raw.Text = p.Text
	case PartImageURL:
		raw.ImageURL = &urlJSON{URL: p.URL}
	case PartFileURL:
		raw.FileURL = &urlJSON{URL: p.URL}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding content part: %w", err)
	}
	return b, nil
}

// Content is a message body: either a plain string or an ordered part list.
// The zero value is empty content.
type Content struct {
	// Text holds plain-string content when List is false.
	Text string

	// Parts holds structured content when List is true.
	Parts []Part

	// List records which variant arrived on the wire.
	List bool
}

// TextContent wraps a plain string as message content.
func TextContent(s string) Content {
	return Content{Text: s}
}

// UnmarshalJSON accepts either a JSON string or an array of parts.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Parts = nil
		c.List = false
		return nil
	}

	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or a part list: %w", err)
	}
	c.Text = ""
	c.Parts = parts
	c.List = true
	return nil
}

// MarshalJSON emits the same variant that was decoded.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.List {
		b, err := json.Marshal(c.Parts)
		if err != nil {
			return nil, fmt.Errorf("encoding content parts: %w", err)
		}
		return b, nil
	}
	b, err := json.Marshal(c.Text)
	if err != nil {
		return nil, fmt.Errorf("encoding content text: %w", err)
	}
	return b, nil
}

// Message is one role-tagged entry of the inbound conversation history.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// UserText builds a plain-text user message. Used when the request carries a
// bare prompt to append to the history.
func UserText(prompt string) Message {
	return Message{Role: RoleUser, Content: TextContent(prompt)}
}
