package chat

import (
	"fmt"
	"sort"
	"strings"
)

// PromptSummary derives the prompt text persisted alongside a conversation.
//
// Only the last message is inspected, and only when it comes from the user;
// otherwise the summary is empty and the caller skips persistence. For
// multi-part content the text parts are joined and a bracketed tag records
// any media kinds present.
func PromptSummary(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	last := messages[len(messages)-1]
	if last.Role != RoleUser {
		return ""
	}

	if !last.Content.List {
		return last.Content.Text
	}

	var texts []string
	kinds := make(map[string]struct{})
	for _, p := range last.Content.Parts {
		switch p.Kind {
		case PartText:
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		case PartImageURL:
			kinds["image"] = struct{}{}
		case PartFileURL:
			kinds["file"] = struct{}{}
		}
	}

	summary := strings.TrimSpace(strings.Join(texts, " "))
	if len(kinds) > 0 {
		names := make([]string, 0, len(kinds))
		for k := range kinds {
			names = append(names, k)
		}
		sort.Strings(names)
		joined := strings.Join(names, ", ")

		if summary == "" {
			return fmt.Sprintf("[Only media: %s]", joined)
		}
		summary = strings.TrimSpace(summary + fmt.Sprintf(" [Includes: %s]", joined))
	}
	return summary
}
