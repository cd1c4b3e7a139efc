// ABOUTME: Derives a conversation title from the first message
// ABOUTME: Long messages are cut to a fixed number of characters plus an ellipsis

package chat

import "unicode/utf8"

// TitleLimit is the longest title taken verbatim from a message.
const TitleLimit = 50

// Title returns content unchanged when it fits, else its first TitleLimit
// characters followed by "...".
func Title(content string) string {
	if utf8.RuneCountInString(content) <= TitleLimit {
		return content
	}
	return string([]rune(content)[:TitleLimit]) + "..."
}
