package repost

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSnippetLength is the platform message length limit.
const maxSnippetLength = 2000

const (
	truncationMark = "... [truncated]"
	emptyContent   = "(embed/attachment only)"

	// replyPreviewRunes caps the quoted parent line of a reply.
	replyPreviewRunes = 100
)

// jumpURL builds the deep link back to the original message.
func jumpURL(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// replyQuote renders the quoted parent line shown above a reply.
func replyQuote(authorName, content string) string {
	if strings.TrimSpace(content) == "" {
		content = emptyContent
	}
	if runes := []rune(content); len(runes) > replyPreviewRunes {
		content = string(runes[:replyPreviewRunes-3]) + "…"
	}
	return fmt.Sprintf("> **↪️ %s:** %s", authorName, content)
}

// buildSnippet renders the repost body: an attribution header, the reply
// quote when the post is a reply, the current message content and a jump
// link back to the source. The result always fits the platform limit; the
// content is what gets trimmed, never the link.
func buildSnippet(authorName, guildName, channelName, quote, content, jump string) string {
	var header string
	if guildName != "" {
		header = fmt.Sprintf("%s (%s • #%s):\n", authorName, guildName, channelName)
	} else {
		header = fmt.Sprintf("%s (#%s):\n", authorName, channelName)
	}
	footer := "\n" + jump

	if strings.TrimSpace(content) == "" {
		content = emptyContent
	}
	if quote != "" {
		content = quote + "\n\n" + content
	}

	budget := maxSnippetLength - len(header) - len(footer)
	if len(content) > budget {
		content = truncateRunes(content, budget-len(truncationMark)) + truncationMark
	}

	return header + content + footer
}

// truncateRunes cuts the string to at most n bytes without splitting a
// multibyte character.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " \n")
}
