// Package formatter adapts generated replies to the markup and length limits
// of each delivery channel.
package formatter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	ChannelWeb      = "web"
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

const (
	WhatsAppLimit = 4096
	WebLimit      = 2000

	WhatsAppTruncationNotice = "\n\n_(Message truncated. Please call us for details.)_"
	WebTruncationNotice      = "\n\n(Ask me for more details!)"
)

var (
	htmlTag      = regexp.MustCompile(`<[^>]+>`)
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*(.+?)\*`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,3}\s+(.+)$`)
	mdBullet     = regexp.MustCompile(`(?m)^[-*]\s+`)
	paragraphGap = "\n\n"
)

// Format dispatches on channel. Unknown channels get web formatting.
func Format(text, channel string) string {
	switch channel {
	case ChannelWhatsApp:
		return WhatsApp(text)
	case ChannelEmail:
		return Email(text)
	default:
		return Web(text)
	}
}

// WhatsApp strips HTML, converts markdown to WhatsApp emphasis and bullets,
// and truncates to the platform limit.
func WhatsApp(text string) string {
	text = htmlTag.ReplaceAllString(text, "")
	text = mdBold.ReplaceAllString(text, "*$1*")
	text = mdHeading.ReplaceAllString(text, "*$1*")
	text = mdBullet.ReplaceAllString(text, "• ")
	return strings.TrimSpace(truncate(text, WhatsAppLimit, WhatsAppTruncationNotice))
}

// Email wraps plain text in paragraphs and converts markdown emphasis to
// HTML. It never truncates.
func Email(text string) string {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "<p>") && !strings.Contains(text, "<br") {
		var b strings.Builder
		for _, p := range strings.Split(text, paragraphGap) {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			b.WriteString("<p>")
			b.WriteString(p)
			b.WriteString("</p>")
		}
		text = b.String()
	}
	text = strings.ReplaceAll(text, "\n", "<br>")
	text = mdBold.ReplaceAllString(text, "<strong>$1</strong>")
	text = mdItalic.ReplaceAllString(text, "<em>$1</em>")
	return text
}

// Web strips HTML before the reply reaches a browser and truncates long
// replies with a lighter notice.
func Web(text string) string {
	text = htmlTag.ReplaceAllString(text, "")
	return strings.TrimSpace(truncate(text, WebLimit, WebTruncationNotice))
}

// truncate keeps text within limit runes including the notice, preferring
// to cut after the last full stop in the second half of the kept text.
func truncate(text string, limit int, notice string) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	keep := limit - utf8.RuneCountInString(notice)
	runes := []rune(text)[:keep]
	if idx := lastIndexRune(runes, '.'); idx > len(runes)/2 {
		runes = runes[:idx+1]
	}
	return strings.TrimRightFunc(string(runes), isSpace) + notice
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
