// Package message builds Telegram captions from submissions.
package message

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ppiankov/relaypan/internal/classify"
	"github.com/ppiankov/relaypan/internal/source"
)

// Options is the static presentation config.
type Options struct {
	CategoryEmoji bool   // prefix the caption with a per-category emoji
	CTALink       string // optional call-to-action link appended to every message
}

// Formatter renders notification captions. All dynamic text (title, author,
// subject) is markdown-escaped so submission content can never corrupt the
// message markup.
type Formatter struct {
	opts Options
}

func NewFormatter(opts Options) *Formatter {
	return &Formatter{opts: opts}
}

var categoryEmoji = map[classify.Category]string{
	classify.Text:              "📝",
	classify.Image:             "🖼️",
	classify.HostedVideo:       "🎥",
	classify.GenericVideo:      "🎬",
	classify.ExternalVideoLink: "📺",
	classify.GenericLink:       "🔗",
}

// Format builds the caption for a classified submission. Deterministic: the
// same submission and classification always produce the same text. Link-style
// categories carry the target link as its own line.
func (f *Formatter) Format(sub source.Submission, res classify.Result) string {
	var b strings.Builder

	if f.opts.CategoryEmoji {
		if emoji, ok := categoryEmoji[res.Category]; ok {
			b.WriteString(emoji)
			b.WriteString(" ")
		}
	}

	b.WriteString("*")
	b.WriteString(EscapeMarkdown(sub.Title))
	b.WriteString("*")

	if subject, ok := SubjectName(sub.Title); ok {
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("✨ %s", EscapeMarkdown(subject)))
	}

	if sub.Author != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("👤 u/%s • r/%s", EscapeMarkdown(sub.Author), sub.Subreddit))
	}

	if isLinkCategory(res.Category) && res.MediaURL != "" {
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("🌐 %s", res.MediaURL))
	}

	if sub.Permalink != "" {
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("💬 [View post](%s)", sub.Permalink))
	}

	if f.opts.CTALink != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("🚀 [See more](%s)", f.opts.CTALink))
	}

	return b.String()
}

func isLinkCategory(cat classify.Category) bool {
	switch cat {
	case classify.ExternalVideoLink, classify.GenericVideo, classify.GenericLink:
		return true
	}
	return false
}

// Degraded appends a media-unavailable note and the original link, used when
// an acquired or attached media payload could not be delivered.
func (f *Formatter) Degraded(caption string, sub source.Submission) string {
	var b strings.Builder
	b.WriteString(caption)
	b.WriteString("\n\n⚠️ Media could not be delivered")
	if sub.Permalink != "" {
		b.WriteString(fmt.Sprintf("\n🔗 [Original post](%s)", sub.Permalink))
	}
	return b.String()
}

// markdownEscaper neutralizes the control characters of Telegram's legacy
// Markdown mode. Unbalanced markers in user text would otherwise truncate or
// restyle the rest of the message.
var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// EscapeMarkdown neutralizes markdown control characters in s.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var subjectPattern = regexp.MustCompile(`^([^|]+)\|`)

// nonNameChars strips digits, punctuation and separators before deciding
// whether a subject candidate looks like a proper name.
var nonNameChars = regexp.MustCompile(`[0-9@#$%^&*()_+=\[\]{};'":,.<>?/~` + "`" + `]`)

// SubjectName extracts a subject from titles shaped like "Subject | rest".
// Best-effort: it reports false when no separator is present or the leading
// segment does not look like a proper name. It never fails.
func SubjectName(title string) (string, bool) {
	m := subjectPattern.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}

	candidate := strings.TrimSpace(m[1])
	if candidate == "" {
		return "", false
	}

	cleaned := nonNameChars.ReplaceAllString(candidate, "")
	for _, word := range strings.Fields(cleaned) {
		runes := []rune(word)
		if len(runes) > 1 && unicode.IsUpper(runes[0]) {
			return candidate, true
		}
	}

	return "", false
}
