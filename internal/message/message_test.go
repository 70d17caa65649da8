package message

import (
	"strings"
	"testing"

	"github.com/ppiankov/relaypan/internal/classify"
	"github.com/ppiankov/relaypan/internal/source"
)

func testSubmission() source.Submission {
	return source.Submission{
		Name:      "t3_abc",
		Subreddit: "golang",
		Title:     "Generics in practice",
		Author:    "gopher",
		Permalink: "https://www.reddit.com/r/golang/comments/abc/generics/",
	}
}

func TestFormat_Basic(t *testing.T) {
	f := NewFormatter(Options{CategoryEmoji: true, CTALink: "https://t.me/example"})
	got := f.Format(testSubmission(), classify.Result{Category: classify.Text})

	for _, want := range []string{
		"📝",
		"*Generics in practice*",
		"u/gopher • r/golang",
		"[View post](https://www.reddit.com/r/golang/comments/abc/generics/)",
		"[See more](https://t.me/example)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("caption missing %q:\n%s", want, got)
		}
	}
}

func TestFormat_EmojiToggle(t *testing.T) {
	f := NewFormatter(Options{CategoryEmoji: false})
	got := f.Format(testSubmission(), classify.Result{Category: classify.HostedVideo})
	if strings.Contains(got, "🎥") {
		t.Errorf("caption must not carry emoji when disabled:\n%s", got)
	}
}

func TestFormat_PerCategoryEmoji(t *testing.T) {
	f := NewFormatter(Options{CategoryEmoji: true})
	tests := []struct {
		cat  classify.Category
		want string
	}{
		{classify.Text, "📝"},
		{classify.Image, "🖼️"},
		{classify.HostedVideo, "🎥"},
		{classify.GenericVideo, "🎬"},
		{classify.ExternalVideoLink, "📺"},
		{classify.GenericLink, "🔗"},
	}
	for _, tc := range tests {
		got := f.Format(testSubmission(), classify.Result{Category: tc.cat})
		if !strings.HasPrefix(got, tc.want) {
			t.Errorf("category %s: caption starts with %q, want %q", tc.cat, got[:4], tc.want)
		}
	}
}

func TestFormat_EscapesMarkup(t *testing.T) {
	sub := testSubmission()
	sub.Title = "*unmatched [emphasis_ and `code"
	sub.Author = "under_score"

	f := NewFormatter(Options{})
	got := f.Format(sub, classify.Result{Category: classify.Text})

	for _, want := range []string{`\*unmatched`, `\[emphasis`, `\_ and`, "\\`code", `u/under\_score`} {
		if !strings.Contains(got, want) {
			t.Errorf("caption missing escaped fragment %q:\n%s", want, got)
		}
	}
}

func TestFormat_LinkCategoriesCarryTarget(t *testing.T) {
	f := NewFormatter(Options{})
	sub := testSubmission()

	got := f.Format(sub, classify.Result{
		Category: classify.ExternalVideoLink,
		MediaURL: "https://youtu.be/xyz",
	})
	if !strings.Contains(got, "🌐 https://youtu.be/xyz") {
		t.Errorf("caption missing target link:\n%s", got)
	}

	// Media-bearing categories attach media instead of linking it.
	got = f.Format(sub, classify.Result{
		Category: classify.Image,
		MediaURL: "https://i.redd.it/pic.jpg",
	})
	if strings.Contains(got, "i.redd.it") {
		t.Errorf("image caption must not inline the media url:\n%s", got)
	}
}

func TestFormat_Deterministic(t *testing.T) {
	f := NewFormatter(Options{CategoryEmoji: true, CTALink: "https://t.me/example"})
	sub := testSubmission()
	first := f.Format(sub, classify.Result{Category: classify.Image})
	for i := 0; i < 5; i++ {
		if got := f.Format(sub, classify.Result{Category: classify.Image}); got != first {
			t.Fatal("formatting is not deterministic")
		}
	}
}

func TestDegraded(t *testing.T) {
	f := NewFormatter(Options{})
	sub := testSubmission()
	caption := f.Format(sub, classify.Result{Category: classify.HostedVideo})

	got := f.Degraded(caption, sub)
	if !strings.HasPrefix(got, caption) {
		t.Error("degraded caption must extend the original caption")
	}
	if !strings.Contains(got, "Media could not be delivered") {
		t.Error("degraded caption missing media note")
	}
	if !strings.Contains(got, sub.Permalink) {
		t.Error("degraded caption missing original link")
	}
}

func TestEscapeMarkdown(t *testing.T) {
	got := EscapeMarkdown("a_b*c`d[e")
	want := `a\_b\*c` + "\\`" + `d\[e`
	if got != want {
		t.Errorf("escaped = %q, want %q", got, want)
	}

	if got := EscapeMarkdown("plain text"); got != "plain text" {
		t.Errorf("plain text changed: %q", got)
	}
}

func TestSubjectName(t *testing.T) {
	tests := []struct {
		title  string
		want   string
		wantOK bool
	}{
		{"Ada Lovelace | first program", "Ada Lovelace", true},
		{"Jane Doe 21 | something", "Jane Doe 21", true},
		{"no separator here", "", false},
		{"lowercase name | rest", "", false},
		{"12345 | numbers only", "", false},
		{"| empty head", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		got, ok := SubjectName(tc.title)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("SubjectName(%q) = %q, %v; want %q, %v", tc.title, got, ok, tc.want, tc.wantOK)
		}
	}
}
