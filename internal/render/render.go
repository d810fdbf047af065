// Package render formats timelines for display.
package render

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/blackmichael/twtxt/internal/domain"
)

// DefaultTimeFormat is used when Renderer.TimeFormat is empty.
const DefaultTimeFormat = "2006-01-02 15:04"

const ellipsis = " [...]"

// Renderer turns tweets into display lines.
type Renderer struct {
	// Directory resolves canonical mentions when CollapseMentions is set.
	Directory        *domain.Directory
	CollapseMentions bool

	// TimeFormat is a Go time layout for absolute timestamps.
	TimeFormat string

	// Relative renders timestamps as "3 hours ago".
	Relative bool

	// CharLimit shortens tweet text to this many characters. Zero disables it.
	CharLimit int

	// Porcelain emits tab-separated lines for scripts: nick, url, twtxt line.
	Porcelain bool

	// SkipUnprintable drops tweets containing control characters.
	SkipUnprintable bool

	// Now anchors relative timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Render formats every tweet, one line per tweet.
func (r *Renderer) Render(tweets []domain.Tweet) []string {
	lines := make([]string, 0, len(tweets))
	for _, t := range tweets {
		if r.SkipUnprintable && !printable(t.Text) {
			continue
		}
		lines = append(lines, r.Line(t))
	}
	return lines
}

// Line formats a single tweet as "<time> <nick>: <text>".
func (r *Renderer) Line(t domain.Tweet) string {
	if r.Porcelain {
		return t.Source.Nick + "\t" + t.Source.URL + "\t" + t.String()
	}

	text := t.Text
	if r.CollapseMentions && r.Directory != nil {
		text = r.Directory.Collapse(text)
	}
	if r.CharLimit > 0 {
		text = Shorten(text, r.CharLimit)
	}
	return r.timestamp(t.CreatedAt) + " " + t.Source.Nick + ": " + text
}

func (r *Renderer) timestamp(t time.Time) string {
	if r.Relative {
		now := time.Now
		if r.Now != nil {
			now = r.Now
		}
		return humanize.RelTime(t, now(), "ago", "from now")
	}
	format := r.TimeFormat
	if format == "" {
		format = DefaultTimeFormat
	}
	return t.Local().Format(format)
}

// Shorten collapses whitespace and, if text is longer than limit runes,
// drops trailing words so that the result plus " [...]" fits in limit.
func Shorten(text string, limit int) string {
	words := strings.Fields(text)
	text = strings.Join(words, " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	budget := limit - utf8.RuneCountInString(ellipsis)
	var sb strings.Builder
	n := 0
	for _, w := range words {
		wl := utf8.RuneCountInString(w)
		if n > 0 {
			wl++
		}
		if n+wl > budget {
			break
		}
		if n > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
		n += wl
	}
	if n == 0 {
		return strings.TrimSpace(ellipsis)
	}
	return sb.String() + ellipsis
}

func printable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
