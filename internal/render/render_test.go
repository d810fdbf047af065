package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blackmichael/twtxt/internal/domain"
)

var (
	alice   = domain.Source{Nick: "alice", URL: "http://a/feed.txt"}
	created = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

func TestRender_FollowedFeed(t *testing.T) {
	dir := domain.NewDirectory(map[string]string{
		"alice": "http://a/feed.txt",
		"bob":   "http://b/feed.txt",
	}, domain.Source{})

	tweets := domain.ParseTweets(alice, "2020-01-01T00:00:00Z\tHello @<http://b/feed.txt>")
	want := created.Local().Format(DefaultTimeFormat) + " alice: Hello @bob"

	r := &Renderer{Directory: dir, CollapseMentions: true}
	assert.Equal(t, []string{want}, r.Render(tweets))

	r.CollapseMentions = false
	assert.Equal(t, []string{created.Local().Format(DefaultTimeFormat) + " alice: Hello @<http://b/feed.txt>"}, r.Render(tweets))
}

func TestRender_RelativeTime(t *testing.T) {
	r := &Renderer{
		Relative: true,
		Now:      func() time.Time { return created.Add(3 * time.Hour) },
	}
	assert.Equal(t, "3 hours ago alice: hi", r.Line(domain.NewTweet(alice, created, "hi")))
}

func TestRender_TimeFormat(t *testing.T) {
	r := &Renderer{TimeFormat: "Jan 2"}
	tw := domain.NewTweet(alice, created.Add(12*time.Hour), "hi")
	assert.Equal(t, tw.CreatedAt.Local().Format("Jan 2")+" alice: hi", r.Line(tw))
}

func TestRender_Porcelain(t *testing.T) {
	r := &Renderer{Porcelain: true, CharLimit: 3, CollapseMentions: true}
	tweets := domain.ParseTweets(alice, "2020-01-01T00:00:00+01:00\tkept verbatim @<http://b/feed.txt>")
	assert.Equal(t,
		[]string{"alice\thttp://a/feed.txt\t2020-01-01T00:00:00+01:00\tkept verbatim @<http://b/feed.txt>"},
		r.Render(tweets))
}

func TestRender_SkipUnprintable(t *testing.T) {
	tweets := []domain.Tweet{
		domain.NewTweet(alice, created, "fine"),
		domain.NewTweet(alice, created, "bell \a here"),
	}

	r := &Renderer{SkipUnprintable: true, TimeFormat: "2006"}
	assert.Equal(t, []string{created.Local().Format("2006") + " alice: fine"}, r.Render(tweets))

	r.SkipUnprintable = false
	assert.Len(t, r.Render(tweets), 2)
}

func TestRender_CharLimit(t *testing.T) {
	r := &Renderer{CharLimit: 20, TimeFormat: "2006"}
	line := r.Line(domain.NewTweet(alice, created, "the quick brown fox jumps over"))
	assert.Equal(t, created.Local().Format("2006")+" alice: the quick [...]", line)
}

func TestShorten(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"fits", "short text", 20, "short text"},
		{"collapses whitespace", "a   b\tc", 20, "a b c"},
		{"drops words", "the quick brown fox jumps over", 20, "the quick [...]"},
		{"exact", "abcde", 5, "abcde"},
		{"single long word", "supercalifragilistic", 10, "[...]"},
		{"multibyte", "äöü äöü äöü äöü", 13, "äöü äöü [...]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Shorten(tt.text, tt.limit)
			assert.Equal(t, tt.want, got)
		})
	}
}
