package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedLine is returned by ParseTweet for lines that are not
// "timestamp<TAB>text" or whose timestamp cannot be parsed.
var ErrMalformedLine = errors.New("malformed twtxt line")

// Source is a twtxt feed: a nick and the URL the feed is published at.
type Source struct {
	Nick string

	// URL is where the feed is fetched from. Empty for a local-only feed.
	URL string

	// File is the local path of the feed. Only set for the user's own source.
	File string
}

// Tweet is a single timestamped record from a twtxt feed.
type Tweet struct {
	Source    Source
	CreatedAt time.Time
	Text      string

	// stamp is the timestamp field exactly as it appeared in the feed.
	stamp string
}

// NewTweet creates a tweet attributed to src.
func NewTweet(src Source, createdAt time.Time, text string) Tweet {
	return Tweet{Source: src, CreatedAt: createdAt, Text: text}
}

// String serializes the tweet as a twtxt line without the trailing newline.
// Parsed tweets keep their original timestamp field.
func (t Tweet) String() string {
	stamp := t.stamp
	if stamp == "" {
		stamp = t.CreatedAt.Format(time.RFC3339)
	}
	return stamp + "\t" + t.Text
}

// timestampLayouts are tried in order. Layouts without a zone are
// interpreted in the local time zone.
var timestampLayouts = []struct {
	layout string
	local  bool
}{
	{time.RFC3339Nano, false},
	{"2006-01-02T15:04:05.999999999Z0700", false},
	{"2006-01-02T15:04Z07:00", false},
	{"2006-01-02 15:04:05Z07:00", false},
	{"2006-01-02T15:04:05.999999999", true},
	{"2006-01-02T15:04", true},
	{"2006-01-02 15:04:05", true},
}

// ParseTimestamp parses the timestamp field of a twtxt line.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if l.local {
			t, err = time.ParseInLocation(l.layout, s, time.Local)
		} else {
			t, err = time.Parse(l.layout, s)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ParseTweet parses a single twtxt line.
func ParseTweet(src Source, line string) (Tweet, error) {
	stamp, text, ok := strings.Cut(line, "\t")
	if !ok {
		return Tweet{}, fmt.Errorf("%w: no tab separator", ErrMalformedLine)
	}
	createdAt, err := ParseTimestamp(stamp)
	if err != nil {
		return Tweet{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return Tweet{Source: src, CreatedAt: createdAt, Text: text, stamp: stamp}, nil
}

// ParseTweets parses every well-formed line of a feed body in line order.
// Malformed lines are skipped.
func ParseTweets(src Source, raw string) []Tweet {
	lines := strings.Split(raw, "\n")
	tweets := make([]Tweet, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		tweet, err := ParseTweet(src, line)
		if err != nil {
			continue
		}
		tweets = append(tweets, tweet)
	}
	return tweets
}
