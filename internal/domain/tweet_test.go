package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = Source{Nick: "alice", URL: "http://a/feed.txt"}

func TestParseTweets_SkipsMalformedLines(t *testing.T) {
	raw := strings.Join([]string{
		"2020-01-01T00:00:00Z\tfirst",
		"no tab here",
		"",
		"yesterday\tbad timestamp",
		"2020-01-02T10:30:00+01:00\tsecond\twith a tab",
		"2020-01-03T00:00:00.123456Z\tthird",
	}, "\n")

	tweets := ParseTweets(alice, raw)
	require.Len(t, tweets, 3)

	assert.Equal(t, "first", tweets[0].Text)
	assert.Equal(t, "second\twith a tab", tweets[1].Text)
	assert.Equal(t, "third", tweets[2].Text)

	assert.True(t, tweets[1].CreatedAt.Equal(time.Date(2020, 1, 2, 9, 30, 0, 0, time.UTC)))
	for _, tw := range tweets {
		assert.Equal(t, alice, tw.Source)
	}
}

func TestParseTweets_RoundTrip(t *testing.T) {
	lines := []string{
		"2020-01-01T00:00:00Z\tHello @<bob http://b/feed.txt>",
		"2020-01-02T10:30:00+01:00\t  spaced  text  ",
		"2020-01-03T08:00:00.5-05:00\tfractional",
		"2020-01-04T12:00:00+0200\toffset without colon",
	}
	raw := strings.Join(lines, "\r\n") + "\r\n" + "garbage\n"

	tweets := ParseTweets(alice, raw)
	require.Len(t, tweets, len(lines))

	out := make([]string, len(tweets))
	for i, tw := range tweets {
		out[i] = tw.String()
	}
	assert.Equal(t, lines, out)
}

func TestParseTweet_Errors(t *testing.T) {
	_, err := ParseTweet(alice, "2020-01-01T00:00:00Z no tab")
	assert.True(t, errors.Is(err, ErrMalformedLine))

	_, err = ParseTweet(alice, "not-a-date\ttext")
	assert.True(t, errors.Is(err, ErrMalformedLine))
}

func TestParseTimestamp_LocalWhenZoneMissing(t *testing.T) {
	got, err := ParseTimestamp("2020-05-06T07:08:09")
	require.NoError(t, err)
	assert.Equal(t, time.Local, got.Location())
	assert.Equal(t, 7, got.Hour())

	got, err = ParseTimestamp("2020-05-06T07:08")
	require.NoError(t, err)
	assert.Equal(t, 8, got.Minute())
}

func TestTweetString_NewTweet(t *testing.T) {
	tw := NewTweet(alice, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), "hi")
	assert.Equal(t, "2021-03-04T05:06:07Z\thi", tw.String())
}
