package twtfile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/twtxt/internal/domain"
)

var (
	self   = domain.Source{Nick: "alice", URL: "https://example.org/twtxt.txt"}
	postAt = time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
)

func newTestFile(t *testing.T, hooks Hooks) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "twtxt.txt")
	vars := map[string]string{"nick": self.Nick, "twturl": self.URL}
	return New(path, hooks, vars, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func read(t *testing.T, f *File) string {
	t.Helper()
	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	return string(data)
}

func TestAppend(t *testing.T) {
	f := newTestFile(t, Hooks{})
	assert.False(t, f.Exists())

	require.NoError(t, f.Append(context.Background(), domain.NewTweet(self, postAt, "hello")))
	require.NoError(t, f.Append(context.Background(), domain.NewTweet(self, postAt.Add(time.Hour), "multi\nline\r\ntext")))

	assert.True(t, f.Exists())
	assert.Equal(t,
		"2020-01-02T03:04:05Z\thello\n2020-01-02T04:04:05Z\tmulti line text\n",
		read(t, f))

	raw, err := f.Read()
	require.NoError(t, err)
	tweets := domain.ParseTweets(self, raw)
	require.Len(t, tweets, 2)
	assert.Equal(t, "multi line text", tweets[1].Text)
}

func TestAppend_MissingFinalNewline(t *testing.T) {
	f := newTestFile(t, Hooks{})
	require.NoError(t, os.WriteFile(f.Path(), []byte("2020-01-01T00:00:00Z\texisting"), 0o644))

	require.NoError(t, f.Append(context.Background(), domain.NewTweet(self, postAt, "next")))
	assert.Equal(t, "2020-01-01T00:00:00Z\texisting\n2020-01-02T03:04:05Z\tnext\n", read(t, f))
}

func TestAppend_EmptyText(t *testing.T) {
	f := newTestFile(t, Hooks{})
	err := f.Append(context.Background(), domain.NewTweet(self, postAt, " \n "))
	assert.True(t, errors.Is(err, ErrEmptyTweet))
	assert.False(t, f.Exists())
}

func TestAppend_PreHookFailurePreventsWrite(t *testing.T) {
	f := newTestFile(t, Hooks{Pre: "echo nope; exit 3"})

	err := f.Append(context.Background(), domain.NewTweet(self, postAt, "hello"))

	var hookErr *HookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, StagePre, hookErr.Stage)
	assert.Equal(t, 3, hookErr.ExitCode)
	assert.Contains(t, hookErr.Error(), "nope")
	assert.False(t, f.Exists())
}

func TestAppend_PostHookFailureKeepsWrite(t *testing.T) {
	f := newTestFile(t, Hooks{Post: "exit 1"})

	err := f.Append(context.Background(), domain.NewTweet(self, postAt, "hello"))

	var hookErr *HookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, StagePost, hookErr.Stage)
	assert.Equal(t, "2020-01-02T03:04:05Z\thello\n", read(t, f))
}

func TestAppend_HookPlaceholders(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	f := newTestFile(t, Hooks{
		Pre:  "test ! -e {twtfile}",
		Post: "echo '{nick} {twturl}' > " + marker + " && test -s {twtfile}",
	})

	require.NoError(t, f.Append(context.Background(), domain.NewTweet(self, postAt, "hello")))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "alice https://example.org/twtxt.txt\n", string(data))
}
