// Package twtfile manages the user's own twtxt file.
package twtfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/blackmichael/twtxt/internal/domain"
)

// ErrEmptyTweet is returned when appending a tweet without text.
var ErrEmptyTweet = errors.New("tweet text is empty")

// Hook stages.
const (
	StagePre  = "pre_tweet_hook"
	StagePost = "post_tweet_hook"
)

// Hooks are shell commands run around an append. Placeholders of the form
// {name} are replaced from the file's variables before running.
type Hooks struct {
	Pre  string
	Post string
}

// HookError reports a hook that could not run or exited non-zero.
type HookError struct {
	Stage    string
	Command  string
	ExitCode int
	Output   string
	Cause    error
}

func (e *HookError) Error() string {
	msg := fmt.Sprintf("%s %q", e.Stage, e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" returned %d", e.ExitCode)
	} else if e.Cause != nil {
		msg += fmt.Sprintf(" failed: %v", e.Cause)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *HookError) Unwrap() error {
	return e.Cause
}

// File is a local twtxt file. It implements domain.LocalFeed.
type File struct {
	path   string
	hooks  Hooks
	vars   map[string]string
	logger *slog.Logger
}

var _ domain.LocalFeed = (*File)(nil)

// New returns a File at path. vars fill hook placeholders; "twtfile" is
// always set to path.
func New(path string, hooks Hooks, vars map[string]string, logger *slog.Logger) *File {
	merged := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		merged[k] = v
	}
	merged["twtfile"] = path
	return &File{path: path, hooks: hooks, vars: merged, logger: logger}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Exists reports whether the file exists.
func (f *File) Exists() bool {
	info, err := os.Stat(f.path)
	return err == nil && !info.IsDir()
}

// Read returns the file contents.
func (f *File) Read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("read twtfile: %w", err)
	}
	return string(data), nil
}

// Append writes tweet as a new line. A failing pre-hook prevents the write.
// A failing post-hook is reported after the tweet has been written; the
// write is kept.
func (f *File) Append(ctx context.Context, tweet domain.Tweet) error {
	tweet.Text = singleLine(tweet.Text)
	if tweet.Text == "" {
		return ErrEmptyTweet
	}

	if err := f.runHook(ctx, StagePre, f.hooks.Pre); err != nil {
		return err
	}

	if err := f.appendLine(tweet.String()); err != nil {
		return err
	}
	f.logger.Debug("tweet appended", "file", f.path, "created_at", tweet.CreatedAt)

	return f.runHook(ctx, StagePost, f.hooks.Post)
}

func (f *File) appendLine(line string) error {
	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open twtfile: %w", err)
	}
	defer file.Close()

	// Keep one record per line even if the file lacks a final newline.
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat twtfile: %w", err)
	}
	if size := info.Size(); size > 0 {
		last := make([]byte, 1)
		if _, err := file.ReadAt(last, size-1); err != nil && err != io.EOF {
			return fmt.Errorf("read twtfile: %w", err)
		}
		if last[0] != '\n' {
			line = "\n" + line
		}
	}

	if _, err := file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write twtfile: %w", err)
	}
	return nil
}

func (f *File) runHook(ctx context.Context, stage, hook string) error {
	if strings.TrimSpace(hook) == "" {
		return nil
	}
	command := f.expand(hook)
	f.logger.Debug("running hook", "stage", stage, "command", command)

	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err == nil {
		return nil
	}

	hookErr := &HookError{Stage: stage, Command: command, Output: string(out), Cause: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		hookErr.ExitCode = exitErr.ExitCode()
	}
	return hookErr
}

func (f *File) expand(hook string) string {
	pairs := make([]string, 0, len(f.vars)*2)
	for k, v := range f.vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(hook)
}

// singleLine flattens line breaks so the text fits in one record.
func singleLine(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.NewReplacer("\n", " ", "\r", " ").Replace(text)
	return strings.TrimSpace(text)
}
