package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/twtxt/internal/domain"
	"github.com/blackmichael/twtxt/internal/twtfile"
)

var tweetCmd = &cobra.Command{
	Use:   "tweet TEXT...",
	Short: "Append a tweet to your twtxt file",
	Long:  "Appends a tweet to your twtxt file. Mentions of followed nicks (@nick) are expanded to their feed URLs.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTweet,
}

var (
	tweetCreatedAt string
	tweetFile      string
)

func init() {
	tweetCmd.Flags().StringVar(&tweetCreatedAt, "created-at", "", "Timestamp of the tweet (default now)")
	tweetCmd.Flags().StringVar(&tweetFile, "twtfile", "", "twtxt file to append to (overrides config)")
	rootCmd.AddCommand(tweetCmd)
}

func runTweet(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}
	if tweetFile != "" {
		a.cfg.Twtxt.TwtFile = tweetFile
	}
	if a.cfg.Twtxt.TwtFile == "" {
		return fmt.Errorf("no twtfile configured: set twtxt.twtfile")
	}

	createdAt := time.Now().Truncate(time.Second)
	if tweetCreatedAt != "" {
		createdAt, err = domain.ParseTimestamp(tweetCreatedAt)
		if err != nil {
			return err
		}
	}

	text := a.directory().Expand(strings.Join(args, " "), a.cfg.Twtxt.EmbedNames)
	tweet := domain.NewTweet(a.self(), createdAt, text)

	err = a.twtfile().Append(cmd.Context(), tweet)
	var hookErr *twtfile.HookError
	if errors.As(err, &hookErr) && hookErr.Stage == twtfile.StagePost {
		return fmt.Errorf("tweet was written but %w", err)
	}
	return err
}
