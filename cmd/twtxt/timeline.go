package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/twtxt/internal/domain"
	"github.com/blackmichael/twtxt/internal/render"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show the timeline of everyone you follow",
	Long:  "Fetches every followed feed concurrently, merges them with your own feed and prints the result.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTimeline(cmd, "")
	},
}

var viewCmd = &cobra.Command{
	Use:   "view NICK",
	Short: "Show the feed of a single source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTimeline(cmd, args[0])
	},
}

// timelineFlags are shared by timeline and view. Unset flags fall back to
// the config file.
type timelineFlags struct {
	limit       int
	sorting     string
	since       string
	until       string
	pager       bool
	cache       bool
	forceUpdate bool
	porcelain   bool
	absTime     bool
	timeout     time.Duration
}

var tlFlags timelineFlags

func init() {
	for _, cmd := range []*cobra.Command{timelineCmd, viewCmd} {
		f := cmd.Flags()
		f.IntVarP(&tlFlags.limit, "limit", "l", 0, "Maximum number of tweets to show")
		f.StringVarP(&tlFlags.sorting, "sorting", "s", "", "Sort order: ascending or descending")
		f.StringVar(&tlFlags.since, "since", "", "Only tweets at or after this timestamp or duration ago (e.g. 24h)")
		f.StringVar(&tlFlags.until, "until", "", "Only tweets at or before this timestamp or duration ago")
		f.BoolVar(&tlFlags.pager, "pager", false, "Page output through $PAGER")
		f.BoolVar(&tlFlags.cache, "cache", true, "Use the feed cache")
		f.BoolVar(&tlFlags.forceUpdate, "force-update", false, "Refresh even if the timeline was updated recently")
		f.BoolVar(&tlFlags.porcelain, "porcelain", false, "Machine-readable output")
		f.BoolVar(&tlFlags.absTime, "abs-time", false, "Show absolute timestamps")
		f.DurationVar(&tlFlags.timeout, "timeout", 0, "Per-source request timeout")
	}
	rootCmd.AddCommand(timelineCmd, viewCmd)
}

func runTimeline(cmd *cobra.Command, selector string) error {
	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}
	applyTimelineFlags(cmd, a)
	s := a.cfg.Twtxt

	now := time.Now()
	order, err := domain.ParseOrder(s.Sorting)
	if err != nil {
		return err
	}
	window, err := timelineWindow(s.Since, s.Until, now)
	if err != nil {
		return err
	}

	cache, err := a.openCache(s.UseCache)
	if err != nil {
		return err
	}
	var repo domain.CacheRepository
	if cache != nil {
		defer cache.Close()
		repo = cache
	}

	var local domain.LocalFeed
	if s.TwtFile != "" {
		local = a.twtfile()
	}

	svc := domain.NewTimelineService(a.fetcher(), repo, a.store, local, domain.ServiceOptions{
		Self:             a.self(),
		RewriteRedirects: s.RewriteRedirects,
		UpdateInterval:   s.UpdateInterval,
		ForceUpdate:      tlFlags.forceUpdate || selector != "",
	}, a.logger)

	if selector != "" && selector != s.Nick {
		if _, ok := a.store.Following()[selector]; !ok {
			fmt.Fprintf(a.errOut, "You're not following %s.\n", selector)
			return nil
		}
	}

	tweets, err := svc.Collect(cmd.Context(), selector)
	if err != nil {
		return err
	}
	tweets = domain.Filter(tweets, window, order, s.LimitTimeline)

	r := &render.Renderer{
		Directory:        a.directory(),
		CollapseMentions: true,
		TimeFormat:       s.TimeFormat,
		Relative:         !s.UseAbsTime,
		CharLimit:        s.CharacterLimit,
		Porcelain:        s.Porcelain,
		SkipUnprintable:  isTerminal(a.out),
	}
	return writeLines(a.out, r.Render(tweets), s.UsePager)
}

// applyTimelineFlags overrides config values with explicitly set flags.
func applyTimelineFlags(cmd *cobra.Command, a *app) {
	f := cmd.Flags()
	s := &a.cfg.Twtxt
	if f.Changed("limit") {
		s.LimitTimeline = tlFlags.limit
	}
	if f.Changed("sorting") {
		s.Sorting = tlFlags.sorting
	}
	if f.Changed("since") {
		s.Since = tlFlags.since
	}
	if f.Changed("until") {
		s.Until = tlFlags.until
	}
	if f.Changed("pager") {
		s.UsePager = tlFlags.pager
	}
	if f.Changed("cache") {
		s.UseCache = tlFlags.cache
	}
	if f.Changed("porcelain") {
		s.Porcelain = tlFlags.porcelain
	}
	if f.Changed("abs-time") {
		s.UseAbsTime = tlFlags.absTime
	}
	if f.Changed("timeout") && tlFlags.timeout > 0 {
		s.Timeout = tlFlags.timeout
	}
}

// timelineWindow resolves the configured bounds; the upper bound defaults
// to now.
func timelineWindow(since, until string, now time.Time) (domain.Window, error) {
	from, err := domain.ParseBound(since, now)
	if err != nil {
		return domain.Window{}, err
	}
	to, err := domain.ParseBound(until, now)
	if err != nil {
		return domain.Window{}, err
	}
	if to.IsZero() {
		to = now
	}
	return domain.Window{Since: from, Until: to}, nil
}
