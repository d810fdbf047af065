package domain

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ServiceOptions configures a TimelineService.
type ServiceOptions struct {
	// Self is the user's own source. Its tweets are read from the local feed.
	Self Source

	// RewriteRedirects updates the follow list when a source permanently
	// redirects to a new URL.
	RewriteRedirects bool

	// UpdateInterval suppresses network refreshes that happen sooner than
	// this after the previous one; cached bodies are served instead.
	UpdateInterval time.Duration

	// ForceUpdate ignores UpdateInterval.
	ForceUpdate bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// TimelineService is the core domain service. It fetches every followed
// source concurrently, maintains the cache and the follow list, and merges
// remote tweets with the local feed.
type TimelineService struct {
	fetcher Fetcher
	cache   CacheRepository // nil disables caching
	follows FollowStore
	local   LocalFeed // nil when there is no local feed
	opts    ServiceOptions
	logger  *slog.Logger
}

// NewTimelineService creates a TimelineService. cache and local may be nil.
func NewTimelineService(fetcher Fetcher, cache CacheRepository, follows FollowStore, local LocalFeed, opts ServiceOptions, logger *slog.Logger) *TimelineService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TimelineService{
		fetcher: fetcher,
		cache:   cache,
		follows: follows,
		local:   local,
		opts:    opts,
		logger:  logger,
	}
}

// Sources returns the followed sources ordered by nick.
func (s *TimelineService) Sources() []Source {
	return sortedSources(s.follows.Following())
}

// Collect returns the unsorted tweets of every followed source plus the local
// feed. If selector is set only that nick is fetched; a nick that is not
// followed yields no remote tweets. The local feed is included when selector
// is empty or names the user.
//
// Failing sources are logged and skipped. An error is returned only when the
// follow list or the cache cannot be persisted.
func (s *TimelineService) Collect(ctx context.Context, selector string) ([]Tweet, error) {
	following := s.follows.Following()
	sources := selectSources(following, selector)
	now := s.opts.Now()

	cached := s.cachedEntries(ctx, sources)

	var (
		tweets []Tweet
		err    error
	)
	if s.skipRefresh(ctx, now) {
		s.logger.Debug("timeline refreshed recently, serving cache", "interval", s.opts.UpdateInterval)
		tweets = s.fromCache(sources, cached)
		if err := s.clean(ctx, following); err != nil {
			return nil, err
		}
	} else {
		results := s.fetchAll(ctx, sources, cached)
		tweets, err = s.apply(ctx, following, sources, cached, results, selector == "", now)
		if err != nil {
			return nil, err
		}
	}

	if s.includeLocal(selector) {
		tweets = append(tweets, s.localTweets()...)
	}
	return tweets, nil
}

// CheckSources requests the status of every followed source concurrently.
func (s *TimelineService) CheckSources(ctx context.Context) []SourceStatus {
	sources := s.Sources()
	statuses := make([]SourceStatus, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			code, err := s.fetcher.Status(ctx, src.URL)
			statuses[i] = SourceStatus{Source: src, StatusCode: code, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

// fetchAll runs one conditional GET per source and waits for all of them.
// Each goroutine writes only its own slot; nothing shared is mutated.
func (s *TimelineService) fetchAll(ctx context.Context, sources []Source, cached map[string]*CacheEntry) []FetchResult {
	results := make([]FetchResult, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			results[i] = s.fetcher.Fetch(ctx, src.URL, cached[src.URL])
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// apply processes fetch results after the fan-in barrier. It is the only
// place the cache and the follow list are written.
func (s *TimelineService) apply(ctx context.Context, following map[string]string, sources []Source, cached map[string]*CacheEntry, results []FetchResult, fullRefresh bool, now time.Time) ([]Tweet, error) {
	var (
		tweets  []Tweet
		mutated bool
	)

	for i, src := range sources {
		res := results[i]
		url := src.URL

		// A redirect only counts once its target answered.
		if res.Outcome != OutcomeFailed && res.RedirectedTo != "" && res.RedirectedTo != src.URL {
			if s.opts.RewriteRedirects {
				s.logger.Info("source moved permanently, updating follow list", "nick", src.Nick, "from", src.URL, "to", res.RedirectedTo)
				s.follows.SetFollowing(src.Nick, res.RedirectedTo)
				following[src.Nick] = res.RedirectedTo
				url = res.RedirectedTo
				mutated = true
			} else {
				s.logger.Warn("source moved permanently", "nick", src.Nick, "from", src.URL, "to", res.RedirectedTo)
			}
		}

		switch res.Outcome {
		case OutcomeFailed:
			s.logger.Warn("source fetch failed", "nick", src.Nick, "url", src.URL, "status", res.StatusCode, "error", res.Err)
			if res.StatusCode == http.StatusGone && s.cache != nil {
				if err := s.cache.Delete(ctx, src.URL); err != nil {
					s.logger.Warn("failed to drop cache entry", "url", src.URL, "error", err)
				}
			}
			continue

		case OutcomeFresh:
			if res.LastModified != "" {
				s.store(ctx, &CacheEntry{URL: url, LastModified: res.LastModified, Body: res.Body})
			}

		case OutcomeNotModified:
			// Move the entry along with a rewritten follow.
			if url != src.URL {
				if entry, ok := cached[src.URL]; ok {
					s.store(ctx, &CacheEntry{URL: url, LastModified: entry.LastModified, Body: entry.Body})
				}
			}
		}

		if strings.TrimSpace(res.Body) == "" {
			s.logger.Warn("skipping source", "nick", src.Nick, "url", url, "error", ErrEmptyBody)
			continue
		}

		tweets = append(tweets, ParseTweets(Source{Nick: src.Nick, URL: url}, res.Body)...)
	}

	if mutated {
		if err := s.follows.Save(); err != nil {
			return nil, fmt.Errorf("save follow list: %w", err)
		}
	}

	if err := s.clean(ctx, following); err != nil {
		return nil, err
	}
	if s.cache != nil && fullRefresh {
		if err := s.cache.MarkUpdated(ctx, now); err != nil {
			return nil, fmt.Errorf("mark cache updated: %w", err)
		}
	}

	return tweets, nil
}

func (s *TimelineService) store(ctx context.Context, entry *CacheEntry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, entry); err != nil {
		s.logger.Warn("failed to cache feed", "url", entry.URL, "error", err)
	}
}

// clean drops cache entries of URLs no longer followed.
func (s *TimelineService) clean(ctx context.Context, following map[string]string) error {
	if s.cache == nil {
		return nil
	}
	keep := make([]string, 0, len(following))
	for _, url := range following {
		keep = append(keep, url)
	}
	removed, err := s.cache.Clean(ctx, keep)
	if err != nil {
		return fmt.Errorf("clean cache: %w", err)
	}
	if removed > 0 {
		s.logger.Debug("cache cleanup complete", "removed", removed)
	}
	return nil
}

func (s *TimelineService) cachedEntries(ctx context.Context, sources []Source) map[string]*CacheEntry {
	cached := make(map[string]*CacheEntry, len(sources))
	if s.cache == nil {
		return cached
	}
	for _, src := range sources {
		entry, err := s.cache.Get(ctx, src.URL)
		if err != nil {
			s.logger.Warn("failed to read cache", "url", src.URL, "error", err)
			continue
		}
		if entry != nil {
			cached[src.URL] = entry
		}
	}
	return cached
}

func (s *TimelineService) skipRefresh(ctx context.Context, now time.Time) bool {
	if s.cache == nil || s.opts.ForceUpdate || s.opts.UpdateInterval <= 0 {
		return false
	}
	last, err := s.cache.LastUpdate(ctx)
	if err != nil {
		s.logger.Warn("failed to read last update", "error", err)
		return false
	}
	return !last.IsZero() && now.Sub(last) < s.opts.UpdateInterval
}

func (s *TimelineService) fromCache(sources []Source, cached map[string]*CacheEntry) []Tweet {
	var tweets []Tweet
	for _, src := range sources {
		if entry, ok := cached[src.URL]; ok {
			tweets = append(tweets, ParseTweets(src, entry.Body)...)
		}
	}
	return tweets
}

func (s *TimelineService) includeLocal(selector string) bool {
	if s.local == nil {
		return false
	}
	return selector == "" || (s.opts.Self.Nick != "" && selector == s.opts.Self.Nick)
}

func (s *TimelineService) localTweets() []Tweet {
	if !s.local.Exists() {
		return nil
	}
	raw, err := s.local.Read()
	if err != nil {
		s.logger.Warn("failed to read local feed", "file", s.opts.Self.File, "error", err)
		return nil
	}
	return ParseTweets(s.opts.Self, raw)
}

func selectSources(following map[string]string, selector string) []Source {
	if selector == "" {
		return sortedSources(following)
	}
	url, ok := following[selector]
	if !ok {
		return nil
	}
	return []Source{{Nick: selector, URL: url}}
}

func sortedSources(following map[string]string) []Source {
	sources := make([]Source, 0, len(following))
	for nick, url := range following {
		sources = append(sources, Source{Nick: nick, URL: url})
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Nick < sources[j].Nick
	})
	return sources
}
