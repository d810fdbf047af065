package domain

import (
	"context"
	"time"
)

// CacheEntry is the last successful response for a feed URL.
type CacheEntry struct {
	URL          string
	LastModified string
	Body         string
}

// CacheRepository defines persistence operations for fetched feed bodies.
type CacheRepository interface {
	// Get returns the entry for url, or nil if nothing is cached.
	Get(ctx context.Context, url string) (*CacheEntry, error)

	// Set creates or overwrites the entry for entry.URL.
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes the entry for url, if any.
	Delete(ctx context.Context, url string) error

	// Clean removes every entry whose URL is not in keep. Returns the number
	// of entries removed.
	Clean(ctx context.Context, keep []string) (int64, error)

	// LastUpdate returns when the timeline was last refreshed from the
	// network. Returns the zero time if it never was.
	LastUpdate(ctx context.Context) (time.Time, error)

	// MarkUpdated records a network refresh at t.
	MarkUpdated(ctx context.Context, t time.Time) error
}

// Fetcher retrieves remote feeds.
type Fetcher interface {
	// Fetch performs a conditional GET of url. Failures are reported in the
	// result, never as a panic or a separate error.
	Fetch(ctx context.Context, url string, cached *CacheEntry) FetchResult

	// Status returns the HTTP status code of url.
	Status(ctx context.Context, url string) (int, error)
}

// FollowStore owns the follow list.
type FollowStore interface {
	// Following returns a copy of the nick to URL mapping.
	Following() map[string]string

	// SetFollowing points nick at url.
	SetFollowing(nick, url string)

	// Save persists the follow list.
	Save() error
}

// LocalFeed is the user's own twtxt file.
type LocalFeed interface {
	Exists() bool
	Read() (string, error)
}
