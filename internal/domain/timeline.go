package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Order is the sort order of a timeline.
type Order int

const (
	Descending Order = iota
	Ascending
)

func (o Order) String() string {
	if o == Ascending {
		return "ascending"
	}
	return "descending"
}

// ParseOrder parses "ascending" or "descending".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascending", "asc":
		return Ascending, nil
	case "descending", "desc", "":
		return Descending, nil
	default:
		return Descending, fmt.Errorf("invalid sort order %q: want ascending or descending", s)
	}
}

// Window is an inclusive time range. A zero bound is unbounded.
type Window struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether t lies within the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && t.After(w.Until) {
		return false
	}
	return true
}

// ParseBound parses a window bound: either a timestamp or a duration meaning
// that long before now ("24h"). An empty string is the zero time.
func ParseBound(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time bound %q: want a timestamp or duration", s)
	}
	return t, nil
}

// Filter keeps the tweets inside w, sorts them by creation time and returns
// at most limit of them. Tweets with equal timestamps keep their input order.
func Filter(tweets []Tweet, w Window, order Order, limit int) []Tweet {
	if limit <= 0 {
		return []Tweet{}
	}

	kept := make([]Tweet, 0, len(tweets))
	for _, t := range tweets {
		if w.Contains(t.CreatedAt) {
			kept = append(kept, t)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if order == Ascending {
			return kept[i].CreatedAt.Before(kept[j].CreatedAt)
		}
		return kept[i].CreatedAt.After(kept[j].CreatedAt)
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
