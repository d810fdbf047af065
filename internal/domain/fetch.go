package domain

import "errors"

// ErrEmptyBody is reported for a source whose feed has no content.
var ErrEmptyBody = errors.New("feed body is empty")

// Outcome classifies the freshness of a fetch.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeFresh
	OutcomeNotModified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeNotModified:
		return "not_modified"
	default:
		return "failed"
	}
}

// FetchResult is the outcome of one conditional GET.
type FetchResult struct {
	URL     string
	Outcome Outcome

	// Body is the response body, or the cached body when not modified.
	Body string

	// LastModified is the Last-Modified header of a fresh response.
	LastModified string

	// RedirectedTo is set when the URL permanently redirected elsewhere and
	// the new location answered. Never set for a failed outcome.
	RedirectedTo string

	// StatusCode is the final HTTP status, 0 if no response was received.
	StatusCode int

	// Err explains a failed outcome.
	Err error
}

// SourceStatus is the reachability of a followed source.
type SourceStatus struct {
	Source     Source
	StatusCode int
	Err        error
}
