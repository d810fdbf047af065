// Package fetch retrieves remote twtxt feeds with conditional GETs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blackmichael/twtxt/internal/domain"
)

const (
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxRedirects is how many redirects a request may follow.
	DefaultMaxRedirects = 5

	// maxBodySize caps how much of a feed is read.
	maxBodySize = 16 << 20
)

// Error describes a failed fetch of a single source.
type Error struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxRedirects int

	// Transport overrides the HTTP transport. Defaults to a clone of
	// http.DefaultTransport, which honours proxy environment variables.
	Transport http.RoundTripper
}

// Client is an HTTP client for twtxt feeds.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxRedirects int
}

// NewClient creates a Client. Zero options take their defaults.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = UserAgent("", "", "", false)
	}
	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = http.ProxyFromEnvironment
		transport = t
	}

	c := &Client{
		userAgent:    opts.UserAgent,
		maxRedirects: opts.MaxRedirects,
	}
	c.httpClient = &http.Client{
		Timeout:       opts.Timeout,
		Transport:     transport,
		CheckRedirect: c.checkRedirect,
	}
	return c
}

// Fetch performs a conditional GET of url. When cached is set its
// Last-Modified value is sent as If-Modified-Since and a 304 response yields
// the cached body.
func (c *Client) Fetch(ctx context.Context, url string, cached *domain.CacheEntry) domain.FetchResult {
	result := domain.FetchResult{URL: url}

	trace := &redirectTrace{}
	ctx = context.WithValue(ctx, traceKey{}, trace)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Err = &Error{URL: url, Message: "create request", Cause: err}
		return result
	}
	req.Header.Set("User-Agent", c.userAgent)
	if cached != nil && cached.LastModified != "" {
		req.Header.Set("If-Modified-Since", cached.LastModified)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Err = &Error{URL: url, Message: "send request", Cause: err}
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		result.Err = &Error{URL: url, StatusCode: resp.StatusCode, Message: "read response", Cause: err}
		return result
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		result.Outcome = domain.OutcomeNotModified
		result.Body = cached.Body
		result.LastModified = cached.LastModified

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Outcome = domain.OutcomeFresh
		result.Body = string(body)
		result.LastModified = resp.Header.Get("Last-Modified")

	default:
		result.Err = &Error{URL: url, StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
		return result
	}

	// Redirects are only reported for successful responses.
	if trace.permanent != "" && trace.permanent != url {
		result.RedirectedTo = trace.permanent
	}
	return result
}

// Status issues a HEAD request and returns the final status code.
func (c *Client) Status(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, &Error{URL: url, Message: "create request", Cause: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{URL: url, Message: "send request", Cause: err}
	}
	resp.Body.Close()

	return resp.StatusCode, nil
}

// ErrTooManyRedirects is returned when a request exceeds the redirect limit.
var ErrTooManyRedirects = errors.New("too many redirects")

type traceKey struct{}

// redirectTrace records where a chain of permanent redirects starting at
// the requested URL ends up.
type redirectTrace struct {
	permanent string
	broken    bool
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > c.maxRedirects {
		return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, c.maxRedirects)
	}

	trace, ok := req.Context().Value(traceKey{}).(*redirectTrace)
	if !ok || trace.broken {
		return nil
	}
	if req.Response != nil && isPermanent(req.Response.StatusCode) {
		trace.permanent = req.URL.String()
	} else {
		trace.broken = true
	}
	return nil
}

func isPermanent(status int) bool {
	return status == http.StatusMovedPermanently || status == http.StatusPermanentRedirect
}

// UserAgent builds the client identification string. With disclose set and
// both nick and twturl known, the user's feed is advertised so that feed
// owners can discover their followers.
func UserAgent(version, nick, twturl string, disclose bool) string {
	if version == "" {
		version = "dev"
	}
	if disclose && nick != "" && twturl != "" {
		return fmt.Sprintf("twtxt/%s (+%s; @%s)", version, twturl, nick)
	}
	return "twtxt/" + version
}
