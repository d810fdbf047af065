package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/twtxt/internal/domain"
)

const feedBody = "2020-01-01T00:00:00Z\thello\n"

func TestFetch_Fresh(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		assert.Empty(t, r.Header.Get("If-Modified-Since"))
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2020 00:00:00 GMT")
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	c := NewClient(Options{UserAgent: "twtxt/test"})
	res := c.Fetch(context.Background(), srv.URL, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, domain.OutcomeFresh, res.Outcome)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, feedBody, res.Body)
	assert.Equal(t, "Mon, 01 Jan 2020 00:00:00 GMT", res.LastModified)
	assert.Empty(t, res.RedirectedTo)
	assert.Equal(t, "twtxt/test", gotUA)
}

func TestFetch_NotModifiedUsesCachedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") == "Mon, 01 Jan 2020 00:00:00 GMT" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("unexpected"))
	}))
	defer srv.Close()

	cached := &domain.CacheEntry{URL: srv.URL, LastModified: "Mon, 01 Jan 2020 00:00:00 GMT", Body: feedBody}
	res := NewClient(Options{}).Fetch(context.Background(), srv.URL, cached)

	require.NoError(t, res.Err)
	assert.Equal(t, domain.OutcomeNotModified, res.Outcome)
	assert.Equal(t, feedBody, res.Body)
}

func TestFetch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := NewClient(Options{}).Fetch(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Empty(t, res.Body)

	var fetchErr *Error
	require.True(t, errors.As(res.Err, &fetchErr))
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
}

func TestFetch_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewClient(Options{}).Fetch(context.Background(), url, nil)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Error(t, res.Err)
	assert.Zero(t, res.StatusCode)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	res := NewClient(Options{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Error(t, res.Err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetch_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBody))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/feed.txt", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/moved-308", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/moved", http.StatusPermanentRedirect)
	})
	mux.HandleFunc("/temporary", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/feed.txt", http.StatusFound)
	})
	mux.HandleFunc("/temporary-then-moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/moved", http.StatusFound)
	})
	mux.HandleFunc("/moved-then-temporary", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/temporary", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/moved-to-broken", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/broken", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{})

	tests := []struct {
		name string
		path string
		want string
	}{
		{"permanent", "/moved", srv.URL + "/feed.txt"},
		{"permanent chain", "/moved-308", srv.URL + "/feed.txt"},
		{"temporary", "/temporary", ""},
		{"temporary first", "/temporary-then-moved", ""},
		{"permanent then temporary", "/moved-then-temporary", srv.URL + "/temporary"},
		{"no redirect", "/feed.txt", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Fetch(context.Background(), srv.URL+tt.path, nil)
			require.NoError(t, res.Err)
			assert.Equal(t, feedBody, res.Body)
			assert.Equal(t, tt.want, res.RedirectedTo)
		})
	}

	t.Run("permanent to failing target", func(t *testing.T) {
		res := c.Fetch(context.Background(), srv.URL+"/moved-to-broken", nil)
		assert.Equal(t, domain.OutcomeFailed, res.Outcome)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Empty(t, res.RedirectedTo)
	})

	t.Run("loop", func(t *testing.T) {
		res := c.Fetch(context.Background(), srv.URL+"/loop", nil)
		assert.Equal(t, domain.OutcomeFailed, res.Outcome)
		assert.ErrorIs(t, res.Err, ErrTooManyRedirects)
	})
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Options{})

	code, err := c.Status(context.Background(), srv.URL+"/feed.txt")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)

	code, err = c.Status(context.Background(), srv.URL+"/gone")
	require.NoError(t, err)
	assert.Equal(t, http.StatusGone, code)
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "twtxt/1.2.3 (+https://example.org/twtxt.txt; @alice)",
		UserAgent("1.2.3", "alice", "https://example.org/twtxt.txt", true))
	assert.Equal(t, "twtxt/1.2.3", UserAgent("1.2.3", "alice", "https://example.org/twtxt.txt", false))
	assert.Equal(t, "twtxt/1.2.3", UserAgent("1.2.3", "alice", "", true))
	assert.Equal(t, "twtxt/dev", UserAgent("", "", "", false))
}

type memFollows struct {
	following map[string]string
	saves     int
}

func (m *memFollows) Following() map[string]string {
	out := make(map[string]string, len(m.following))
	for k, v := range m.following {
		out[k] = v
	}
	return out
}

func (m *memFollows) SetFollowing(nick, url string) { m.following[nick] = url }
func (m *memFollows) Save() error                   { m.saves++; return nil }

func TestTimeline_RedirectRewrite(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBody))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/feed.txt", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/moved-to-broken", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/broken", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	follows := &memFollows{following: map[string]string{
		"alice": srv.URL + "/moved",
		"bob":   srv.URL + "/moved-to-broken",
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := domain.NewTimelineService(NewClient(Options{}), nil, follows, nil, domain.ServiceOptions{RewriteRedirects: true}, logger)

	tweets, err := svc.Collect(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, tweets, 1)

	assert.Equal(t, srv.URL+"/feed.txt", follows.following["alice"])
	assert.Equal(t, srv.URL+"/moved-to-broken", follows.following["bob"])
	assert.Equal(t, 1, follows.saves)
}
