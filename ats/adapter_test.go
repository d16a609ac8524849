package ats

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// rewriteTransport sends every request to target, keeping path and query, so
// real vendor URLs can be served by an httptest server.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func newTestAdapter(t *testing.T, srv *httptest.Server, opts ...AdapterOption) *Adapter {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	base := []AdapterOption{
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}),
		WithRetries(0),
	}
	return NewAdapter(zap.NewNop().Sugar(), append(base, opts...)...)
}

func TestFetchGreenhouse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/boards/acme/jobs", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(sampleGreenhouse))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	feed, err := a.Fetch(context.Background(), "https://boards-api.greenhouse.io/v1/boards/acme/jobs")
	require.NoError(t, err)

	assert.Equal(t, Greenhouse, feed.Provider)
	assert.IsType(t, GreenhousePayload{}, feed.Payload)
	assert.Len(t, feed.Jobs, 2)
}

func TestFetchEmptyFeedIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	feed, err := newTestAdapter(t, srv).Fetch(context.Background(), "https://api.lever.co/v0/postings/acme?mode=json")
	require.NoError(t, err)
	assert.Equal(t, Lever, feed.Provider)
	assert.Empty(t, feed.Jobs)
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv).Fetch(context.Background(), "https://api.ashbyhq.com/posting-api/job-board/acme")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Len(t, statusErr.Body, maxErrorBody+3)
	assert.Equal(t, KindStatus, Kind(err))
}

func TestFetchServerErrorAfterRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, WithRetries(1))
	a.client.RetryWaitMin = time.Millisecond
	a.client.RetryWaitMax = time.Millisecond

	_, err := a.Fetch(context.Background(), "https://boards-api.greenhouse.io/v1/boards/acme/jobs")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, "upstream down", statusErr.Body)
	assert.Equal(t, 2, calls)
}

func TestFetchParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<!doctype html><p>maintenance</p>`))
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv).Fetch(context.Background(), "https://boards-api.greenhouse.io/v1/boards/acme/jobs")
	assert.Equal(t, KindParse, Kind(err))
}

func TestFetchOversizedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[" + strings.Repeat(" ", maxFeedBody) + "]"))
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv).Fetch(context.Background(), "https://api.lever.co/v0/postings/acme?mode=json")

	var tooLarge *TooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, maxFeedBody, tooLarge.Limit)
	assert.Equal(t, KindTooLarge, Kind(err))
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "h...", truncate("héllo", 2))
	assert.Equal(t, "hé...", truncate("héllo", 3))
	assert.Equal(t, "héllo", truncate("héllo", 6))

	cut := truncate(strings.Repeat("日本", 300), maxErrorBody)
	assert.True(t, utf8.ValidString(cut))
	assert.LessOrEqual(t, len(cut), maxErrorBody+3)
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	a := newTestAdapter(t, srv, WithTimeout(50*time.Millisecond))
	_, err := a.Fetch(context.Background(), "https://api.lever.co/v0/postings/acme?mode=json")

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.Equal(t, KindTimeout, Kind(err))
}

func TestFindBoardLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "", "/":
			w.Write([]byte(`<html><body><a href="/about">About</a></body></html>`))
		case "/careers":
			w.Write([]byte(`<html><body>
				<a href="https://jobs.lever.co/acme">Open roles</a>
				<a href="https://jobs.lever.co/acme/123">Engineer</a>
				<script src="//boards.greenhouse.io/embed/job_board/js?for=acme"></script>
			</body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	links, err := newTestAdapter(t, srv).FindBoardLinks(context.Background(), "acme.com")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "https://api.lever.co/v0/postings/acme?mode=json", links[0].FeedURL)
	assert.Equal(t, Lever, links[0].Provider)
	assert.Equal(t, "https://boards-api.greenhouse.io/v1/boards/acme/jobs", links[1].FeedURL)
}
