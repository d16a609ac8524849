package ats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds one feed fetch, retries included.
	DefaultTimeout = 10 * time.Second

	maxFeedBody = 5 << 20
	userAgent   = "jobboard-ingest/1.0"
)

// HostWaiter paces requests per host before they are sent.
type HostWaiter interface {
	WaitURL(ctx context.Context, raw string) error
}

// Feed is the outcome of a successful fetch. Jobs may be empty.
type Feed struct {
	URL      string
	Provider Provider
	Payload  Payload
	Jobs     []Job
}

// Adapter fetches job feeds and normalizes them.
type Adapter struct {
	client  *retryablehttp.Client
	limiter HostWaiter
	timeout time.Duration
	logger  *zap.SugaredLogger
}

type AdapterOption func(*Adapter)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(c *http.Client) AdapterOption {
	return func(a *Adapter) { a.client.HTTPClient = c }
}

func WithHostLimiter(l HostWaiter) AdapterOption {
	return func(a *Adapter) { a.limiter = l }
}

func WithRetries(n int) AdapterOption {
	return func(a *Adapter) { a.client.RetryMax = n }
}

func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.timeout = d }
}

func NewAdapter(logger *zap.SugaredLogger, opts ...AdapterOption) *Adapter {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 3 * time.Second
	// Hand the last response back instead of a generic "giving up" error so
	// the status code and body survive.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	a := &Adapter{
		client:  client,
		timeout: DefaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Fetch retrieves feedURL and normalizes it according to the provider its host
// belongs to.
func (a *Adapter) Fetch(ctx context.Context, feedURL string) (Feed, error) {
	return a.FetchProvider(ctx, DetectProvider(feedURL), feedURL)
}

// FetchProvider retrieves feedURL and decodes it as provider p.
func (a *Adapter) FetchProvider(ctx context.Context, p Provider, feedURL string) (Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if a.limiter != nil {
		if err := a.limiter.WaitURL(ctx, feedURL); err != nil {
			return Feed{}, a.transportErr(feedURL, err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return Feed{}, fmt.Errorf("build request for %s: %w", feedURL, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return Feed{}, a.transportErr(feedURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody+1))
	if err != nil {
		return Feed{}, a.transportErr(feedURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Feed{}, &StatusError{
			URL:  feedURL,
			Code: resp.StatusCode,
			Body: truncate(string(body), maxErrorBody),
		}
	}
	if len(body) > maxFeedBody {
		return Feed{}, &TooLargeError{URL: feedURL, Limit: maxFeedBody}
	}

	payload, err := Decode(p, body)
	if err != nil {
		return Feed{}, err
	}

	jobs := payload.Normalize()
	if a.logger != nil {
		a.logger.Debugw("fetched feed",
			"provider", p,
			"url", feedURL,
			"jobs", len(jobs),
			"elapsed", time.Since(start),
		)
	}

	return Feed{URL: feedURL, Provider: p, Payload: payload, Jobs: jobs}, nil
}

func (a *Adapter) transportErr(feedURL string, err error) error {
	if isTimeout(err) {
		return &TimeoutError{URL: feedURL, After: a.timeout}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("fetch %s: %w", feedURL, err)
}
