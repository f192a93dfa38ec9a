// Package release queries the upstream feed for the latest published
// library release. Requests carry a cache validation token so an unchanged
// feed answers with 304 instead of a full payload.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/libkeeper/libkeeper/internal/branding"
)

const (
	defaultTimeout = 30 * time.Second

	// maxFetchRetries bounds re-attempts after the first try, so a fetch
	// makes at most three requests.
	maxFetchRetries = 2

	// maxResponseBytes caps how much release JSON is read.
	maxResponseBytes = 10 << 20
)

// ErrNoAssets is returned when the latest release lists no downloadable
// assets.
var ErrNoAssets = errors.New("release has no assets")

// StatusError reports a non-OK answer from the release endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	switch e.Code {
	case http.StatusNotFound:
		return "no release found"
	case http.StatusForbidden:
		return "GitHub API rate limit exceeded. Set GITHUB_TOKEN for higher limits"
	default:
		return fmt.Sprintf("release endpoint returned status %d", e.Code)
	}
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// Metadata describes the latest release. Assets keep the order the feed
// listed them in.
type Metadata struct {
	Tag         string  `json:"tag_name"`
	PublishedAt string  `json:"published_at"`
	Assets      []Asset `json:"assets"`
}

// Result is the outcome of one fetch. NotModified is set when the feed
// answered 304; Metadata is nil in that case. ETag carries the cache token
// from the response, empty when none was sent.
type Result struct {
	Metadata    *Metadata
	ETag        string
	NotModified bool
}

// Client fetches release metadata from a fixed endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	token      string
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout adjusts the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithToken sets the bearer token sent on requests.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient returns a Client for the given release endpoint. The bearer
// token defaults to GITHUB_TOKEN when set.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      os.Getenv("GITHUB_TOKEN"),
		userAgent:  branding.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchLatest queries the endpoint for the latest release. A non-empty etag
// is sent as If-None-Match. Transient transport failures and 5xx answers are
// retried with backoff, at most three attempts in total. Failures are logged
// here; callers treat any error as "no usable metadata this cycle".
func (c *Client) FetchLatest(ctx context.Context, etag string) (*Result, error) {
	var res *Result
	operation := func() error {
		r, err := c.fetchOnce(ctx, etag)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			log.Debugf("release fetch attempt failed, retrying: %v", err)
			return err
		}
		res = r
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), maxFetchRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		if errors.Is(err, ErrNoAssets) {
			log.Warnf("latest release from %s has no assets", branding.UpstreamRepo())
		} else {
			log.Errorf("fetching latest release from %s: %v", branding.UpstreamRepo(), err)
		}
		return nil, err
	}
	return res, nil
}

func (c *Client) fetchOnce(ctx context.Context, etag string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching release metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var meta Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("parsing release JSON: %w", err)
	}
	if len(meta.Assets) == 0 {
		return nil, ErrNoAssets
	}

	return &Result{Metadata: &meta, ETag: resp.Header.Get("ETag")}, nil
}

// retryable reports whether a failed attempt is worth repeating: transport
// errors and server-side 5xx answers qualify, everything else is final.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func newBackOff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}
