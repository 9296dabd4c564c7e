package ocds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// ErrUpstream marks permanent upstream failures: 4xx responses, schema
// drift, unparseable payloads. These are not retried.
var ErrUpstream = errors.New("permanent upstream error")

// Client fetches paginated OCDS release packages from one source.
// Transient failures (timeouts, 5xx, 429) are retried with exponential
// backoff and jitter; context cancellation propagates immediately.
type Client struct {
	name        string
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	logger      *zap.Logger
}

// NewClient creates a source client. Timeout applies per page request.
func NewClient(name, baseURL string, timeout time.Duration, maxAttempts int, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Client{
		name:        name,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		logger:      logger.Named("ocds").With(zap.String("source", name)),
	}
}

// Name returns the source name.
func (c *Client) Name() string { return c.name }

type releasePackage struct {
	Releases []map[string]any `json:"releases"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

// FetchReleases walks release pages from updatedFrom, invoking fn for each
// release in API order. fn errors abort the walk.
func (c *Client) FetchReleases(ctx context.Context, updatedFrom time.Time, fn func(Release) error) error {
	query := url.Values{}
	query.Set("updatedFrom", updatedFrom.UTC().Format("2006-01-02")+"T00:00:00Z")
	return c.walk(ctx, c.baseURL+"?"+query.Encode(), fn)
}

// FetchKeyword walks a keyword-filtered historical window using the same
// release-package schema.
func (c *Client) FetchKeyword(ctx context.Context, keyword string, from, to time.Time, fn func(Release) error) error {
	query := url.Values{}
	query.Set("keyword", keyword)
	query.Set("publishedFrom", from.UTC().Format("2006-01-02")+"T00:00:00Z")
	query.Set("publishedTo", to.UTC().Format("2006-01-02")+"T23:59:59Z")
	return c.walk(ctx, c.baseURL+"?"+query.Encode(), fn)
}

// walk follows links.next until absent.
func (c *Client) walk(ctx context.Context, first string, fn func(Release) error) error {
	next := first
	pages := 0
	for next != "" {
		page, err := c.getPage(ctx, next)
		if err != nil {
			return fmt.Errorf("page %d: %w", pages+1, err)
		}
		pages++

		for _, raw := range page.Releases {
			if err := fn(Release(raw)); err != nil {
				return err
			}
		}
		next = page.Links.Next
	}
	c.logger.Info("fetch complete", zap.Int("pages", pages))
	return nil
}

// getPage fetches one page with retry on transient failures.
func (c *Client) getPage(ctx context.Context, pageURL string) (*releasePackage, error) {
	backoff := retry.WithJitter(500*time.Millisecond,
		retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(time.Second)))

	var page *releasePackage
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("page fetch failed, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			c.logger.Warn("transient status, retrying", zap.Int("status", resp.StatusCode))
			return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, body)
		}

		var decoded releasePackage
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
		}
		page = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
