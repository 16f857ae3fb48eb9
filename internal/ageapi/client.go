// Package ageapi resolves the publication time of a reel through an
// optional HTTP endpoint and feeds it into temporal analysis.
package ageapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/retry"
)

const defaultCacheSize = 512

// Client queries GET {endpoint}?url=<ref>. The endpoint answers with
// {"age_seconds": n} or {"created_at": "<RFC3339>"}.
type Client struct {
	endpoint string
	http     *http.Client
	cache    *lru.Cache[string, time.Time]
	retry    retry.Config
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client. The cache remembers resolved publication times,
// so a cached answer stays correct as time passes.
func New(endpoint string, timeout time.Duration, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if _, err := url.Parse(endpoint); err != nil || endpoint == "" {
		return nil, fmt.Errorf("age api endpoint %q: invalid", endpoint)
	}
	cache, err := lru.New[string, time.Time](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("age api cache: %w", err)
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		cache:    cache,
		retry:    retry.Config{MaxAttempts: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second, Jitter: true},
		now:      time.Now,
		logger:   logger.With().Str("component", "ageapi").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type response struct {
	AgeSeconds *float64 `json:"age_seconds"`
	CreatedAt  string   `json:"created_at"`
}

// PublishedAt returns when ref was published. ok is false when the
// endpoint has no answer for it.
func (c *Client) PublishedAt(ctx context.Context, ref string) (t time.Time, ok bool, err error) {
	if ref == "" {
		return time.Time{}, false, nil
	}
	if t, hit := c.cache.Get(ref); hit {
		return t, true, nil
	}

	t, err = retry.DoValue(ctx, c.retry, func(ctx context.Context) (time.Time, error) {
		return c.fetch(ctx, ref)
	})
	if errors.Is(err, errNoAnswer) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	c.cache.Add(ref, t)
	return t, true, nil
}

var errNoAnswer = errors.New("age api: no answer")

func (c *Client) fetch(ctx context.Context, ref string) (time.Time, error) {
	u := c.endpoint + "?" + url.Values{"url": []string{ref}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return time.Time{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("age api: %w: %v", serrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return time.Time{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return time.Time{}, errNoAnswer
	}
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, serrors.NewAPIError("ageapi", resp.StatusCode, string(body))
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return time.Time{}, fmt.Errorf("age api decode: %w", err)
	}
	switch {
	case r.AgeSeconds != nil && *r.AgeSeconds >= 0:
		return c.now().Add(-time.Duration(*r.AgeSeconds * float64(time.Second))), nil
	case r.CreatedAt != "":
		t, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			return time.Time{}, fmt.Errorf("age api created_at: %w", err)
		}
		return t, nil
	}
	c.logger.Debug().Str("ref", ref).Msg("Endpoint returned no age")
	return time.Time{}, errNoAnswer
}
