// Package catalog resolves anime episodes against the external catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hazavi/yumekai-sub000/server/domain"
	"github.com/hazavi/yumekai-sub000/server/usecase"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// Client calls GET {base}/anime/{slug}/episodes/{n}. Transport errors and
// 5xx replies are retried with exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	log        *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
		log:        logrus.WithField("component", "catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ usecase.Catalog = (*Client)(nil)

type episodeResponse struct {
	Title         string `json:"title"`
	Poster        string `json:"poster"`
	IframeSrc     string `json:"iframeSrc"`
	TotalEpisodes int    `json:"totalEpisodes"`
}

// errRetryable marks failures worth another attempt.
var errRetryable = errors.New("retryable")

func (c *Client) Resolve(ctx context.Context, slug string, episode int) (domain.EpisodeSource, error) {
	if slug == "" || episode < 1 {
		return domain.EpisodeSource{}, fmt.Errorf("%w: %q episode %d", domain.ErrInvalidEpisode, slug, episode)
	}
	endpoint := fmt.Sprintf("%s/anime/%s/episodes/%s", c.baseURL, url.PathEscape(slug), strconv.Itoa(episode))

	var lastErr error
	wait := c.backoff
	for attempt := 1; attempt <= c.attempts; attempt++ {
		source, err := c.fetch(ctx, endpoint)
		if err == nil {
			return source, nil
		}
		if !errors.Is(err, errRetryable) {
			return domain.EpisodeSource{}, err
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}

		c.log.WithError(err).WithFields(logrus.Fields{
			"slug":    slug,
			"episode": episode,
			"attempt": attempt,
		}).Warn("catalog request failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.EpisodeSource{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
	return domain.EpisodeSource{}, fmt.Errorf("%w: catalog gave up after %d attempts: %v", domain.ErrUnavailable, c.attempts, lastErr)
}

func (c *Client) fetch(ctx context.Context, endpoint string) (domain.EpisodeSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.EpisodeSource{}, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.EpisodeSource{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, ctx.Err())
		}
		return domain.EpisodeSource{}, fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.EpisodeSource{}, domain.ErrAnimeNotFound
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return domain.EpisodeSource{}, fmt.Errorf("%w: catalog returned status %d", errRetryable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.EpisodeSource{}, fmt.Errorf("%w: catalog returned status %d", domain.ErrUnavailable, resp.StatusCode)
	}

	var body episodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.EpisodeSource{}, fmt.Errorf("%w: malformed catalog response: %v", domain.ErrUnavailable, err)
	}
	if body.IframeSrc == "" {
		return domain.EpisodeSource{}, fmt.Errorf("%w: episode has no player source", domain.ErrAnimeNotFound)
	}
	return domain.EpisodeSource{
		Title:         body.Title,
		Poster:        body.Poster,
		IframeSrc:     body.IframeSrc,
		TotalEpisodes: body.TotalEpisodes,
	}, nil
}
