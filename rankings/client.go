package rankings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"toptracks/models"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrFetchFailed is the single failure kind for snapshot fetches: bad status,
// transport failure and undecodable bodies all match it.
var ErrFetchFailed = errors.New("snapshot fetch failed")

type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("snapshot %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("snapshot %s: %v", e.URL, e.Err)
}

// Cause is the innermost failure message, without the snapshot URL.
func (e *FetchError) Cause() string {
	if e.Err == nil {
		if e.StatusCode != 0 {
			return fmt.Sprintf("HTTP %d", e.StatusCode)
		}
		return ErrFetchFailed.Error()
	}
	cause := e.Err
	for {
		next := errors.Unwrap(cause)
		if next == nil {
			return cause.Error()
		}
		cause = next
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// IsStatusFailure reports whether err came from a non-2xx response.
func IsStatusFailure(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode != 0
}

type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond int
	HTTPClient        *http.Client
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	group      singleflight.Group
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = opts.RequestsPerSecond
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// SnapshotURL builds <base>/<board>/<category>/<category>Top100_<date>.json.
func (c *Client) SnapshotURL(board, category, date string) string {
	category = url.PathEscape(category)
	return fmt.Sprintf("%s/%s/%s/%sTop100_%s.json",
		c.baseURL, url.PathEscape(board), category, category, url.PathEscape(date))
}

// Fetch downloads one ranking snapshot. Concurrent calls for the same URL
// share a single request; each caller still stops waiting when its own ctx
// is done.
func (c *Client) Fetch(ctx context.Context, board, category, date string) ([]models.RankingEntry, error) {
	snapshotURL := c.SnapshotURL(board, category, date)
	logger := log.WithFields(log.Fields{
		"module":   "rankings",
		"board":    board,
		"category": category,
		"date":     date,
	})

	span := sentry.StartSpan(ctx, "rankings.fetch")
	span.Description = "Fetch ranking snapshot"
	span.SetTag("board", board)
	span.SetTag("category", category)
	span.SetTag("date", date)
	defer span.Finish()

	ch := c.group.DoChan(snapshotURL, func() (interface{}, error) {
		// detached so one caller cancelling does not fail the others
		return c.get(context.WithoutCancel(span.Context()), snapshotURL)
	})

	select {
	case <-ctx.Done():
		span.Status = sentry.SpanStatusCanceled
		return nil, &FetchError{URL: snapshotURL, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			logger.Warnf("snapshot fetch failed: %v", res.Err)
			if IsStatusFailure(res.Err) {
				span.Status = sentry.SpanStatusNotFound
			} else {
				span.Status = sentry.SpanStatusInternalError
			}
			return nil, res.Err
		}
		entries := res.Val.([]models.RankingEntry)
		logger.Debugf("fetched %d entries (shared=%v)", len(entries), res.Shared)
		span.Status = sentry.SpanStatusOK
		span.SetData("entries", len(entries))
		if res.Shared {
			// each caller owns its slice
			return append([]models.RankingEntry(nil), entries...), nil
		}
		return entries, nil
	}
}

func (c *Client) get(ctx context.Context, snapshotURL string) ([]models.RankingEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: snapshotURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, snapshotURL, nil)
	if err != nil {
		return nil, &FetchError{URL: snapshotURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	log.Tracef("GET %s", snapshotURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: snapshotURL, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: snapshotURL, StatusCode: resp.StatusCode}
	}

	var entries []models.RankingEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &FetchError{URL: snapshotURL, Err: fmt.Errorf("failed to decode snapshot: %w", err)}
	}
	if entries == nil {
		entries = []models.RankingEntry{}
	}
	return entries, nil
}
