// Package external holds the adapters between the decision engine and the
// vendor APIs it talks to: the Open-Meteo forecast API, a WhatsApp gateway and
// Firebase Cloud Messaging. The two HTTP vendors sit behind an upstream, which
// owns their circuit breaker and retry budget.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"gardenwatch/internal/types"

	"github.com/sony/gobreaker/v2"
)

const (
	userAgent = "gardenwatch/1.0"

	// defaultTripAfter consecutive failures open an upstream's breaker.
	defaultTripAfter = 5
)

// Backoff bounds the retries made against one upstream. Only 429 and 5xx
// answers and transport errors are retried.
type Backoff struct {
	Retries int
	Min     time.Duration
	Max     time.Duration
}

// delay is the wait before retry number attempt+1. A positive hint (from
// Retry-After) wins over the jittered exponential step; both are clamped to
// [Min, Max].
func (b Backoff) delay(attempt int, hint time.Duration) time.Duration {
	d := hint
	if d <= 0 {
		d = b.Min << min(attempt, 16)
		if d > b.Min {
			d = b.Min + rand.N(d-b.Min)
		}
	}
	return min(max(d, b.Min), b.Max)
}

// upstream is one vendor endpoint with its own breaker, so a weather outage
// never trips the dispatch path.
type upstream struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	backoff Backoff
}

func newUpstream(name string, timeout time.Duration, backoff Backoff) *upstream {
	return &upstream{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		breaker: newBreaker(name, defaultTripAfter),
		backoff: backoff,
	}
}

func newBreaker(name string, tripAfter uint32) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= tripAfter
		},
	})
}

// do sends req, retrying within the backoff budget. Any answer that is not
// retryable is returned as is and the caller closes its body. Exhausted
// retries and an open breaker come back as AppErrors.
func (u *upstream) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	ctx := req.Context()

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to rewind request body", bodyErr)
			}
			req.Body = body
		}

		resp, err = u.breaker.Execute(func() (*http.Response, error) {
			r, doErr := u.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
				return r, fmt.Errorf("%s returned %d", u.name, r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}
		if breakerOpen(err) || attempt >= u.backoff.Retries || ctx.Err() != nil {
			break
		}

		wait := u.backoff.delay(attempt, retryAfter(resp))
		discard(resp)
		if sleepCtx(ctx, wait) != nil {
			break
		}
	}

	appErr := u.classify(resp, err)
	discard(resp)
	return nil, appErr
}

func (u *upstream) classify(resp *http.Response, err error) *types.AppError {
	switch {
	case breakerOpen(err):
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, u.name+" circuit breaker is open", err)
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, u.name+" rate limit exceeded", err)
	case resp != nil:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s returned %d after retries", u.name, resp.StatusCode), err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, u.name+" request failed", err)
	}
}

// breakerState is "closed", "half-open" or "open".
func (u *upstream) breakerState() string {
	return u.breaker.State().String()
}

// getJSON issues a GET and decodes a 2xx JSON body into out. Other statuses
// map to an AppError carrying code.
func (u *upstream) getJSON(ctx context.Context, url string, code types.ErrorCode, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewAppError(code,
			fmt.Sprintf("%s returned %d: %s", u.name, resp.StatusCode, bodySnippet(resp)), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(code, "failed to decode "+u.name+" response", err)
	}
	return nil
}

func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// retryAfter reads a delay-seconds Retry-After header.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func bodySnippet(resp *http.Response) []byte {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return bytes.TrimSpace(b)
}

func discard(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
