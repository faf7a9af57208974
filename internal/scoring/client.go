// Package scoring calls the remote credit-scoring service for one client.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Decision is the credit outcome derived from the predicted class.
type Decision string

const (
	Approved Decision = "approved"
	Rejected Decision = "rejected"
)

// DecisionFor maps a predicted class to a decision: class 0 (repays on time)
// is approved, anything else is rejected.
func DecisionFor(class int) Decision {
	if class == 0 {
		return Approved
	}
	return Rejected
}

// Result is a parsed scoring response.
type Result struct {
	ProbabilityOnTime  float64  `json:"probability_on_time"`
	ProbabilityDefault float64  `json:"probability_default"`
	PredictedClass     int      `json:"predicted_class"`
	Decision           Decision `json:"decision"`
}

// wire format of the /predict response
type predictResponse struct {
	Target0 *float64 `json:"Prédiction de la TARGET 0"`
	Target1 *float64 `json:"Prédiction de la TARGET 1"`
	Class   *float64 `json:"Classe prédite pour ces données"`
}

// Client posts feature records to {baseURL}/predict.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	limiter          *rate.Limiter
}

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
func NewClient(baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 30 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		baseURL:          strings.TrimRight(baseURL, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// WithRateLimit caps outgoing requests at perSec (burst 1). Zero disables it.
func (c *Client) WithRateLimit(perSec float64) *Client {
	if perSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	} else {
		c.limiter = nil
	}
	return c
}

// Endpoint returns the prediction URL.
func (c *Client) Endpoint() string { return c.baseURL + "/predict" }

// Score submits record (any JSON-marshalable attribute mapping) and parses the prediction.
func (c *Client) Score(ctx context.Context, record any) (*Result, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.Endpoint()
	backoff := c.retryBaseDelay
	log := zap.L().With(zap.String("endpoint", endpoint))

	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &UnavailableError{URL: endpoint, Attempts: attempt - 1, Err: err}
			}
		}
		if ctx.Err() != nil {
			return nil, &UnavailableError{URL: endpoint, Attempts: attempt - 1, Err: ctx.Err()}
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = &UnavailableError{URL: endpoint, Attempts: attempt, Err: err}
			if ctx.Err() == nil && attempt < c.retryMaxAttempts {
				log.Debug("scoring request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
				if !sleepCtx(ctx, withJitter(backoff, c.retryMaxDelay)) {
					return nil, lastErr
				}
				backoff *= 2
				continue
			}
			return nil, lastErr
		}

		result, retryAfter, err := c.handle(resp, endpoint, attempt)
		if err == nil {
			log.Debug("scored", zap.Int("attempt", attempt), zap.Int("class", result.PredictedClass))
			return result, nil
		}
		lastErr = err
		if !retryable(resp.StatusCode) || attempt >= c.retryMaxAttempts {
			break
		}
		wait := withJitter(backoff, c.retryMaxDelay)
		if retryAfter > 0 {
			wait = retryAfter
		}
		log.Debug("scoring service busy, retrying",
			zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode), zap.Duration("wait", wait))
		if !sleepCtx(ctx, wait) {
			break
		}
		backoff *= 2
	}
	return nil, lastErr
}

// handle reads one response; retryAfter is set when the server asked for a pause.
func (c *Client) handle(resp *http.Response, endpoint string, attempt int) (*Result, time.Duration, error) {
	defer resp.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	reqID := extractRequestID(resp)

	if resp.StatusCode != http.StatusOK {
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := parseRetryAfterSeconds(v); err == nil && secs > 0 {
				ra = time.Duration(secs) * time.Second
			}
		}
		if isGateway(resp.StatusCode) {
			return nil, ra, &UnavailableError{URL: endpoint, StatusCode: resp.StatusCode, Attempts: attempt, Body: truncate(string(body), 2048), RequestID: reqID}
		}
		return nil, ra, &ServiceError{StatusCode: resp.StatusCode, Body: truncate(string(body), 2048), RequestID: reqID}
	}
	if readErr != nil {
		return nil, 0, &UnavailableError{URL: endpoint, Attempts: attempt, Err: readErr}
	}
	var out predictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, 0, &ServiceError{StatusCode: resp.StatusCode, Body: truncate(string(body), 2048), RequestID: reqID, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Target0 == nil || out.Target1 == nil || out.Class == nil {
		return nil, 0, &ServiceError{StatusCode: resp.StatusCode, Body: truncate(string(body), 2048), RequestID: reqID, Err: errors.New("response is missing prediction fields")}
	}
	class := *out.Class
	if class != math.Trunc(class) || class < 0 {
		return nil, 0, &ServiceError{StatusCode: resp.StatusCode, Body: truncate(string(body), 2048), RequestID: reqID, Err: fmt.Errorf("predicted class %v is not a class index", class)}
	}
	r := &Result{
		ProbabilityOnTime:  *out.Target0,
		ProbabilityDefault: *out.Target1,
		PredictedClass:     int(class),
	}
	r.Decision = DecisionFor(r.PredictedClass)
	return r, 0, nil
}

func isGateway(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || isGateway(status)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// parseRetryAfterSeconds tries to interpret Retry-After header value as seconds or HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	for _, k := range []string{"X-Request-Id", "X-Amzn-Requestid", "Rndr-Id"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns d with +/- 20% jitter, capped at ceiling.
func withJitter(d, ceiling time.Duration) time.Duration {
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		out = d
	}
	if ceiling > 0 && out > ceiling {
		out = ceiling
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
