// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	runnerlog "github.com/tombee/runner/internal/log"
	runnererrors "github.com/tombee/runner/pkg/errors"
)

const maxResponseBodyBytes = 10000

// HTTPExecutor runs the "http" node type: an outbound HTTP request with
// exponential backoff on transport failures and timeouts.
type HTTPExecutor struct {
	client      *http.Client
	logger      *slog.Logger
	rateLimiter *HostRateLimiter
}

// NewHTTPExecutor returns an HTTP executor. A nil logger falls back to
// slog.Default(). Attach a rate limiter with WithRateLimiter to bound
// request frequency per upstream host.
func NewHTTPExecutor(logger *slog.Logger) *HTTPExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPExecutor{client: &http.Client{}, logger: runnerlog.WithExecutor(logger, "http")}
}

// WithRateLimiter attaches a per-host rate limiter, returning the executor
// for chaining.
func (e *HTTPExecutor) WithRateLimiter(limiter *HostRateLimiter) *HTTPExecutor {
	e.rateLimiter = limiter
	return e
}

// Execute implements Executor. Config fields: method (default GET), url
// (required), headers (map or JSON-encoded string), body (map or string),
// timeout in seconds (default 30), retry_count (default 3).
func (e *HTTPExecutor) Execute(ctx context.Context, config map[string]any, _ map[string]any) (any, error) {
	method := "GET"
	if m, ok := config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	url, _ := config["url"].(string)
	if url == "" {
		return nil, &runnererrors.ValidationError{Field: "url", Message: "url is required for http node"}
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.Wait(ctx, url); err != nil {
			return nil, &runnererrors.TimeoutError{Operation: "http executor rate limit wait", Cause: err}
		}
	}

	headers := parseHeaders(config["headers"])

	var bodyBytes []byte
	if raw, ok := config["body"]; ok && raw != nil {
		bodyBytes = prepareBody(raw, headers)
	}

	timeoutSeconds := 30
	if t, ok := toInt(config["timeout"]); ok {
		timeoutSeconds = t
	}
	timeout := time.Duration(timeoutSeconds) * time.Second

	retryCount := 3
	if rc, ok := toInt(config["retry_count"]); ok {
		retryCount = rc
	}

	var lastErr error
	for attempt := 0; attempt <= retryCount; attempt++ {
		output, err := e.attempt(ctx, method, url, headers, bodyBytes, timeout)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if !isRetryableHTTPError(err) {
			return nil, err
		}

		if attempt < retryCount {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			e.logger.Info("retrying http request", slog.String("url", url), slog.Duration("wait", wait), slog.Int("attempt", attempt+1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, &runnererrors.TimeoutError{Operation: "http executor backoff wait", Cause: ctx.Err()}
			}
		}
	}

	return nil, fmt.Errorf("http request failed after %d attempts: %w", retryCount+1, lastErr)
}

func (e *HTTPExecutor) attempt(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) (any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return nil, &runnererrors.ValidationError{Field: "url", Message: err.Error()}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, &runnererrors.TimeoutError{Operation: fmt.Sprintf("http request to %s", url), Cause: err}
		}
		return nil, &runnererrors.TransportError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &runnererrors.TransportError{URL: url, Cause: err}
	}

	responseBody := decodeResponseBody(rawBody)

	respHeaders := make(map[string]any, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) == 1 {
			respHeaders[k] = v[0]
		} else {
			respHeaders[k] = v
		}
	}

	return map[string]any{
		"status_code":      resp.StatusCode,
		"response_headers": respHeaders,
		"response_body":    responseBody,
		"success":          resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}

// decodeResponseBody parses the response as JSON when possible, falling
// back to raw text, and truncates the serialized form at 10,000 bytes.
func decodeResponseBody(raw []byte) any {
	var parsed any
	useText := false
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
		useText = true
	}

	var serialized string
	if useText {
		serialized = parsed.(string)
	} else if b, err := json.Marshal(parsed); err == nil {
		serialized = string(b)
	} else {
		serialized = fmt.Sprintf("%v", parsed)
	}

	if len(serialized) > maxResponseBodyBytes {
		return serialized[:maxResponseBodyBytes] + "... [truncated]"
	}
	return parsed
}

func parseHeaders(raw any) map[string]string {
	headers := make(map[string]string)
	switch v := raw.(type) {
	case map[string]string:
		for k, val := range v {
			headers[k] = val
		}
	case map[string]any:
		for k, val := range v {
			headers[k] = fmt.Sprintf("%v", val)
		}
	case string:
		var decoded map[string]string
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			headers = decoded
		}
	}
	return headers
}

func prepareBody(raw any, headers map[string]string) []byte {
	switch v := raw.(type) {
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			return marshalJSONBody(decoded, headers)
		}
		return []byte(v)
	case map[string]any:
		return marshalJSONBody(v, headers)
	default:
		if b, err := json.Marshal(v); err == nil {
			return b
		}
		return nil
	}
}

func marshalJSONBody(m map[string]any, headers map[string]string) []byte {
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/json"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

func isRetryableHTTPError(err error) bool {
	var timeoutErr *runnererrors.TimeoutError
	var transportErr *runnererrors.TransportError
	return errors.As(err, &timeoutErr) || errors.As(err, &transportErr)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
