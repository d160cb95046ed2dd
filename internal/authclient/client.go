// Package authclient talks to the sync service auth endpoint and turns its
// answers into decoded JSON or typed errors.
package authclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds every auth call.
	DefaultTimeout = 30 * time.Second

	// MaxDiagnosticChars caps how much of an unexpected error body is kept.
	MaxDiagnosticChars = 262144

	truncationNotice = "Response too long. Truncated to first %d characters:\n"

	mediaJSON    = "application/json"
	mediaProblem = "application/problem+json"

	maxProblemBytes = 1 << 20
)

// HTTPDoer is satisfied by *http.Client and by test transports.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a decoded JSON object returned by the auth endpoint.
type Response map[string]any

// Lookup walks nested objects by key.
func (r Response) Lookup(keys ...string) (any, bool) {
	var cur any = map[string]any(r)
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns a non-empty string found at keys.
func (r Response) String(keys ...string) (string, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Int64 returns an integral number found at keys.
func (r Response) Int64(keys ...string) (int64, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// Result is the tagged outcome of Call.
type Result struct {
	Outcome  Outcome
	Response Response
	Err      error
}

// Client issues POST {server}/auth requests.
type Client struct {
	http    HTTPDoer
	limiter *rate.Limiter
}

// NewClient creates a client. A nil doer gets an *http.Client; a nil limiter
// disables outbound throttling.
func NewClient(doer HTTPDoer, limiter *rate.Limiter) *Client {
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{http: doer, limiter: limiter}
}

// Call performs Authenticate and classifies the failure, if any.
func (c *Client) Call(ctx context.Context, serverBase string, body any, timeout time.Duration) Result {
	resp, err := c.Authenticate(ctx, serverBase, body, timeout)
	return Result{Outcome: Classify(err), Response: resp, Err: err}
}

// Authenticate posts body to {serverBase}/auth and decodes the answer.
func (c *Client) Authenticate(ctx context.Context, serverBase string, body any, timeout time.Duration) (Response, error) {
	return c.post(ctx, serverBase, "/auth", body, timeout)
}

// Revoke asks the server to invalidate refreshToken. Errors are typed like
// those of Authenticate.
func (c *Client) Revoke(ctx context.Context, serverBase, refreshToken string, timeout time.Duration) error {
	_, err := c.post(ctx, serverBase, "/auth/revoke", map[string]string{"token": refreshToken}, timeout)
	return err
}

func (c *Client) post(ctx context.Context, serverBase, route string, body any, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Reason: "rate limited", Err: err}
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode auth request: %w", err)
	}
	endpoint := strings.TrimRight(serverBase, "/") + route
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", mediaJSON)
	req.Header.Set("Accept", mediaJSON+", "+mediaProblem)

	logger.Debugf("authclient: POST %s", endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		reason := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		return nil, &TransportError{Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	reason := statusReason(resp)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && mediaType == mediaJSON {
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		var out Response
		if err := dec.Decode(&out); err != nil {
			return nil, &TransportError{StatusCode: resp.StatusCode, Reason: reason, Err: fmt.Errorf("decode auth response: %w", err)}
		}
		return out, nil
	}

	if mediaType == mediaProblem {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProblemBytes))
		if err != nil {
			return nil, &TransportError{StatusCode: resp.StatusCode, Reason: reason, Err: err}
		}
		var problem struct {
			Code  json.Number `json:"code"`
			Title string      `json:"title"`
		}
		if err := json.Unmarshal(raw, &problem); err != nil {
			return nil, &TransportError{StatusCode: resp.StatusCode, Reason: reason, Body: string(raw), Err: err}
		}
		code := Unknown
		if n, err := problem.Code.Int64(); err == nil {
			code = CodeFromInt(int(n))
		}
		return nil, &AuthenticationError{
			Code:       code,
			StatusCode: resp.StatusCode,
			Reason:     reason,
			Body:       string(raw),
			Title:      problem.Title,
		}
	}

	text, err := ReadDiagnostic(resp.Body, MaxDiagnosticChars)
	return nil, &TransportError{StatusCode: resp.StatusCode, Reason: reason, Body: text, Err: err}
}

// ReadDiagnostic reads up to limit characters of r. When more data follows,
// the returned text is prefixed with a truncation notice.
func ReadDiagnostic(r io.Reader, limit int) (string, error) {
	br := bufio.NewReader(r)
	var sb strings.Builder
	for n := 0; n < limit; n++ {
		ch, _, err := br.ReadRune()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteRune(ch)
	}
	if _, _, err := br.ReadRune(); err == io.EOF {
		return sb.String(), nil
	}
	return fmt.Sprintf(truncationNotice, limit) + sb.String(), nil
}

func statusReason(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode) + " "
	if r := strings.TrimPrefix(resp.Status, prefix); r != "" && r != resp.Status {
		return r
	}
	return reasonPhrase(resp.StatusCode)
}
