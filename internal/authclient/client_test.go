package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthenticate_SuccessDecodesJSON(t *testing.T) {
	var gotBody map[string]any
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth", r.URL.Path)
		assert.Contains(t, r.Header.Get("Accept"), "application/json")
		assert.Contains(t, r.Header.Get("Accept"), "application/problem+json")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"refresh_token":{"token":"abc","token_data":{"identity":"u1","expires":1700000000}}}`))
	})

	c := NewClient(srv.Client(), nil)
	resp, err := c.Authenticate(context.Background(), srv.URL+"/", map[string]string{"provider": "password"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, "password", gotBody["provider"])

	tok, ok := resp.String("refresh_token", "token")
	require.True(t, ok)
	require.Equal(t, "abc", tok)
	id, ok := resp.String("refresh_token", "token_data", "identity")
	require.True(t, ok)
	require.Equal(t, "u1", id)
	exp, ok := resp.Int64("refresh_token", "token_data", "expires")
	require.True(t, ok)
	require.Equal(t, int64(1700000000), exp)

	_, ok = resp.String("refresh_token", "missing")
	require.False(t, ok)
}

func TestAuthenticate_ProblemBodyMapsCode(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":611,"title":"The provided credentials are invalid."}`))
	})

	_, err := NewClient(srv.Client(), nil).Authenticate(context.Background(), srv.URL, struct{}{}, time.Second)
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	require.Equal(t, InvalidCredentials, authErr.Code)
	require.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	require.Equal(t, "Unauthorized", authErr.Reason)
	require.Equal(t, "The provided credentials are invalid.", authErr.Title)
	require.Contains(t, authErr.Body, `"code":611`)
	require.Equal(t, OutcomeFatal, Classify(err))
}

func TestAuthenticate_ProblemBodyUnmappedCodeIsUnknown(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":4242,"title":"odd"}`))
	})

	_, err := NewClient(srv.Client(), nil).Authenticate(context.Background(), srv.URL, struct{}{}, time.Second)
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	require.Equal(t, Unknown, authErr.Code)
}

func TestAuthenticate_PlainErrorBodyIsTransportError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<html>upstream down</html>"))
	})

	res := NewClient(srv.Client(), nil).Call(context.Background(), srv.URL, struct{}{}, time.Second)
	require.Equal(t, OutcomeTransient, res.Outcome)
	var te *TransportError
	require.True(t, errors.As(res.Err, &te))
	require.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	require.Equal(t, "Service Unavailable", te.Reason)
	require.Equal(t, "<html>upstream down</html>", te.Body)
}

func TestAuthenticate_SuccessStatusWithoutJSONFails(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})

	_, err := NewClient(srv.Client(), nil).Authenticate(context.Background(), srv.URL, struct{}{}, time.Second)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, http.StatusOK, te.StatusCode)
	require.Equal(t, "ok", te.Body)
}

func TestAuthenticate_TimeoutIsNotTransient(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	res := NewClient(srv.Client(), nil).Call(context.Background(), srv.URL, struct{}{}, 50*time.Millisecond)
	require.Equal(t, OutcomeFatal, res.Outcome)
	var te *TransportError
	require.True(t, errors.As(res.Err, &te))
	require.Equal(t, 0, te.StatusCode)
	require.Equal(t, "timeout", te.Reason)
	require.True(t, errors.Is(res.Err, context.DeadlineExceeded))
}

func TestAuthenticate_LimiterBlocksUntilCanceled(t *testing.T) {
	calls := 0
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	// one token, refilled every hour: the second call cannot get a token in time
	c := NewClient(srv.Client(), rate.NewLimiter(rate.Every(time.Hour), 1))
	_, err := c.Authenticate(context.Background(), srv.URL, struct{}{}, time.Second)
	require.NoError(t, err)
	_, err = c.Authenticate(context.Background(), srv.URL, struct{}{}, 50*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRevoke_PostsTokenToRevokeRoute(t *testing.T) {
	var gotBody map[string]string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/revoke", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	c := NewClient(srv.Client(), nil)
	require.NoError(t, c.Revoke(context.Background(), srv.URL, "rt-1", time.Second))
	assert.Equal(t, map[string]string{"token": "rt-1"}, gotBody)
}

func TestRevoke_ProblemIsAuthenticationError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":602,"title":"token is required"}`))
	})

	err := NewClient(srv.Client(), nil).Revoke(context.Background(), srv.URL, "", time.Second)
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, MissingParameters, authErr.Code)
}

func TestReadDiagnostic_Truncation(t *testing.T) {
	long := strings.Repeat("x", MaxDiagnosticChars+10)
	got, err := ReadDiagnostic(strings.NewReader(long), MaxDiagnosticChars)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, "Response too long. Truncated to first 262144 characters:\n"))
	require.Equal(t, MaxDiagnosticChars, len(strings.TrimPrefix(got, "Response too long. Truncated to first 262144 characters:\n")))

	short := strings.Repeat("y", 1000)
	got, err = ReadDiagnostic(strings.NewReader(short), MaxDiagnosticChars)
	require.NoError(t, err)
	require.Equal(t, short, got)

	exact := strings.Repeat("z", 16)
	got, err = ReadDiagnostic(strings.NewReader(exact), 16)
	require.NoError(t, err)
	require.Equal(t, exact, got)
}

func TestReadDiagnostic_CountsCharactersNotBytes(t *testing.T) {
	got, err := ReadDiagnostic(strings.NewReader("ééé"), 2)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(got, "éé"))
	require.True(t, strings.HasPrefix(got, "Response too long."))
}
