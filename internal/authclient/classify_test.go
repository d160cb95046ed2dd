package authclient

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", &TransportError{StatusCode: http.StatusNotFound}, true},
		{"bad gateway", &TransportError{StatusCode: http.StatusBadGateway}, true},
		{"unavailable", &TransportError{StatusCode: http.StatusServiceUnavailable}, true},
		{"gateway timeout", &TransportError{StatusCode: http.StatusGatewayTimeout}, true},
		{"request timeout", &TransportError{StatusCode: http.StatusRequestTimeout}, true},
		{"wrapped unavailable", fmt.Errorf("refresh: %w", &TransportError{StatusCode: http.StatusServiceUnavailable}), true},
		{"internal error", &TransportError{StatusCode: http.StatusInternalServerError}, false},
		{"unauthorized", &TransportError{StatusCode: http.StatusUnauthorized}, false},
		{"no response", &TransportError{Err: errors.New("dial tcp: refused")}, false},
		{"problem body with 503", &AuthenticationError{StatusCode: http.StatusServiceUnavailable}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestClassify(t *testing.T) {
	require.Equal(t, OutcomeOK, Classify(nil))
	require.Equal(t, OutcomeTransient, Classify(&TransportError{StatusCode: http.StatusBadGateway}))
	require.Equal(t, OutcomeFatal, Classify(&AuthenticationError{Code: InvalidCredentials}))
	require.Equal(t, "transient", OutcomeTransient.String())
}

func TestCodeFromInt(t *testing.T) {
	require.Equal(t, InvalidCredentials, CodeFromInt(611))
	require.Equal(t, ExpiredRefreshToken, CodeFromInt(615))
	require.Equal(t, Unknown, CodeFromInt(12345))
	require.Equal(t, "BadUserAuthentication", BadUserAuthentication.String())
	require.Equal(t, "ErrorCode(12345)", ErrorCode(12345).String())
}
