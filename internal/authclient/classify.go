package authclient

import (
	"errors"
	"net/http"
)

// Outcome tags the result of an auth call so callers branch on a value
// instead of matching error types.
type Outcome int

const (
	// OutcomeOK is a successful call.
	OutcomeOK Outcome = iota
	// OutcomeTransient is a connectivity hiccup worth retrying later.
	OutcomeTransient
	// OutcomeFatal is any other failure; retrying will not help.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Statuses that correlate with proxy/DNS flakiness rather than bad credentials.
var connectivityStatuses = map[int]struct{}{
	http.StatusNotFound:           {},
	http.StatusBadGateway:         {},
	http.StatusServiceUnavailable: {},
	http.StatusGatewayTimeout:     {},
	http.StatusRequestTimeout:     {},
}

// IsTransient reports whether err is a TransportError with a connectivity status.
// Timeouts and network failures (status 0) and every AuthenticationError are not.
func IsTransient(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	_, ok := connectivityStatuses[te.StatusCode]
	return ok
}

// Classify maps the error of an auth call to its Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case IsTransient(err):
		return OutcomeTransient
	default:
		return OutcomeFatal
	}
}
