package sessions

import (
	"fmt"

	"github.com/munirahkamaluddin/realm-dotnet/internal/authclient"
)

// SessionError is delivered on a session's error channel when a refresh fails
// for a reason other than a transient connectivity problem.
type SessionError struct {
	Code  authclient.ErrorCode
	Path  string
	Cause error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.Path, e.Code, e.Cause)
}

func (e *SessionError) Unwrap() error { return e.Cause }
