package sessions

import (
	"errors"
	"fmt"
	"testing"

	"github.com/munirahkamaluddin/realm-dotnet/internal/authclient"
	"github.com/munirahkamaluddin/realm-dotnet/internal/users"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OpenLookupClose(t *testing.T) {
	reg := NewRegistry()
	u := users.New("u1", "rt", "http://auth")
	b := NewMemoryBinding()

	s, err := reg.Open(u, "realm://sync/~/notes", "/u1/notes", b)
	require.NoError(t, err)
	require.Equal(t, "/u1/notes", s.Path())
	require.Same(t, u, s.User())

	got, ok := reg.Lookup("/u1/notes")
	require.True(t, ok)
	require.Same(t, s, got)

	_, err = reg.Open(u, "realm://sync/~/notes", "/u1/notes", b)
	require.True(t, errors.Is(err, ErrSessionOpen))

	require.True(t, reg.Close("/u1/notes"))
	require.False(t, reg.Close("/u1/notes"))
	_, ok = reg.Lookup("/u1/notes")
	require.False(t, ok)
	require.True(t, s.Closed())
}

func TestRegistry_ForUser(t *testing.T) {
	reg := NewRegistry()
	alice := users.New("alice", "rt", "http://auth")
	bob := users.New("bob", "rt", "http://auth")
	for _, p := range []string{"/alice/b", "/alice/a"} {
		_, err := reg.Open(alice, "", p, NewMemoryBinding())
		require.NoError(t, err)
	}
	_, err := reg.Open(bob, "", "/bob/a", NewMemoryBinding())
	require.NoError(t, err)

	got := reg.ForUser("alice")
	require.Len(t, got, 2)
	require.Equal(t, "/alice/a", got[0].Path())
	require.Len(t, reg.All(), 3)
}

func TestHandle_InstallAccessToken(t *testing.T) {
	reg := NewRegistry()
	b := NewMemoryBinding()
	s, err := reg.Open(users.New("u1", "rt", "http://auth"), "", "/u1/notes", b)
	require.NoError(t, err)

	h := s.Acquire()
	require.Equal(t, 1, s.OpenHandles())
	require.NoError(t, h.InstallAccessToken("at-1", "/u1/notes"))
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.Equal(t, 0, s.OpenHandles())

	tok, path := b.Token()
	require.Equal(t, "at-1", tok)
	require.Equal(t, "/u1/notes", path)
	at, p := s.LastRefresh()
	require.False(t, at.IsZero())
	require.Equal(t, "/u1/notes", p)

	b.FailWith(errors.New("engine gone"))
	h2 := s.Acquire()
	defer h2.Close()
	require.EqualError(t, h2.InstallAccessToken("at-2", "/u1/notes"), "engine gone")

	reg.Close("/u1/notes")
	b.FailWith(nil)
	require.ErrorIs(t, h2.InstallAccessToken("at-3", "/u1/notes"), ErrSessionClosed)
	require.Equal(t, 1, b.Applied())
}

func TestSession_Rebind(t *testing.T) {
	reg := NewRegistry()
	first := users.New("u1", "rt-1", "http://auth")
	s, err := reg.Open(first, "", "/p", NewMemoryBinding())
	require.NoError(t, err)

	require.False(t, s.Rebind(users.New("u2", "rt", "http://auth")))
	require.False(t, s.Rebind(nil))
	require.Same(t, first, s.User())

	second := users.New("u1", "rt-2", "http://auth")
	require.True(t, s.Rebind(second))
	require.True(t, s.Rebind(second))
	require.Same(t, second, s.User())
	require.Len(t, reg.ForUser("u1"), 1)
}

func TestRaiseError_NonBlocking(t *testing.T) {
	reg := NewRegistry()
	s, err := reg.Open(users.New("u1", "rt", "http://auth"), "", "/p", NewMemoryBinding())
	require.NoError(t, err)

	for i := 0; i < errorBuffer+5; i++ {
		s.RaiseError(fmt.Errorf("err %d", i))
	}
	require.Len(t, s.Errors(), errorBuffer)

	first := <-s.Errors()
	require.EqualError(t, first, "err 0")
}

func TestSessionError_Unwrap(t *testing.T) {
	cause := &authclient.AuthenticationError{Code: authclient.InvalidCredentials, StatusCode: 401}
	err := &SessionError{Code: authclient.BadUserAuthentication, Path: "/p", Cause: cause}

	var authErr *authclient.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	require.Contains(t, err.Error(), "BadUserAuthentication")
}
