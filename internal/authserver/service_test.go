package authserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/munirahkamaluddin/realm-dotnet/internal/authclient"
	"github.com/munirahkamaluddin/realm-dotnet/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "stub-secret-32-bytes-xxxxxxxxxxxxxx"

// fakeRepo wraps the memory repository and can fail on demand.
type fakeRepo struct {
	*MemoryRepository
	failGrant error
}

func (f *fakeRepo) CreateGrant(ctx context.Context, g *Grant) error {
	if f.failGrant != nil {
		return f.failGrant
	}
	return f.MemoryRepository.CreateGrant(ctx, g)
}

func newService() (*Service, *fakeRepo) {
	repo := &fakeRepo{MemoryRepository: NewMemoryRepository()}
	return NewService(repo, Options{Secret: testSecret, AccessTTL: time.Minute}), repo
}

func requireProblem(t *testing.T, err error, status int, code authclient.ErrorCode) {
	t.Helper()
	var p *Problem
	require.True(t, errors.As(err, &p), "expected *Problem, got %v", err)
	assert.Equal(t, status, p.Status)
	assert.Equal(t, code, p.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	g, err := svc.Register(ctx, "alice", "secret", false)
	require.NoError(t, err)
	require.NotEmpty(t, g.Token)
	require.NotEmpty(t, g.Identity)

	_, err = svc.Register(ctx, "alice", "other", false)
	requireProblem(t, err, 400, authclient.ExistingAccount)

	g2, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, g.Identity, g2.Identity)
	require.NotEqual(t, g.Token, g2.Token)

	_, err = svc.Login(ctx, "alice", "wrong")
	requireProblem(t, err, 401, authclient.InvalidCredentials)

	_, err = svc.Login(ctx, "bob", "secret")
	requireProblem(t, err, 401, authclient.UnknownAccount)
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	require.NoError(t, svc.EnsureAccount(ctx, "seed", "pw", true))
	require.NoError(t, svc.EnsureAccount(ctx, "seed", "pw", true))

	g, err := svc.Login(ctx, "seed", "pw")
	require.NoError(t, err)
	require.True(t, g.IsAdmin)
}

func TestRefresh_MintsScopedToken(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	g, err := svc.Register(ctx, "alice", "secret", false)
	require.NoError(t, err)

	at, err := svc.Refresh(ctx, g.Token, "/~/notes")
	require.NoError(t, err)
	require.Equal(t, "/"+g.Identity+"/notes", at.Path)
	require.True(t, at.Expires.After(time.Now()))

	claims, err := tokens.ParseAccessToken(testSecret, at.Token)
	require.NoError(t, err)
	require.Equal(t, g.Identity, claims.Subject)
	require.Equal(t, at.Path, claims.Path)
}

func TestRefresh_Failures(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "unknown", "/p")
	requireProblem(t, err, 401, authclient.ExpiredRefreshToken)

	_, err = svc.Refresh(ctx, "token", "")
	requireProblem(t, err, 400, authclient.MissingParameters)

	g, err := svc.Register(ctx, "alice", "secret", false)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, g.Token))
	_, err = svc.Refresh(ctx, g.Token, "/p")
	requireProblem(t, err, 401, authclient.ExpiredRefreshToken)
	require.NoError(t, svc.Revoke(ctx, g.Token))
	requireProblem(t, svc.Revoke(ctx, ""), 400, authclient.MissingParameters)
}

func TestLogin_RepositoryErrorPropagates(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()
	require.NoError(t, svc.EnsureAccount(ctx, "alice", "secret", false))

	repo.failGrant = errors.New("disk full")
	_, err := svc.Login(ctx, "alice", "secret")
	require.EqualError(t, err, "disk full")
	var p *Problem
	require.False(t, errors.As(err, &p))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/u1/notes", ResolvePath("/~/notes", "u1"))
	assert.Equal(t, "/u1", ResolvePath("/~", "u1"))
	assert.Equal(t, "/shared/notes", ResolvePath("/shared/notes", "u1"))
}

func TestLoginExternal_CreatesOnce(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	g1, err := svc.LoginExternal(ctx, "jwt", "ext-1")
	require.NoError(t, err)
	g2, err := svc.LoginExternal(ctx, "jwt", "ext-1")
	require.NoError(t, err)
	require.Equal(t, g1.Identity, g2.Identity)

	g3, err := svc.LoginExternal(ctx, "jwt", "ext-2")
	require.NoError(t, err)
	require.NotEqual(t, g1.Identity, g3.Identity)

	_, err = svc.LoginExternal(ctx, "jwt", "")
	requireProblem(t, err, 400, authclient.MissingParameters)

	// external accounts have no password
	_, err = svc.Login(ctx, "jwt:ext-1", "")
	requireProblem(t, err, 401, authclient.InvalidCredentials)
}
