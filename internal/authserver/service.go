package authserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/munirahkamaluddin/realm-dotnet/internal/authclient"
	"github.com/munirahkamaluddin/realm-dotnet/internal/tokens"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

const DefaultAccessTTL = 10 * time.Minute

var defaultAccess = []string{"download", "upload", "manage"}

// Problem is a domain failure rendered as application/problem+json.
type Problem struct {
	Status int
	Code   authclient.ErrorCode
	Title  string
}

func (p *Problem) Error() string { return fmt.Sprintf("%d %s: %s", p.Status, p.Code, p.Title) }

func problem(status int, code authclient.ErrorCode, title string) *Problem {
	return &Problem{Status: status, Code: code, Title: title}
}

// Options configures token minting. Refresh grants carry no lifetime: they
// stay valid until revoked.
type Options struct {
	Secret    string
	AccessTTL time.Duration
}

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
	opts Options
}

func NewService(r Repository, opts Options) *Service {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	return &Service{repo: r, opts: opts}
}

// Register creates a password account and issues its first refresh grant.
func (s *Service) Register(ctx context.Context, username, password string, isAdmin bool) (*Grant, error) {
	if username == "" || password == "" {
		return nil, problem(http.StatusBadRequest, authclient.MissingParameters, "username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acct := &Account{
		Username:     username,
		Identity:     uuid.NewString(),
		PasswordHash: hash,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, problem(http.StatusBadRequest, authclient.ExistingAccount, "The account cannot be registered as it exists already.")
		}
		return nil, err
	}
	logger.WithFields(logger.Fields{"username": username, "identity": acct.Identity}).Info("account registered")
	return s.issueGrant(ctx, acct)
}

// EnsureAccount registers username unless it exists already.
func (s *Service) EnsureAccount(ctx context.Context, username, password string, isAdmin bool) error {
	_, err := s.Register(ctx, username, password, isAdmin)
	var p *Problem
	if errors.As(err, &p) && p.Code == authclient.ExistingAccount {
		return nil
	}
	return err
}

// Login checks the password and issues a refresh grant.
func (s *Service) Login(ctx context.Context, username, password string) (*Grant, error) {
	if username == "" {
		return nil, problem(http.StatusBadRequest, authclient.MissingParameters, "username is required")
	}
	acct, err := s.repo.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, problem(http.StatusUnauthorized, authclient.UnknownAccount, "The account does not exist.")
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return nil, problem(http.StatusUnauthorized, authclient.InvalidCredentials, "The provided credentials are invalid.")
	}
	return s.issueGrant(ctx, acct)
}

// LoginExternal logs in the account bound to an identity verified by another
// provider, creating it on first use.
func (s *Service) LoginExternal(ctx context.Context, provider, subject string) (*Grant, error) {
	if subject == "" {
		return nil, problem(http.StatusBadRequest, authclient.MissingParameters, "subject is required")
	}
	username := provider + ":" + subject
	acct, err := s.repo.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = &Account{Username: username, Identity: uuid.NewString(), CreatedAt: time.Now().UTC()}
		if err := s.repo.CreateAccount(ctx, acct); err != nil && !errors.Is(err, ErrAccountExists) {
			return nil, err
		}
		// a concurrent first login may have won the race
		if acct, err = s.repo.GetAccount(ctx, username); err != nil {
			return nil, fmt.Errorf("load account %s: %w", username, err)
		}
		if acct == nil {
			return nil, fmt.Errorf("account %s vanished after create", username)
		}
		logger.WithFields(logger.Fields{"username": username, "identity": acct.Identity}).Info("external account created")
	}
	return s.issueGrant(ctx, acct)
}

func (s *Service) issueGrant(ctx context.Context, acct *Account) (*Grant, error) {
	token, err := tokens.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	g := &Grant{
		Token:     token,
		Identity:  acct.Identity,
		IsAdmin:   acct.IsAdmin,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateGrant(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Refresh exchanges a refresh token for an access token scoped to path. A
// leading "/~/" in path is expanded to the grant's identity.
func (s *Service) Refresh(ctx context.Context, refreshToken, path string) (*AccessGrant, error) {
	if refreshToken == "" || path == "" {
		return nil, problem(http.StatusBadRequest, authclient.MissingParameters, "data and path are required")
	}
	g, err := s.repo.GetGrant(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, problem(http.StatusUnauthorized, authclient.ExpiredRefreshToken, "The refresh token is invalid or has been revoked.")
	}
	resolved := ResolvePath(path, g.Identity)
	token, exp, err := tokens.GenerateAccessToken(s.opts.Secret, g.Identity, resolved, s.opts.AccessTTL)
	if err != nil {
		return nil, err
	}
	return &AccessGrant{Token: token, Identity: g.Identity, Path: resolved, Expires: exp, Access: defaultAccess}, nil
}

// Revoke deletes a refresh grant. Unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return problem(http.StatusBadRequest, authclient.MissingParameters, "token is required")
	}
	if err := s.repo.DeleteGrant(ctx, refreshToken); err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	logger.Debugf("refresh grant revoked")
	return nil
}

// ResolvePath expands the "~" user placeholder in a resource path.
func ResolvePath(path, identity string) string {
	if path == "/~" {
		return "/" + identity
	}
	if rest, ok := strings.CutPrefix(path, "/~/"); ok {
		return "/" + identity + "/" + rest
	}
	return path
}
