// Package refresh logs users in against the sync service and keeps the access
// tokens of their open sessions fresh.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/munirahkamaluddin/realm-dotnet/internal/authclient"
	"github.com/munirahkamaluddin/realm-dotnet/internal/credentials"
	"github.com/munirahkamaluddin/realm-dotnet/internal/sessions"
	"github.com/munirahkamaluddin/realm-dotnet/internal/users"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/metrics"
)

// DefaultRetryDelay is the fixed wait before retrying after a connectivity failure.
const DefaultRetryDelay = 30 * time.Second

var ErrMalformedResponse = errors.New("malformed auth response")

type Options struct {
	Timeout     time.Duration
	RetryDelay  time.Duration
	RefreshLead time.Duration
	Clock       Clock
}

// Service owns the login flow, the access token refresh and the scheduler
// that drives it.
type Service struct {
	client    *authclient.Client
	users     *users.Registry
	sessions  *sessions.Registry
	scheduler *Scheduler
	opts      Options
}

func NewService(client *authclient.Client, ur *users.Registry, sr *sessions.Registry, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = authclient.DefaultTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	s := &Service{client: client, users: ur, sessions: sr, opts: opts}
	s.scheduler = NewScheduler(opts.Clock, ur, sr, s, opts.RefreshLead)
	return s
}

func (s *Service) Scheduler() *Scheduler { return s.scheduler }

// Login exchanges creds for a refresh token at serverURI.
func (s *Service) Login(ctx context.Context, creds credentials.Credentials, serverURI string) (string, string, error) {
	res := s.client.Call(ctx, serverURI, creds.Body(), s.opts.Timeout)
	metrics.AuthRequests.WithLabelValues("login", res.Outcome.String()).Inc()
	if res.Err != nil {
		return "", "", res.Err
	}
	identity, ok := res.Response.String("refresh_token", "token_data", "identity")
	if !ok {
		return "", "", fmt.Errorf("login: refresh_token.token_data.identity: %w", ErrMalformedResponse)
	}
	token, ok := res.Response.String("refresh_token", "token")
	if !ok {
		return "", "", fmt.Errorf("login: refresh_token.token: %w", ErrMalformedResponse)
	}
	return identity, token, nil
}

// LogIn performs Login and registers the resulting user.
func (s *Service) LogIn(ctx context.Context, creds credentials.Credentials, serverURI string) (*users.User, error) {
	identity, token, err := s.Login(ctx, creds, serverURI)
	if err != nil {
		return nil, err
	}
	u := users.New(identity, token, serverURI)
	if err := s.users.Add(ctx, u); err != nil {
		return nil, err
	}
	rebound := 0
	for _, sess := range s.sessions.ForUser(identity) {
		if sess.Rebind(u) {
			rebound++
		}
	}
	logger.WithFields(logger.Fields{"user": identity, "server": serverURI, "provider": creds.Provider(), "sessions": rebound}).Info("user logged in")
	return u, nil
}

// LogOut forgets the user, cancels the pending refreshes of its sessions and
// revokes its refresh token on the server. Refreshes that already fired find
// no user and do nothing. A failed revocation is logged, not returned.
func (s *Service) LogOut(ctx context.Context, identity string) error {
	n := s.scheduler.CancelUser(identity)
	u, known := s.users.Lookup(identity)
	if err := s.users.Remove(ctx, identity); err != nil {
		return fmt.Errorf("log out %s: %w", identity, err)
	}
	log := logger.WithFields(logger.Fields{"user": identity, "cancelled": n})
	if known {
		err := s.client.Revoke(ctx, u.ServerURI(), u.RefreshToken(), s.opts.Timeout)
		metrics.AuthRequests.WithLabelValues("revoke", authclient.Classify(err).String()).Inc()
		if err != nil {
			log.Warnf("refresh token revocation failed: %v", err)
		}
	}
	log.Info("user logged out")
	return nil
}

// OpenSession registers a session for path and performs its first refresh.
// Failures of that refresh are delivered on the session error channel.
func (s *Service) OpenSession(ctx context.Context, u *users.User, serverURL, path string, b sessions.Binding) (*sessions.Session, error) {
	sess, err := s.sessions.Open(u, serverURL, path, b)
	if err != nil {
		return nil, err
	}
	s.RefreshAccessToken(ctx, sess, true)
	return sess, nil
}

// CloseSession cancels the pending refresh of path and closes its session.
func (s *Service) CloseSession(path string) bool {
	s.scheduler.Cancel(path)
	return s.sessions.Close(path)
}

type refreshRequest struct {
	Data     string `json:"data"`
	Path     string `json:"path"`
	Provider string `json:"provider"`
	AppID    string `json:"app_id"`
}

// RefreshAccessToken obtains an access token for the session's path and
// installs it. On success the next refresh is scheduled from the token
// expiry; on a connectivity failure a retry is scheduled after the fixed
// retry delay. Any other failure is raised on the session when reportErrors
// is set and dropped otherwise.
func (s *Service) RefreshAccessToken(ctx context.Context, sess *sessions.Session, reportErrors bool) authclient.Outcome {
	u := sess.User()
	uh := u.Acquire()
	defer uh.Close()

	log := logger.WithFields(logger.Fields{"user": u.Identity(), "path": sess.Path()})
	body := refreshRequest{
		Data:     u.RefreshToken(),
		Path:     sess.Path(),
		Provider: credentials.ProviderRealm,
	}
	res := s.client.Call(ctx, u.ServerURI(), body, s.opts.Timeout)
	metrics.AuthRequests.WithLabelValues("refresh", res.Outcome.String()).Inc()

	switch res.Outcome {
	case authclient.OutcomeOK:
		if err := s.install(sess, res.Response); err != nil {
			s.fail(sess, err, reportErrors)
			return authclient.OutcomeFatal
		}
		return authclient.OutcomeOK
	case authclient.OutcomeTransient:
		log.Debugf("refresh failed transiently, retrying in %s: %v", s.opts.RetryDelay, res.Err)
		s.scheduler.RetryIn(u.Identity(), sess.Path(), s.opts.RetryDelay)
		return authclient.OutcomeTransient
	default:
		s.fail(sess, res.Err, reportErrors)
		return authclient.OutcomeFatal
	}
}

func (s *Service) install(sess *sessions.Session, resp authclient.Response) error {
	token, ok := resp.String("access_token", "token")
	if !ok {
		return fmt.Errorf("access_token.token: %w", ErrMalformedResponse)
	}
	serverPath, ok := resp.String("access_token", "token_data", "path")
	if !ok {
		return fmt.Errorf("access_token.token_data.path: %w", ErrMalformedResponse)
	}
	expires, ok := resp.Int64("access_token", "token_data", "expires")
	if !ok {
		return fmt.Errorf("access_token.token_data.expires: %w", ErrMalformedResponse)
	}

	sh := sess.Acquire()
	defer sh.Close()
	if err := sh.InstallAccessToken(token, serverPath); err != nil {
		return fmt.Errorf("install access token: %w", err)
	}
	s.scheduler.Schedule(sess.User().Identity(), sess.Path(), time.Unix(expires, 0))
	return nil
}

func (s *Service) fail(sess *sessions.Session, err error, reportErrors bool) {
	if !reportErrors {
		logger.WithFields(logger.Fields{"path": sess.Path(), "error": err}).Debug("refresh failed")
		return
	}
	sess.RaiseError(&sessions.SessionError{
		Code:  authclient.BadUserAuthentication,
		Path:  sess.Path(),
		Cause: err,
	})
}
