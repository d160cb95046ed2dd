package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/munirahkamaluddin/realm-dotnet/internal/authclient"
	"github.com/munirahkamaluddin/realm-dotnet/internal/authserver"
	"github.com/munirahkamaluddin/realm-dotnet/internal/credentials"
	"github.com/munirahkamaluddin/realm-dotnet/internal/oidc"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/middleware"
)

// AuthRequest is the body accepted by POST /auth.
type AuthRequest struct {
	Provider string         `json:"provider"`
	Data     string         `json:"data"`
	UserInfo map[string]any `json:"user_info"`
	Path     string         `json:"path"`
	AppID    string         `json:"app_id"`
}

// AuthHandler serves the stub of the sync service auth endpoint.
type AuthHandler struct {
	svc   *authserver.Service
	idVer middleware.Verifier
}

// NewAuthHandler builds the handler. idVer verifies ID tokens for the "jwt"
// provider; nil disables that provider.
func NewAuthHandler(svc *authserver.Service, idVer middleware.Verifier) *AuthHandler {
	return &AuthHandler{svc: svc, idVer: idVer}
}

// RevokeRequest is the body accepted by POST /auth/revoke.
type RevokeRequest struct {
	Token string `json:"token"`
}

// Register routes: POST /auth, POST /auth/revoke
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth", h.Authenticate)
	rg.POST("/auth/revoke", h.Revoke)
}

// Revoke invalidates a refresh token. Holding the token is the proof of
// ownership; revoking an unknown token succeeds.
func (h *AuthHandler) Revoke(c *gin.Context) {
	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeProblem(c, &authserver.Problem{Status: http.StatusBadRequest, Code: authclient.InvalidParameters, Title: "invalid request body"})
		return
	}
	if err := h.svc.Revoke(c.Request.Context(), req.Token); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Authenticate dispatches on the provider: "password" logs in or registers,
// "jwt" logs in with a verified ID token, "realm" exchanges a refresh token
// for an access token.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeProblem(c, &authserver.Problem{Status: http.StatusBadRequest, Code: authclient.InvalidParameters, Title: "invalid request body"})
		return
	}
	switch req.Provider {
	case credentials.ProviderUsernamePassword:
		h.password(c, req)
	case credentials.ProviderJWT:
		if h.idVer == nil {
			writeProblem(c, &authserver.Problem{Status: http.StatusBadRequest, Code: authclient.InvalidParameters, Title: "provider jwt is not configured"})
			return
		}
		h.idToken(c, req)
	case credentials.ProviderRealm:
		h.refresh(c, req)
	default:
		writeProblem(c, &authserver.Problem{Status: http.StatusBadRequest, Code: authclient.InvalidParameters, Title: "unsupported provider " + req.Provider})
	}
}

func (h *AuthHandler) password(c *gin.Context, req AuthRequest) {
	password, _ := req.UserInfo["password"].(string)
	register, _ := req.UserInfo["register"].(bool)

	var (
		g   *authserver.Grant
		err error
	)
	if register {
		g, err = h.svc.Register(c.Request.Context(), req.Data, password, false)
	} else {
		g, err = h.svc.Login(c.Request.Context(), req.Data, password)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	writeRefreshToken(c, g)
}

func (h *AuthHandler) idToken(c *gin.Context, req AuthRequest) {
	sub, err := oidc.Subject(c.Request.Context(), h.idVer, req.Data)
	if err != nil {
		logger.Debugf("id token rejected: %v", err)
		writeProblem(c, &authserver.Problem{Status: http.StatusUnauthorized, Code: authclient.InvalidCredentials, Title: "The provided credentials are invalid."})
		return
	}
	g, err := h.svc.LoginExternal(c.Request.Context(), req.Provider, sub)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeRefreshToken(c, g)
}

func writeRefreshToken(c *gin.Context, g *authserver.Grant) {
	c.JSON(http.StatusOK, gin.H{"refresh_token": gin.H{
		"token": g.Token,
		"token_data": gin.H{
			"identity": g.Identity,
			"is_admin": g.IsAdmin,
		},
	}})
}

func (h *AuthHandler) refresh(c *gin.Context, req AuthRequest) {
	at, err := h.svc.Refresh(c.Request.Context(), req.Data, req.Path)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": gin.H{
		"token": at.Token,
		"token_data": gin.H{
			"identity": at.Identity,
			"path":     at.Path,
			"expires":  at.Expires.Unix(),
			"access":   at.Access,
		},
	}})
}

func (h *AuthHandler) fail(c *gin.Context, err error) {
	var p *authserver.Problem
	if errors.As(err, &p) {
		writeProblem(c, p)
		return
	}
	logger.Errorf("auth request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func writeProblem(c *gin.Context, p *authserver.Problem) {
	b, _ := json.Marshal(gin.H{
		"type":   "https://realm.io/docs/object-server/problems/" + p.Code.String(),
		"title":  p.Title,
		"status": p.Status,
		"code":   int(p.Code),
	})
	c.Data(p.Status, "application/problem+json", b)
}

// Me returns the claims of the bearer access token.
func Me(c *gin.Context) {
	claims, _ := c.Get(middleware.ClaimsKey)
	c.JSON(http.StatusOK, gin.H{"identity": c.GetString(middleware.SubjectKey), "claims": claims})
}
