package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON (doc)
func RegisterSwagger(rg *gin.Engine, title, doc string) {
	page := fmt.Sprintf(swaggerHTML, title)
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, page)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(doc))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>%s - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// StubAPIDoc describes the auth stub.
const StubAPIDoc = `{
  "openapi": "3.0.0",
  "info": { "title": "realmsync-authstub", "version": "v0.1.0" },
  "paths": {
    "/auth": {
      "post": {
        "summary": "Log in (provider password or jwt) or exchange a refresh token for an access token (provider realm)",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"provider":{"type":"string"},"data":{"type":"string"},"user_info":{"type":"object"},"path":{"type":"string"},"app_id":{"type":"string"}}}}}},
        "responses": {
          "200": { "description": "refresh_token or access_token" },
          "400": { "description": "problem+json: 601, 602, 613" },
          "401": { "description": "problem+json: 611, 612, 615" }
        }
      }
    },
    "/auth/revoke": {
      "post": {
        "summary": "Revoke a refresh token",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"token":{"type":"string"}}}}}},
        "responses": { "200": { "description": "revoked" }, "400": { "description": "problem+json: 601, 602" } }
      }
    },
    "/api/v1/me": {
      "get": { "summary": "Claims of the bearer access token", "responses": { "200": { "description": "identity and claims" }, "401": { "description": "missing or invalid token" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } }
  }
}`

// AgentAPIDoc describes the sync agent status API.
const AgentAPIDoc = `{
  "openapi": "3.0.0",
  "info": { "title": "realmsync-agent", "version": "v0.1.0" },
  "paths": {
    "/api/v1/sessions": { "get": { "summary": "Open sessions and their refresh state", "responses": { "200": { "description": "sessions" } } } },
    "/api/v1/users": { "get": { "summary": "Logged-in users", "responses": { "200": { "description": "users" } } } },
    "/api/v1/refreshes": { "get": { "summary": "Pending token refreshes", "responses": { "200": { "description": "refreshes" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
