package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bff-auth/internal/logger"
	"bff-auth/internal/oauth"
	"bff-auth/internal/session"
)

type Handler struct {
	engine        *oauth.Engine
	refreshAPIKey string
}

func NewHandler(engine *oauth.Engine, refreshAPIKey string) *Handler {
	return &Handler{
		engine:        engine,
		refreshAPIKey: refreshAPIKey,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/auth/login", h.login)
	r.GET("/auth/callback", h.callback)
	r.POST("/auth/logout", h.logout)
	r.GET("/auth/authenticated", h.authenticated)
	r.GET("/auth/user", h.user)
	r.POST("/auth/refresh-tokens", h.refreshTokens)
}

func (h *Handler) login(c *gin.Context) {
	state := generateState()
	redirect := c.Query("redirect")

	authURL, err := h.engine.BeginLogin(c.Writer, c.Request, state, redirect)
	if err != nil {
		logger.Error("failed to begin login", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to start login",
		})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	errParam := c.Query("error")
	errDesc := c.Query("error_description")

	// The provider reported a flow error; send the user back to login to
	// start fresh rather than surfacing provider internals.
	if errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"error": errParam,
			"desc":  errDesc,
		})
		c.Redirect(http.StatusFound, "/auth/login")
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		logger.Error("oidc callback missing code and error", nil)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	redirect, err := h.engine.Callback(c.Writer, c.Request, code, state)
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrAuthorizationFlow):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "authorization failed",
			})
		case errors.Is(err, oauth.ErrTokenExchange):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
		default:
			logger.Error("callback processing failed", map[string]any{
				"error": err.Error(),
			})
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "authentication failed",
			})
		}
		return
	}

	c.Redirect(http.StatusFound, redirect)
}

func (h *Handler) logout(c *gin.Context) {
	endSessionURL, err := h.engine.Logout(c.Writer, c.Request)
	if err != nil {
		// Session trouble must not keep a user logged in; clear the
		// cookie anyway and send them home.
		logger.Error("logout failed", map[string]any{
			"error": err.Error(),
		})
		session.ClearCookie(c.Writer, session.CookieOptions{})
		c.Redirect(http.StatusFound, "/")
		return
	}

	c.Redirect(http.StatusFound, endSessionURL)
}

func (h *Handler) authenticated(c *gin.Context) {
	ok, err := h.engine.IsAuthenticated(c.Writer, c.Request)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "session handling failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authenticated": ok})
}

func (h *Handler) user(c *gin.Context) {
	user, ok, err := h.engine.User(c.Request)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "session handling failed",
		})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "unauthorized",
		})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *Handler) refreshTokens(c *gin.Context) {
	if !h.authorizedForRefresh(c.Request) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "unauthorized",
		})
		return
	}

	result, err := h.engine.RefreshExpiring(c.Request.Context())
	if err != nil {
		logger.Error("bulk token refresh failed", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "token refresh failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"refreshed": result.Refreshed,
		"failed":    result.Failed,
		"total":     result.Total,
	})
}

// authorizedForRefresh checks the bearer API key protecting the batch
// trigger. An unset key disables the endpoint entirely.
func (h *Handler) authorizedForRefresh(r *http.Request) bool {
	if h.refreshAPIKey == "" {
		return false
	}

	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}

	provided := header[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.refreshAPIKey)) == 1
}
