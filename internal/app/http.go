package app

import (
	"context"
	"net/http"
	"time"

	"bff-auth/internal/auth"
	"bff-auth/internal/auth/handler"
	"bff-auth/internal/config"
	"bff-auth/internal/middleware"
	"bff-auth/internal/oauth"
	"bff-auth/internal/session"

	"github.com/gin-gonic/gin"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	var store session.Store
	switch cfg.SessionStorage {
	case config.StorageRedis:
		store = session.NewRedisStore(infra.Redis.Client)
	case config.StorageCookie:
		store = session.NewCookieStore()
	default:
		store = session.NewMemoryStore()
	}

	sessions := session.NewManager(store, cfg.SessionSecrets, cfg.SessionTTL, session.CookieOptions{
		Secure:   cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	})

	httpClient := &http.Client{Timeout: 10 * time.Second}
	discovery := oauth.NewDiscovery(cfg.Issuer, httpClient)

	client := oauth.NewClient(oauth.ClientConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		CallbackURL:  cfg.CallbackURL,
		Scope:        cfg.Scope,
		Audience:     cfg.Audience,
	}, discovery, httpClient)

	verifier, err := oauth.NewOIDCVerifier(ctx, cfg.Issuer, cfg.ClientID)
	if err != nil {
		return nil, nil, err
	}

	var users auth.UserHandler
	if infra.DB != nil {
		users = auth.NewPostgresUserHandler(cfg.Issuer, infra.DB)
	}

	engine := oauth.NewEngine(sessions, client, users, verifier, oauth.EngineConfig{
		Margin:            cfg.RefreshMargin,
		LogoutRedirectURL: cfg.LogoutRedirectURL,
	})

	authHandler := handler.NewHandler(engine, cfg.TokenRefreshAPIKey)

	policy := middleware.NewPolicy(cfg.UnprotectedRoutes, cfg.WhitelistFileTypes)
	authMiddleware := middleware.NewAuthMiddleware(engine, policy, "/auth/login")

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))

	api.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, infra.close, nil
}
