package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/feeds/:id", handler.GetFeed)
	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("API endpoints enabled without authentication (API_ACCESS_KEY not set)")
	}
	{
		api.GET("/feeds", handler.APIListFeeds)
		api.POST("/feeds", handler.APIAddFeed)
		api.POST("/feeds/refresh", handler.APIRefreshAllFeeds)
		api.PATCH("/feeds/:id", handler.APIUpdateFeed)
		api.DELETE("/feeds/:id", handler.APIRemoveFeed)
		api.POST("/feeds/:id/refresh", handler.APIRefreshFeed)

		api.GET("/items", handler.APIListItems)
		api.POST("/items/read", handler.APIMarkAllRead)
		api.POST("/items/:id/read", handler.APIMarkRead)
		api.DELETE("/items/:id/read", handler.APIMarkUnread)

		api.GET("/preferences", handler.APIGetPreferences)
		api.PATCH("/preferences", handler.APIUpdatePreferences)

		api.GET("/stream", handler.APIStream)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "RSS Reader",
			"version":     handler.version,
			"description": "RSS/Atom feed reader with deduplication and a filtered, sorted item view",
			"endpoints": map[string]string{
				"feed":        "/feeds/<id>",
				"health":      "/health",
				"feeds":       "/api/feeds",
				"items":       "/api/items",
				"preferences": "/api/preferences",
				"stream":      "/api/stream",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// NewHTTPServer wraps handler in an http.Server whose request contexts are
// cancelled as soon as Shutdown starts, so open event streams end instead of
// holding the shutdown until its deadline.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	baseCtx, cancel := context.WithCancel(context.Background())

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancel)

	return server
}

func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiAccessKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			return
		}

		c.Next()
	}
}
