package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	ChatHandler *ChatHandler
	// Metrics serves /metrics; promhttp.Handler() when nil
	Metrics http.Handler
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics"
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	e.GET("/health", func(c echo.Context) error {
		return SuccessResponse(c, map[string]any{
			"status":    "healthy",
			"service":   "investly-api",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	metrics := config.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	e.GET("/metrics", echo.WrapHandler(metrics))

	api := e.Group("/api")
	{
		api.POST("/chat", config.ChatHandler.Chat)
		api.GET("/chat/history", config.ChatHandler.History)
		api.GET("/tools", config.ChatHandler.Tools)
	}
}
