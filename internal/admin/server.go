// Package admin implements the Admin Surface & Auth Validator: the echo
// request/response API for health, principal validation, stats, signal
// history, and whitelist/client management (§4.7, §6).
package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"signalrelay/internal/metrics"
)

// Config bundles a Server's dependencies.
type Config struct {
	Clients  ClientStore
	Channels ChannelStore
	Messages MessageStore
	History  HistoryLoader
	DB       Pinger

	MasterKey      string
	ServiceName    string
	RateLimitRPS   float64
	RateLimitBurst int

	Logger zerolog.Logger
}

// Server owns the echo instance and every handler dependency.
type Server struct {
	echo *echo.Echo
	cfg  Config
}

// New builds a Server and registers every §6 route.
func New(cfg Config) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "signalrelay"
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{echo: e, cfg: cfg}

	limiter := newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	e.Use(rateLimitMiddleware(limiter))

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// /api/auth/validate resolves its own principal instead of running
	// behind authMiddleware: an invalid or missing key is itself the
	// result being reported ({"valid": false, ...}), not a request to
	// reject outright (§4.7, §6).
	e.GET("/api/auth/validate", s.handleValidate)

	auth := authMiddleware(cfg.MasterKey, cfg.Clients)
	api := e.Group("/api", auth)
	api.GET("/stats", s.handleStats)
	api.GET("/signals", s.handleSignals)

	adminGroup := e.Group("/admin", auth, requireAdmin)
	adminGroup.POST("/clients", s.handleCreateClient)
	adminGroup.GET("/clients", s.handleListClients)
	adminGroup.DELETE("/clients/:id", s.handleDeleteClient)
	adminGroup.POST("/channels", s.handleUpsertChannel)
	adminGroup.GET("/channels", s.handleListChannels)
	adminGroup.GET("/channels/:sourceId", s.handleGetChannel)
	adminGroup.DELETE("/channels/:sourceId", s.handleDeleteChannel)
	adminGroup.PATCH("/channels/:sourceId/toggle", s.handleToggleChannel)
	adminGroup.GET("/stats", s.handleStats)
	adminGroup.GET("/signals", s.handleSignals)
	adminGroup.POST("/history/load", s.handleLoadHistory)
	adminGroup.DELETE("/history/:sourceId", s.handleDeleteHistory)

	return s
}

// Handler returns the underlying http.Handler for use with an http.Server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// jsonErrorHandler turns echo's default HTML error pages into the {"error":
// "..."} shape every other handler in this package already returns,
// including echo's own 404 for unmatched routes (§6: 404 no route).
func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}
	_ = c.JSON(code, errorBody(msg))
}
