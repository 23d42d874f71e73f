// Package server assembles the HTTP surface of the battle service: REST
// endpoints, websocket upgrades and the middleware chain.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	tracemw "bitbattle/internal/common/http/middleware"
	matchcontroller "bitbattle/internal/matchmaking/controller"
	problemcontroller "bitbattle/internal/problem/controller"
	"bitbattle/internal/room"
	"bitbattle/internal/server/middleware"
	submitcontroller "bitbattle/internal/submission/controller"
	usercontroller "bitbattle/internal/user/controller"
	userservice "bitbattle/internal/user/service"
	"bitbattle/pkg/utils/logger"
)

// Per-IP budgets, all over a one second window. Submissions are the most
// expensive thing a client can trigger, so they get the smallest budget.
var (
	generalPolicy = middleware.RatePolicy{Name: "general", PerIP: 100}
	authPolicy    = middleware.RatePolicy{Name: "auth", PerIP: 5}
	submitPolicy  = middleware.RatePolicy{Name: "submit", PerIP: 2, PerUser: 2}
	matchPolicy   = middleware.RatePolicy{Name: "matchmaking", PerIP: 10, PerUser: 10}
)

// Config carries everything the router mounts.
type Config struct {
	Auth        *usercontroller.AuthController
	Users       *usercontroller.UserController
	Problems    *problemcontroller.ProblemController
	Submit      *submitcontroller.SubmitController
	Matchmaking *matchcontroller.MatchmakingController
	Rooms       *room.Handler

	TokenManager *userservice.TokenManager
	Limiter      *middleware.Limiter
	CORS         middleware.CORSConfig

	// Ready probes the service's backends for the readiness endpoint.
	Ready func(ctx context.Context) error
}

// NewRouter builds the gin engine with all routes and middleware mounted.
func NewRouter(cfg Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	// User identity comes from access tokens only, never from headers.
	router.Use(tracemw.TraceContextMiddlewareWithConfig(tracemw.TraceContextConfig{}))
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/readyz", readiness(cfg.Ready))

	requireAuth := middleware.RequireAuth(cfg.TokenManager)
	optionalAuth := middleware.OptionalAuth(cfg.TokenManager)
	general := middleware.RateLimit(cfg.Limiter, generalPolicy)

	// Credential endpoints share the tightest IP budget.
	auth := router.Group("/auth", middleware.RateLimit(cfg.Limiter, authPolicy))
	{
		auth.POST("/register", cfg.Auth.Register)
		auth.POST("/login", cfg.Auth.Login)
		auth.POST("/refresh", cfg.Auth.Refresh)
		auth.POST("/logout", cfg.Auth.Logout)
	}
	router.GET("/auth/me", general, requireAuth, cfg.Auth.Me)

	reads := router.Group("", general)
	{
		reads.GET("/users/:username", cfg.Users.GetProfile)
		reads.GET("/users/:username/history", cfg.Users.GetHistory)
		reads.GET("/leaderboard", cfg.Users.Leaderboard)
		reads.GET("/problems", cfg.Problems.List)
		reads.GET("/problems/:id", cfg.Problems.Get)
		reads.GET("/languages", cfg.Submit.Languages)
		reads.GET("/rooms/live", cfg.Rooms.LiveRooms)
	}

	router.POST("/submit", optionalAuth, middleware.RateLimit(cfg.Limiter, submitPolicy), cfg.Submit.Submit)

	match := router.Group("/matchmaking", optionalAuth, middleware.RateLimit(cfg.Limiter, matchPolicy))
	{
		match.POST("/join", cfg.Matchmaking.Join)
		match.POST("/leave", cfg.Matchmaking.Leave)
		match.GET("/status", cfg.Matchmaking.Status)
	}

	// Sockets authenticate via the token query parameter since browsers
	// cannot set headers on WebSocket upgrades.
	router.GET("/ws", optionalAuth, cfg.Rooms.ServeBattle)
	router.GET("/ws/spectate", cfg.Rooms.ServeSpectate)

	return router
}

func readiness(probe func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if probe != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := probe(ctx); err != nil {
				c.String(http.StatusServiceUnavailable, "not ready: %v", err)
				return
			}
		}
		c.String(http.StatusOK, "ok")
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
