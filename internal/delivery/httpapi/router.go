// internal/delivery/httpapi/router.go
package httpapi

import (
	"context"
	"net/http"
	"time"

	"trading-bot-fleet/internal/core/domain/auth"
	"trading-bot-fleet/internal/core/domain/fleet"
	"trading-bot-fleet/internal/core/domain/lifecycle"
	"trading-bot-fleet/internal/delivery/dashboard"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck - проверка одной зависимости для /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps - зависимости HTTP-интерфейса
type Deps struct {
	Engine   *lifecycle.Engine
	Fleet    *fleet.Service
	Sessions *dashboard.Manager
	Auth     *auth.TokenAuthenticator
	// Push - обработчик WebSocket push-канала
	Push    http.Handler
	Health  []HealthCheck
	Version string
	// Status - снимок состояния сервиса для /api/v1/status
	Status func() map[string]interface{}
}

// NewRouter собирает gin-роутер:
// /api/v1/admin - команды администратора, /api/v1/engine - хуки торгового движка,
// /api/v1/bots, /api/v1/fleet, /api/v1/sessions - опрос, /ws - push-канал
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	h := &handlers{deps: deps}

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.Push != nil {
		router.GET("/ws", gin.WrapH(deps.Push))
	}

	v1 := router.Group("/api/v1", authenticate(deps.Auth))
	{
		admin := v1.Group("/admin", requireActor())
		{
			admin.POST("/bots", h.createBot)
			admin.POST("/bots/:id/pause", h.pauseBot)
			admin.POST("/bots/:id/resume", h.resumeBot)
			admin.POST("/bots/:id/live", h.overrideLive)
			admin.POST("/bots/:id/exchange", h.changeExchange)
			admin.POST("/bots/:id/delete", h.deleteBot)
		}

		engine := v1.Group("/engine")
		{
			engine.POST("/bots/:id/failure", h.recordFailure)
			engine.GET("/bots/:id/tradable", h.tradable)
		}

		v1.GET("/bots", h.listBots)
		v1.GET("/bots/quarantined", h.listQuarantined)
		v1.GET("/bots/:id", h.getBot)
		v1.GET("/fleet/summary", h.summary)
		if deps.Status != nil {
			v1.GET("/status", h.status)
		}

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", h.openSession)
			sessions.GET("/:id", h.getSession)
			sessions.GET("/:id/events", h.pendingEvents)
			sessions.POST("/:id/ack", h.ackEvents)
			sessions.DELETE("/:id", h.closeSession)
		}
	}

	return router
}

// Server - HTTP-сервер с корректной остановкой
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// NewServer создаёт сервер на порту
func NewServer(addr string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Run обслуживает запросы до отмены ctx
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
