// internal/delivery/httpapi/middleware.go
package httpapi

import (
	"net/http"
	"time"

	"trading-bot-fleet/internal/core/domain/auth"
	"trading-bot-fleet/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	ctxOwnerKey = "fleet_owner_id"
	ctxActorKey = "fleet_actor_id"

	// HeaderActor - идентичность инициатора для журнала аудита
	HeaderActor = "X-Actor-ID"
)

// authenticate сопоставляет bearer-токен владельцу и кладёт его в контекст
func authenticate(a *auth.TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication is not configured"})
			return
		}
		owner, err := a.ResolveRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ctxOwnerKey, owner)
		c.Next()
	}
}

// requireActor требует заголовок X-Actor-ID для команд администратора
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(HeaderActor)
		if actor == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": HeaderActor + " header is required"})
			return
		}
		c.Set(ctxActorKey, actor)
		c.Next()
	}
}

func ownerFrom(c *gin.Context) string {
	return c.GetString(ctxOwnerKey)
}

func actorFrom(c *gin.Context) string {
	return c.GetString(ctxActorKey)
}

// requestLogger пишет в лог медленные и неуспешные запросы
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("❌ [HTTP] %s %s → %d за %v", c.Request.Method, c.FullPath(), status, elapsed)
		case status >= http.StatusBadRequest:
			logger.Warn("⚠️ [HTTP] %s %s → %d за %v", c.Request.Method, c.FullPath(), status, elapsed)
		default:
			logger.Debug("🌐 [HTTP] %s %s → %d за %v", c.Request.Method, c.FullPath(), status, elapsed)
		}
	}
}
