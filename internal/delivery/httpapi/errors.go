// internal/delivery/httpapi/errors.go
package httpapi

import (
	"errors"
	"net/http"

	"trading-bot-fleet/internal/types"

	"github.com/gin-gonic/gin"
)

// writeError переводит доменную ошибку в HTTP-статус
func writeError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}

	var invalid *types.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		body["code"] = "invalid_transition"
		body["from"] = invalid.From
		body["to"] = invalid.To
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrSessionNotFound):
		body["code"] = "not_found"
		c.JSON(http.StatusNotFound, body)
	case errors.Is(err, types.ErrVersionConflict):
		body["code"] = "version_conflict"
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, types.ErrForbidden):
		body["code"] = "forbidden"
		c.JSON(http.StatusForbidden, body)
	case errors.Is(err, types.ErrPushExhausted):
		body["code"] = "push_exhausted"
		c.JSON(http.StatusConflict, body)
	default:
		body["code"] = "internal"
		c.JSON(http.StatusInternalServerError, body)
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
}
