// internal/delivery/httpapi/handlers.go
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"trading-bot-fleet/internal/core/domain/lifecycle"
	"trading-bot-fleet/internal/delivery/dashboard"
	"trading-bot-fleet/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type handlers struct {
	deps Deps
}

// operationResponse - ответ на команду жизненного цикла.
// already_in_state=true - успешный no-op, бот уже в целевом состоянии.
type operationResponse struct {
	lifecycle.Result
	Message string `json:"message"`
}

func respondResult(c *gin.Context, res lifecycle.Result) {
	msg := "transition accepted"
	if res.AlreadyInState {
		msg = "already in target state"
	}
	c.JSON(http.StatusOK, operationResponse{Result: res, Message: msg})
}

// ownedBot загружает бота и проверяет, что он принадлежит вызывающему
func (h *handlers) ownedBot(c *gin.Context) (types.Bot, bool) {
	bot, err := h.deps.Engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return types.Bot{}, false
	}
	if bot.OwnerID != ownerFrom(c) {
		writeError(c, types.ErrForbidden)
		return types.Bot{}, false
	}
	return bot, true
}

// ============================================
// Администратор
// ============================================

type createBotRequest struct {
	ID       string  `json:"id"`
	Name     string  `json:"name" binding:"required"`
	Exchange string  `json:"exchange" binding:"required"`
	Capital  float64 `json:"capital" binding:"gte=0"`
	Live     bool    `json:"live"`
}

func (h *handlers) createBot(c *gin.Context) {
	var req createBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	bot, err := h.deps.Engine.CreateBot(c.Request.Context(), lifecycle.CreateRequest{
		ID:       req.ID,
		OwnerID:  ownerFrom(c),
		Name:     req.Name,
		Exchange: req.Exchange,
		Capital:  req.Capital,
		Live:     req.Live,
		Actor:    actorFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bot": bot})
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

func (h *handlers) pauseBot(c *gin.Context) {
	var req pauseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "user_pause"
	}
	if _, ok := h.ownedBot(c); !ok {
		return
	}
	res, err := h.deps.Engine.RequestPause(c.Request.Context(), c.Param("id"), req.Reason, actorFrom(c))
	h.finish(c, res, err)
}

func (h *handlers) resumeBot(c *gin.Context) {
	if _, ok := h.ownedBot(c); !ok {
		return
	}
	res, err := h.deps.Engine.RequestResume(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.finish(c, res, err)
}

func (h *handlers) overrideLive(c *gin.Context) {
	if _, ok := h.ownedBot(c); !ok {
		return
	}
	res, err := h.deps.Engine.AdminOverrideLive(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.finish(c, res, err)
}

type exchangeRequest struct {
	Exchange string `json:"exchange" binding:"required"`
}

func (h *handlers) changeExchange(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, ok := h.ownedBot(c); !ok {
		return
	}
	res, err := h.deps.Engine.ChangeExchange(c.Request.Context(), c.Param("id"), req.Exchange, actorFrom(c))
	h.finish(c, res, err)
}

func (h *handlers) deleteBot(c *gin.Context) {
	if _, ok := h.ownedBot(c); !ok {
		return
	}
	res, err := h.deps.Engine.RequestDelete(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.finish(c, res, err)
}

func (h *handlers) finish(c *gin.Context, res lifecycle.Result, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	respondResult(c, res)
}

// ============================================
// Торговый движок
// ============================================

type failureRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *handlers) recordFailure(c *gin.Context) {
	var req failureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, ok := h.ownedBot(c); !ok {
		return
	}
	res, err := h.deps.Engine.RecordFailure(c.Request.Context(), c.Param("id"), req.Reason)
	h.finish(c, res, err)
}

func (h *handlers) tradable(c *gin.Context) {
	bot, ok := h.ownedBot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bot_id":   bot.ID,
		"status":   bot.Status,
		"tradable": bot.CanTrade(),
	})
}

// ============================================
// Опрос (снимки)
// ============================================

func (h *handlers) listBots(c *gin.Context) {
	includeDeleted, _ := strconv.ParseBool(c.DefaultQuery("include_deleted", "false"))
	bots, err := h.deps.Fleet.Snapshot(c.Request.Context(), ownerFrom(c), includeDeleted)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bots": bots, "count": len(bots)})
}

func (h *handlers) listQuarantined(c *gin.Context) {
	views, err := h.deps.Fleet.ListQuarantined(c.Request.Context(), ownerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bots": views, "count": len(views)})
}

func (h *handlers) getBot(c *gin.Context) {
	bot, ok := h.ownedBot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"bot": bot})
}

func (h *handlers) summary(c *gin.Context) {
	summary, err := h.deps.Fleet.Summary(c.Request.Context(), ownerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ============================================
// Сессии в режиме polling
// ============================================

func (h *handlers) openSession(c *gin.Context) {
	info, err := h.deps.Sessions.Connect(c.Request.Context(), ownerFrom(c), dashboard.ModePolling)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *handlers) authorizedSession(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := h.deps.Sessions.Authorize(id, ownerFrom(c)); err != nil {
		writeError(c, err)
		return "", false
	}
	return id, true
}

func (h *handlers) getSession(c *gin.Context) {
	id, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	info, err := h.deps.Sessions.Session(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type pendingResponse struct {
	Events []dashboard.PushPayload `json:"events"`
	Missed uint64                  `json:"missed"`
	Latest uint64                  `json:"latest"`
	// Overflow - причина, по которой клиенту нужен свежий снимок
	Overflow string `json:"overflow,omitempty"`
}

func (h *handlers) pendingEvents(c *gin.Context) {
	id, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	delivery, err := h.deps.Sessions.Pending(id, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := pendingResponse{
		Events: make([]dashboard.PushPayload, 0, len(delivery.Events)),
		Missed: delivery.Missed,
		Latest: delivery.Latest,
	}
	if overflow := delivery.Overflow(); overflow != nil {
		resp.Overflow = overflow.Error()
	}
	for _, ev := range delivery.Events {
		resp.Events = append(resp.Events, dashboard.NewPushPayload(ev))
	}
	c.JSON(http.StatusOK, resp)
}

type ackRequest struct {
	EventType types.EventType `json:"event_type" binding:"required"`
	Seq       uint64          `json:"seq" binding:"required"`
}

func (h *handlers) ackEvents(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	if err := h.deps.Sessions.Ack(c.Request.Context(), id, req.EventType, req.Seq); err != nil {
		if errors.Is(err, types.ErrSessionNotFound) {
			writeError(c, err)
			return
		}
		badRequest(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) closeSession(c *gin.Context) {
	id, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	if err := h.deps.Sessions.Disconnect(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ============================================
// Служебное
// ============================================

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Status())
}

func (h *handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Health))
	for _, check := range h.deps.Health {
		if err := check.Check(ctx); err != nil {
			checks[check.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[check.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":   overall,
		"version":  h.deps.Version,
		"checks":   checks,
		"sessions": h.deps.Sessions.CountByMode(),
	})
}
