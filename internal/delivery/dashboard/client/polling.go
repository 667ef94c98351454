// internal/delivery/dashboard/client/polling.go
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"trading-bot-fleet/internal/delivery/dashboard"
	"trading-bot-fleet/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Endpoint - read-only эндпоинт снимка с собственным интервалом опроса
type Endpoint struct {
	Name     string
	Path     string
	Interval time.Duration
}

// DefaultEndpoints - снимки, которые опрашивает дашборд без push-канала
func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{Name: "bots", Path: "/api/v1/bots", Interval: 30 * time.Second},
		{Name: "quarantined", Path: "/api/v1/bots/quarantined", Interval: 10 * time.Second},
		{Name: "summary", Path: "/api/v1/fleet/summary", Interval: time.Minute},
	}
}

// runPolling опрашивает все эндпоинты до отмены ctx; push при этом не используется
func (c *Client) runPolling(ctx context.Context) error {
	c.setMode(dashboard.ModePolling)

	endpoints := c.config.Endpoints
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints()
	}
	logger.Info("📊 [DashboardClient] polling %d эндпоинтов", len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		g.Go(func() error {
			return c.pollLoop(gctx, ep)
		})
	}
	return g.Wait()
}

// pollLoop - независимый цикл одного эндпоинта; ошибки запроса не прерывают опрос
func (c *Client) pollLoop(ctx context.Context, ep Endpoint) error {
	interval := ep.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.fetch(ctx, ep); err != nil && ctx.Err() == nil {
			logger.Warn("⚠️ [DashboardClient] опрос %s: %v", ep.Name, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetch получает один снимок; клиент заменяет им локальное состояние целиком
func (c *Client) fetch(ctx context.Context, ep Endpoint) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+ep.Path, nil)
	if err != nil {
		return err
	}
	req.Header = c.authHeader()

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if c.handlers.OnSnapshot != nil {
		c.handlers.OnSnapshot(ep.Name, body)
	}
	return nil
}
