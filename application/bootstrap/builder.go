// application/bootstrap/builder.go
package bootstrap

import (
	"fmt"

	"trading-bot-fleet/internal/infrastructure/config"
	"trading-bot-fleet/pkg/clock"
	"trading-bot-fleet/pkg/logger"
)

// AppBuilder строитель приложения
type AppBuilder struct {
	config     *config.Config
	configPath string
	options    []AppOption
}

// AppOption опция для настройки приложения
type AppOption func(*Application) error

// NewAppBuilder создает новый строитель приложений
func NewAppBuilder() *AppBuilder {
	return &AppBuilder{}
}

// WithConfig устанавливает конфигурацию
func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	b.config = cfg
	return b
}

// WithConfigFile загружает конфигурацию из .env файла при сборке
func (b *AppBuilder) WithConfigFile(path string) *AppBuilder {
	b.configPath = path
	return b
}

// WithOption добавляет опцию настройки
func (b *AppBuilder) WithOption(option AppOption) *AppBuilder {
	b.options = append(b.options, option)
	return b
}

// Build строит приложение; компоненты подключаются в Initialize
func (b *AppBuilder) Build() (*Application, error) {
	if b.config == nil {
		cfg, err := config.LoadConfig(b.configPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка конфигурации: %w", err)
		}
		b.config = cfg
	}

	app, err := NewApplication(b.config)
	if err != nil {
		return nil, fmt.Errorf("создание приложения: %w", err)
	}

	for _, option := range b.options {
		if err := option(app); err != nil {
			return nil, fmt.Errorf("применение опции: %w", err)
		}
	}
	return app, nil
}

// ==================== Опции приложения ====================

// WithLogging настраивает глобальный логгер по секции LOGGING конфигурации
func WithLogging() AppOption {
	return func(app *Application) error {
		l := app.config.Logging
		if err := logger.InitGlobal(l.File, l.Level, l.Debug); err != nil {
			return fmt.Errorf("логгер: %w", err)
		}
		return nil
	}
}

// WithClock подменяет источник времени (тесты, сухие прогоны)
func WithClock(c clock.Clock) AppOption {
	return func(app *Application) error {
		if c == nil {
			return fmt.Errorf("clock is nil")
		}
		app.clock = c
		return nil
	}
}

// WithStoreBackend переопределяет хранилище ботов из конфигурации
func WithStoreBackend(backend string) AppOption {
	return func(app *Application) error {
		switch backend {
		case "":
			return nil
		case "memory", "postgres", "redis":
			app.config.StoreBackend = backend
			return nil
		default:
			return fmt.Errorf("неизвестное хранилище %q", backend)
		}
	}
}
