// /internal/infrastructure/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ============================================
// КОНФИГУРАЦИЯ ХРАНИЛИЩ
// ============================================

// DatabaseConfig - конфигурация базы данных
type DatabaseConfig struct {
	// Основные параметры подключения
	Host     string `mapstructure:"DB_HOST"`
	Port     int    `mapstructure:"DB_PORT"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`

	Enabled bool `mapstructure:"DB_ENABLED"`

	// Настройки пула соединений
	MaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	MaxConnLifetime time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`

	// Подключение при старте
	ConnectAttempts   int  `mapstructure:"DB_CONNECT_ATTEMPTS"`
	EnableAutoMigrate bool `mapstructure:"DB_ENABLE_AUTO_MIGRATE"`
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`     // localhost
	Port     int    `mapstructure:"REDIS_PORT"`     // 6379
	Password string `mapstructure:"REDIS_PASSWORD"` // пустой или пароль
	DB       int    `mapstructure:"REDIS_DB"`       // 0

	Enabled bool `mapstructure:"REDIS_ENABLED"`

	// Настройки пула соединений
	PoolSize        int           `mapstructure:"REDIS_POOL_SIZE"`         // 10
	MinIdleConns    int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`    // 5
	MaxRetries      int           `mapstructure:"REDIS_MAX_RETRIES"`       // 3
	MinRetryBackoff time.Duration `mapstructure:"REDIS_MIN_RETRY_BACKOFF"` // 8ms
	MaxRetryBackoff time.Duration `mapstructure:"REDIS_MAX_RETRY_BACKOFF"` // 512ms
	DialTimeout     time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`      // 5s
	ReadTimeout     time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`      // 3s
	WriteTimeout    time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`     // 3s
	PoolTimeout     time.Duration `mapstructure:"REDIS_POOL_TIMEOUT"`      // 4s

	KeyPrefix  string        `mapstructure:"REDIS_KEY_PREFIX"`  // fleet:
	SessionTTL time.Duration `mapstructure:"REDIS_SESSION_TTL"` // 24h
	// RelayEvents - публиковать события в каналы fleet:events:<owner>
	RelayEvents bool `mapstructure:"REDIS_RELAY_EVENTS"`
}

// KafkaConfig - экспорт событий жизненного цикла во внешние системы
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"KAFKA_ENABLED"`
	Brokers      []string      `mapstructure:"KAFKA_BROKERS"`
	Topic        string        `mapstructure:"KAFKA_TOPIC"`
	BatchTimeout time.Duration `mapstructure:"KAFKA_BATCH_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"KAFKA_WRITE_TIMEOUT"`
}

// ============================================
// КОНФИГУРАЦИЯ ДОМЕНА
// ============================================

// EventBusConfig - параметры шины событий
type EventBusConfig struct {
	BufferSize      int           `mapstructure:"EVENT_BUS_BUFFER_SIZE"`
	BatchSize       int           `mapstructure:"EVENT_BUS_BATCH_SIZE"`
	MaxRetries      int           `mapstructure:"EVENT_BUS_MAX_RETRIES"`
	RetryDelay      time.Duration `mapstructure:"EVENT_BUS_RETRY_DELAY"`
	EnableMetrics   bool          `mapstructure:"EVENT_BUS_ENABLE_METRICS"`
	EnableLogging   bool          `mapstructure:"EVENT_BUS_ENABLE_LOGGING"`
	MetricsInterval time.Duration `mapstructure:"EVENT_BUS_METRICS_INTERVAL"`
}

// LifecycleConfig - движок жизненного цикла и политика карантина
type LifecycleConfig struct {
	// TickInterval - период страховочного обхода истёкших карантинов
	TickInterval time.Duration `mapstructure:"LIFECYCLE_TICK_INTERVAL"`
	// QuarantineWindows - окна переобучения по попыткам (1h,3h,24h)
	QuarantineWindows []time.Duration `mapstructure:"QUARANTINE_WINDOWS"`
	// PolicyFile - YAML с таблицей окон; имеет приоритет над QuarantineWindows
	PolicyFile string `mapstructure:"QUARANTINE_POLICY_FILE"`

	// JobTimeout - предел одного запуска фоновой задачи
	JobTimeout time.Duration `mapstructure:"SCHEDULER_JOB_TIMEOUT"`
	// SchedulerResolution - как часто планировщик сверяется с расписанием
	SchedulerResolution time.Duration `mapstructure:"SCHEDULER_RESOLUTION"`
	// ReportAt - время ежедневной сводки по парку (HH:MM UTC), пусто - сводка выключена
	ReportAt string `mapstructure:"FLEET_REPORT_AT"`
}

// ReportTime разбирает ReportAt; ok=false, если сводка выключена
func (l LifecycleConfig) ReportTime() (hour, minute int, ok bool, err error) {
	if l.ReportAt == "" {
		return 0, 0, false, nil
	}
	t, err := time.Parse("15:04", l.ReportAt)
	if err != nil {
		return 0, 0, false, fmt.Errorf("FLEET_REPORT_AT %q: ожидается HH:MM", l.ReportAt)
	}
	return t.Hour(), t.Minute(), true, nil
}

// RegenerationConfig - пересоздание бота после исчерпания попыток
type RegenerationConfig struct {
	CarryCapital     bool    `mapstructure:"REGEN_CARRY_CAPITAL"`
	PreserveExchange bool    `mapstructure:"REGEN_PRESERVE_EXCHANGE"`
	DefaultCapital   float64 `mapstructure:"REGEN_DEFAULT_CAPITAL"`
	DefaultExchange  string  `mapstructure:"REGEN_DEFAULT_EXCHANGE"`
}

// DistributionConfig - сессии дашбордов: heartbeat, backoff, polling
type DistributionConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"DIST_HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  time.Duration `mapstructure:"DIST_HEARTBEAT_TIMEOUT"`
	LivenessInterval  time.Duration `mapstructure:"DIST_LIVENESS_INTERVAL"`
	BackoffInitial    time.Duration `mapstructure:"DIST_BACKOFF_INITIAL"`
	BackoffMax        time.Duration `mapstructure:"DIST_BACKOFF_MAX"`
	MaxAttempts       int           `mapstructure:"DIST_MAX_ATTEMPTS"`
	BatchSize         int           `mapstructure:"DIST_BATCH_SIZE"`

	// Интервалы опроса эндпоинтов в режиме polling
	PollBotsInterval        time.Duration `mapstructure:"POLL_BOTS_INTERVAL"`
	PollQuarantinedInterval time.Duration `mapstructure:"POLL_QUARANTINED_INTERVAL"`
	PollSummaryInterval     time.Duration `mapstructure:"POLL_SUMMARY_INTERVAL"`
}

// HTTPConfig - внешний HTTP-интерфейс
type HTTPConfig struct {
	Port int `mapstructure:"HTTP_PORT"`
	// Tokens - bearer-токен → id владельца (API_TOKENS=token:owner,...)
	Tokens          map[string]string `mapstructure:"API_TOKENS"`
	AllowedOrigins  []string          `mapstructure:"WS_ALLOWED_ORIGINS"`
	ShutdownTimeout time.Duration     `mapstructure:"HTTP_SHUTDOWN_TIMEOUT"`
}

// LoggingConfig - логирование
type LoggingConfig struct {
	Level string `mapstructure:"LOG_LEVEL"`
	File  string `mapstructure:"LOG_FILE"`
	Debug bool   `mapstructure:"DEBUG_MODE"`
}

// ============================================
// ОСНОВНАЯ КОНФИГУРАЦИЯ ПРИЛОЖЕНИЯ
// ============================================

// Config - основная структура конфигурации
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Version     string `mapstructure:"VERSION"`
	// InstanceID - имя экземпляра сервиса; по нему отбрасываются собственные события из Redis
	InstanceID string `mapstructure:"INSTANCE_ID"`

	// StoreBackend - memory | postgres | redis
	StoreBackend string `mapstructure:"STORE_BACKEND"`

	Database DatabaseConfig `mapstructure:"DATABASE"`
	Redis    RedisConfig    `mapstructure:"REDIS"`
	Kafka    KafkaConfig    `mapstructure:"KAFKA"`

	EventBus     EventBusConfig     `mapstructure:"EVENT_BUS"`
	Lifecycle    LifecycleConfig    `mapstructure:"LIFECYCLE"`
	Regeneration RegenerationConfig `mapstructure:"REGENERATION"`
	Distribution DistributionConfig `mapstructure:"DISTRIBUTION"`
	HTTP         HTTPConfig         `mapstructure:"HTTP"`

	Logging  LoggingConfig `mapstructure:"LOGGING"`
	LogLevel string        `mapstructure:"LOG_LEVEL"`
}

// ============================================
// ЗАГРУЗКА КОНФИГУРАЦИИ
// ============================================

// LoadConfig загружает конфигурацию из .env файла
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Printf("⚠️  Config file not found, using environment variables\n")
		}
	}

	cfg := &Config{}

	// ======================
	// ОСНОВНЫЕ НАСТРОЙКИ
	// ======================
	cfg.Environment = getEnv("ENVIRONMENT", "production")
	cfg.Version = getEnv("VERSION", "1.0.0")
	cfg.InstanceID = getEnv("INSTANCE_ID", defaultInstanceID())
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", "memory"))

	// ======================
	// БАЗА ДАННЫХ
	// ======================
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.Name = getEnv("DB_NAME", "")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	cfg.Database.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Database.MaxConnIdleTime = getEnvDuration("DB_MAX_CONN_IDLE_TIME", 10*time.Minute)
	cfg.Database.ConnectAttempts = getEnvInt("DB_CONNECT_ATTEMPTS", 5)
	cfg.Database.EnableAutoMigrate = getEnvBool("DB_ENABLE_AUTO_MIGRATE", true)
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", cfg.StoreBackend == "postgres")

	// ======================
	// REDIS
	// ======================
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnvInt("REDIS_PORT", 6379)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 10)
	cfg.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", 5)
	cfg.Redis.MaxRetries = getEnvInt("REDIS_MAX_RETRIES", 3)
	cfg.Redis.MinRetryBackoff = getEnvDuration("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond)
	cfg.Redis.MaxRetryBackoff = getEnvDuration("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond)
	cfg.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.Redis.PoolTimeout = getEnvDuration("REDIS_POOL_TIMEOUT", 4*time.Second)
	cfg.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", "fleet:")
	cfg.Redis.SessionTTL = getEnvDuration("REDIS_SESSION_TTL", 24*time.Hour)
	cfg.Redis.RelayEvents = getEnvBool("REDIS_RELAY_EVENTS", false)
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", cfg.StoreBackend == "redis")

	// ======================
	// KAFKA
	// ======================
	cfg.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", false)
	cfg.Kafka.Brokers = parseList(getEnv("KAFKA_BROKERS", "localhost:9092"))
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "fleet.lifecycle")
	cfg.Kafka.BatchTimeout = getEnvDuration("KAFKA_BATCH_TIMEOUT", 50*time.Millisecond)
	cfg.Kafka.WriteTimeout = getEnvDuration("KAFKA_WRITE_TIMEOUT", 5*time.Second)

	// ======================
	// ШИНА СОБЫТИЙ
	// ======================
	cfg.EventBus.BufferSize = getEnvInt("EVENT_BUS_BUFFER_SIZE", 1000)
	cfg.EventBus.BatchSize = getEnvInt("EVENT_BUS_BATCH_SIZE", 100)
	cfg.EventBus.MaxRetries = getEnvInt("EVENT_BUS_MAX_RETRIES", 3)
	cfg.EventBus.RetryDelay = getEnvDuration("EVENT_BUS_RETRY_DELAY", 100*time.Millisecond)
	cfg.EventBus.EnableMetrics = getEnvBool("EVENT_BUS_ENABLE_METRICS", true)
	cfg.EventBus.EnableLogging = getEnvBool("EVENT_BUS_ENABLE_LOGGING", true)
	cfg.EventBus.MetricsInterval = getEnvDuration("EVENT_BUS_METRICS_INTERVAL", 30*time.Second)

	// ======================
	// ЖИЗНЕННЫЙ ЦИКЛ
	// ======================
	cfg.Lifecycle.TickInterval = getEnvDuration("LIFECYCLE_TICK_INTERVAL", time.Minute)
	cfg.Lifecycle.PolicyFile = getEnv("QUARANTINE_POLICY_FILE", "")
	windows, err := parseDurationList(getEnv("QUARANTINE_WINDOWS", "1h,3h,24h"))
	if err != nil {
		return nil, fmt.Errorf("QUARANTINE_WINDOWS: %w", err)
	}
	cfg.Lifecycle.QuarantineWindows = windows
	cfg.Lifecycle.JobTimeout = getEnvDuration("SCHEDULER_JOB_TIMEOUT", 2*time.Minute)
	cfg.Lifecycle.SchedulerResolution = getEnvDuration("SCHEDULER_RESOLUTION", time.Second)
	cfg.Lifecycle.ReportAt = getEnv("FLEET_REPORT_AT", "09:00")

	cfg.Regeneration.CarryCapital = getEnvBool("REGEN_CARRY_CAPITAL", true)
	cfg.Regeneration.PreserveExchange = getEnvBool("REGEN_PRESERVE_EXCHANGE", true)
	cfg.Regeneration.DefaultCapital = getEnvFloat("REGEN_DEFAULT_CAPITAL", 1000)
	cfg.Regeneration.DefaultExchange = getEnv("REGEN_DEFAULT_EXCHANGE", "binance")

	// ======================
	// РАСПРОСТРАНЕНИЕ СОБЫТИЙ
	// ======================
	cfg.Distribution.HeartbeatInterval = getEnvDuration("DIST_HEARTBEAT_INTERVAL", 15*time.Second)
	cfg.Distribution.HeartbeatTimeout = getEnvDuration("DIST_HEARTBEAT_TIMEOUT", 45*time.Second)
	cfg.Distribution.LivenessInterval = getEnvDuration("DIST_LIVENESS_INTERVAL", 5*time.Second)
	cfg.Distribution.BackoffInitial = getEnvDuration("DIST_BACKOFF_INITIAL", 2*time.Second)
	cfg.Distribution.BackoffMax = getEnvDuration("DIST_BACKOFF_MAX", 60*time.Second)
	cfg.Distribution.MaxAttempts = getEnvInt("DIST_MAX_ATTEMPTS", 5)
	cfg.Distribution.BatchSize = getEnvInt("DIST_BATCH_SIZE", 100)
	cfg.Distribution.PollBotsInterval = getEnvDuration("POLL_BOTS_INTERVAL", 30*time.Second)
	cfg.Distribution.PollQuarantinedInterval = getEnvDuration("POLL_QUARANTINED_INTERVAL", 10*time.Second)
	cfg.Distribution.PollSummaryInterval = getEnvDuration("POLL_SUMMARY_INTERVAL", time.Minute)

	// ======================
	// HTTP
	// ======================
	cfg.HTTP.Port = getEnvInt("HTTP_PORT", 8080)
	cfg.HTTP.AllowedOrigins = parseList(getEnv("WS_ALLOWED_ORIGINS", ""))
	cfg.HTTP.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	tokens, err := parseTokens(getEnv("API_TOKENS", ""))
	if err != nil {
		return nil, fmt.Errorf("API_TOKENS: %w", err)
	}
	cfg.HTTP.Tokens = tokens

	// ======================
	// ЛОГИРОВАНИЕ
	// ======================
	cfg.Logging.Level = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Logging.File = getEnv("LOG_FILE", "")
	cfg.Logging.Debug = getEnvBool("DEBUG_MODE", false)
	cfg.LogLevel = cfg.Logging.Level

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ============================================
// ВАЛИДАЦИЯ
// ============================================

// validate проверяет обязательные параметры конфигурации
func (c *Config) validate() error {
	var validationErrors []string

	switch c.StoreBackend {
	case "memory", "redis", "postgres":
	default:
		validationErrors = append(validationErrors, "STORE_BACKEND должен быть memory, redis или postgres")
	}

	if c.StoreBackend == "postgres" || c.Database.Enabled {
		if c.Database.Host == "" {
			validationErrors = append(validationErrors, "DB_HOST is required")
		}
		if c.Database.Port <= 0 {
			validationErrors = append(validationErrors, "DB_PORT must be positive")
		}
		if c.Database.User == "" {
			validationErrors = append(validationErrors, "DB_USER is required")
		}
		if c.Database.Name == "" {
			validationErrors = append(validationErrors, "DB_NAME is required")
		}
	}

	if c.StoreBackend == "redis" && !c.Redis.Enabled {
		validationErrors = append(validationErrors, "REDIS_ENABLED must be true for STORE_BACKEND=redis")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			validationErrors = append(validationErrors, "KAFKA_BROKERS is required when Kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			validationErrors = append(validationErrors, "KAFKA_TOPIC is required when Kafka is enabled")
		}
	}

	if c.EventBus.BufferSize <= 0 {
		validationErrors = append(validationErrors, "EVENT_BUS_BUFFER_SIZE must be positive")
	}
	if len(c.Lifecycle.QuarantineWindows) == 0 && c.Lifecycle.PolicyFile == "" {
		validationErrors = append(validationErrors, "QUARANTINE_WINDOWS or QUARANTINE_POLICY_FILE is required")
	}
	if c.Lifecycle.TickInterval <= 0 {
		validationErrors = append(validationErrors, "LIFECYCLE_TICK_INTERVAL must be positive")
	}
	if _, _, _, err := c.Lifecycle.ReportTime(); err != nil {
		validationErrors = append(validationErrors, err.Error())
	}

	d := c.Distribution
	if d.HeartbeatInterval <= 0 || d.HeartbeatTimeout <= d.HeartbeatInterval {
		validationErrors = append(validationErrors, "DIST_HEARTBEAT_TIMEOUT должен быть больше DIST_HEARTBEAT_INTERVAL")
	}
	if d.BackoffInitial <= 0 || d.BackoffMax < d.BackoffInitial {
		validationErrors = append(validationErrors, "DIST_BACKOFF_MAX должен быть не меньше DIST_BACKOFF_INITIAL")
	}
	if d.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "DIST_MAX_ATTEMPTS must be positive")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		validationErrors = append(validationErrors, "HTTP_PORT должен быть в диапазоне 1-65535")
	}

	if len(validationErrors) > 0 {
		errMsg := strings.Join(validationErrors, "; ")
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ МЕТОДЫ
// ============================================

// GetPostgresDSN возвращает DSN для подключения к PostgreSQL
func (c *Config) GetPostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddress возвращает адрес Redis
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// defaultInstanceID - hostname, а без него pid процесса
func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fmt.Sprintf("fleetd-%d", os.Getpid())
}

// IsDev - окружение разработки
func (c *Config) IsDev() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// PrintSummary выводит основные параметры
func (c *Config) PrintSummary() {
	log.Printf("📋 Конфигурация приложения:")
	log.Printf("   • Окружение: %s (версия %s, экземпляр %s)", c.Environment, c.Version, c.InstanceID)
	log.Printf("   • Уровень логирования: %s", c.Logging.Level)
	log.Printf("   • Хранилище ботов: %s", c.StoreBackend)

	if c.Database.Enabled {
		log.Printf("   • PostgreSQL: %s:%d/%s", c.Database.Host, c.Database.Port, c.Database.Name)
	}
	if c.Redis.Enabled {
		log.Printf("   • Redis: %s (DB: %d, Pool: %d, relay: %v)",
			c.GetRedisAddress(), c.Redis.DB, c.Redis.PoolSize, c.Redis.RelayEvents)
	}
	if c.Kafka.Enabled {
		log.Printf("   • Kafka: %s → %s", strings.Join(c.Kafka.Brokers, ","), c.Kafka.Topic)
	}

	log.Printf("   • Шина событий: буфер %d, повторов %d", c.EventBus.BufferSize, c.EventBus.MaxRetries)

	windows := make([]string, 0, len(c.Lifecycle.QuarantineWindows))
	for _, w := range c.Lifecycle.QuarantineWindows {
		windows = append(windows, w.String())
	}
	log.Printf("   • Карантин: окна %s, обход каждые %v", strings.Join(windows, " / "), c.Lifecycle.TickInterval)
	if c.Lifecycle.PolicyFile != "" {
		log.Printf("     - политика из файла: %s", c.Lifecycle.PolicyFile)
	}
	if c.Lifecycle.ReportAt != "" {
		log.Printf("     - сводка по парку ежедневно в %s UTC", c.Lifecycle.ReportAt)
	}
	log.Printf("   • Пересоздание: капитал %v, биржа %v", c.Regeneration.CarryCapital, c.Regeneration.PreserveExchange)

	d := c.Distribution
	log.Printf("   • Дашборды: heartbeat %v / таймаут %v, backoff %v..%v × %d",
		d.HeartbeatInterval, d.HeartbeatTimeout, d.BackoffInitial, d.BackoffMax, d.MaxAttempts)
	log.Printf("   • Polling: боты %v, карантин %v, сводка %v",
		d.PollBotsInterval, d.PollQuarantinedInterval, d.PollSummaryInterval)
	log.Printf("   • HTTP сервер: порт %d, токенов: %d", c.HTTP.Port, len(c.HTTP.Tokens))
}

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ ФУНКЦИИ
// ============================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func parseList(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func parseDurationList(value string) ([]time.Duration, error) {
	var result []time.Duration
	for _, part := range parseList(value) {
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", part, err)
		}
		result = append(result, d)
	}
	return result, nil
}

// parseTokens разбирает "token:owner,token2:owner2"
func parseTokens(value string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range parseList(value) {
		token, owner, ok := strings.Cut(pair, ":")
		token, owner = strings.TrimSpace(token), strings.TrimSpace(owner)
		if !ok || token == "" || owner == "" {
			return nil, fmt.Errorf("expected token:owner, got %q", pair)
		}
		tokens[token] = owner
	}
	return tokens, nil
}
