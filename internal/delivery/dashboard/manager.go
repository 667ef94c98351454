// internal/delivery/dashboard/manager.go
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	events "trading-bot-fleet/internal/infrastructure/transport/event_bus"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/clock"
	"trading-bot-fleet/pkg/logger"

	"github.com/google/uuid"
)

// EventSource - буфер событий шины, читаемый по курсору
type EventSource interface {
	Since(after uint64, filter func(types.Event) bool, limit int) events.Batch
	LatestSeq() uint64
	Watch() (<-chan struct{}, func())
	ReportOverflow(missed uint64)
}

// Config - параметры менеджера сессий
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	Backoff           BackoffConfig
	BatchSize         int
	EventTypes        []types.EventType
	PersistTimeout    time.Duration
	// MaxUnacked - предел выданных, но не подтверждённых событий одной сессии
	MaxUnacked int
	// SessionTTL - сессия без push-подключения и без активности дольше TTL удаляется из памяти
	SessionTTL time.Duration
}

// DefaultManagerConfig - heartbeat каждые 15с, таймаут 45с
func DefaultManagerConfig() Config {
	return Config{
		HeartbeatInterval: 15 * time.Second,
		HeartbeatTimeout:  45 * time.Second,
		Backoff:           DefaultBackoff(),
		BatchSize:         100,
		EventTypes:        []types.EventType{types.EventBotTransition, types.EventBotCreated},
		PersistTimeout:    2 * time.Second,
		MaxUnacked:        1000,
		SessionTTL:        24 * time.Hour,
	}
}

// Delivery - порция событий для сессии
type Delivery struct {
	Events []types.Event
	// Missed > 0 - часть событий вытеснена из буфера, клиенту нужен свежий снимок
	Missed uint64
	Latest uint64
}

// Overflow возвращает ErrBacklogOverflow, если сессия потеряла события
func (d Delivery) Overflow() error {
	if d.Missed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d events lost, latest seq %d", types.ErrBacklogOverflow, d.Missed, d.Latest)
}

// Manager - реестр сессий распространения событий.
// Единственный владелец состояния сессий; снаружи доступны только снимки.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	source EventSource
	store  types.SessionStore
	clock  clock.Clock
	config Config
}

// NewManager создает менеджер сессий. store может быть nil.
func NewManager(source EventSource, store types.SessionStore, c clock.Clock, cfg Config) *Manager {
	def := DefaultManagerConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if len(cfg.EventTypes) == 0 {
		cfg.EventTypes = def.EventTypes
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.MaxUnacked <= 0 {
		cfg.MaxUnacked = def.MaxUnacked
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if c == nil {
		c = clock.New()
	}

	return &Manager{
		sessions: make(map[string]*session),
		source:   source,
		store:    store,
		clock:    c,
		config:   cfg,
	}
}

// Config возвращает действующие параметры
func (m *Manager) Config() Config {
	return m.config
}

// Watch - сигнал о новых событиях шины
func (m *Manager) Watch() (<-chan struct{}, func()) {
	return m.source.Watch()
}

// Connect открывает новую сессию владельца в режиме push или polling.
// Сессия получает события, опубликованные после подключения; текущее
// состояние клиент берёт из снимков опроса.
func (m *Manager) Connect(ctx context.Context, ownerID string, mode TransportMode) (SessionInfo, error) {
	if ownerID == "" {
		return SessionInfo{}, fmt.Errorf("Dashboard.Connect: owner is required")
	}
	if mode != ModePush && mode != ModePolling {
		return SessionInfo{}, fmt.Errorf("Dashboard.Connect: unsupported mode %q", mode)
	}

	now := m.clock.Now()
	s := newSession(uuid.NewString(), ownerID, mode, m.config.EventTypes, m.source.LatestSeq(), now)
	if mode == ModePush {
		s.lease = 1
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	info, rec := s.info(), s.record()
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.persist(ctx, rec)
	logger.Info("🔗 [Dashboard] сессия %s владельца %s открыта (%s)", info.ID, ownerID, mode)
	return info, nil
}

// Resume восстанавливает push-подключение существующей сессии.
// Сессия, исчерпавшая бюджет переподключений, остаётся в polling (ErrPushExhausted).
func (m *Manager) Resume(ctx context.Context, sessionID, ownerID string) (SessionInfo, error) {
	s, err := m.lookup(ctx, sessionID)
	if err != nil {
		return SessionInfo{}, err
	}

	m.mu.Lock()
	if s.ownerID != ownerID {
		m.mu.Unlock()
		return SessionInfo{}, types.ErrForbidden
	}
	if s.pushExhausted {
		info := s.info()
		m.mu.Unlock()
		return info, types.ErrPushExhausted
	}
	if err := s.transition(ModePush); err != nil {
		m.mu.Unlock()
		return SessionInfo{}, err
	}
	s.lease++
	s.unsent = 0
	s.lastHeartbeat = m.clock.Now()
	s.lastActivity = s.lastHeartbeat
	s.awaitingHeartbeat = true
	info, rec := s.info(), s.record()
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.persist(ctx, rec)
	logger.Info("🔌 [Dashboard] сессия %s переподключена (попытка %d)", sessionID, info.ReconnectAttempts)
	return info, nil
}

// Heartbeat фиксирует ответ клиента. Первый heartbeat после переподключения
// обнуляет счётчик попыток.
func (m *Manager) Heartbeat(sessionID string, lease uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return types.ErrSessionNotFound
	}
	if s.mode != ModePush || s.lease != lease {
		return types.ErrConnectionLost
	}
	s.lastHeartbeat = m.clock.Now()
	s.lastActivity = s.lastHeartbeat
	if s.awaitingHeartbeat {
		s.awaitingHeartbeat = false
		s.reconnectAttempts = 0
		s.nextRetryAt = time.Time{}
	}
	return nil
}

// CheckLiveness помечает потерянными push-сессии без heartbeat дольше таймаута
// и удаляет из памяти сессии, неактивные дольше SessionTTL.
// Возвращает id сессий, помеченных потерянными.
func (m *Manager) CheckLiveness(ctx context.Context) []string {
	now := m.clock.Now()

	m.mu.Lock()
	var stale []*session
	var expired []string
	for id, s := range m.sessions {
		switch {
		case s.mode == ModePush && now.Sub(s.lastHeartbeat) > m.config.HeartbeatTimeout:
			stale = append(stale, s)
		case s.mode != ModePush && now.Sub(s.lastActivity) > m.config.SessionTTL:
			delete(m.sessions, id)
			expired = append(expired, id)
		}
	}
	ids := make([]string, 0, len(stale))
	records := make([]types.SessionRecord, 0, len(stale))
	for _, s := range stale {
		m.connectionLostLocked(s, now)
		ids = append(ids, s.id)
		records = append(records, s.record())
	}
	if len(stale) > 0 || len(expired) > 0 {
		m.updateGaugesLocked()
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		sort.Strings(expired)
		logger.Info("🧹 [Dashboard] удалено %d неактивных сессий: %v", len(expired), expired)
	}

	for _, rec := range records {
		m.persist(ctx, rec)
	}
	sort.Strings(ids)
	if len(ids) > 0 {
		logger.Warn("💔 [Dashboard] нет heartbeat от %d сессий: %v", len(ids), ids)
	}
	return ids
}

// ReportConnectionLost - push-канал оборвался (ошибка чтения/записи).
// Устаревший lease игнорируется.
func (m *Manager) ReportConnectionLost(ctx context.Context, sessionID string, lease uint64) (SessionInfo, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return SessionInfo{}, types.ErrSessionNotFound
	}
	if s.mode != ModePush || s.lease != lease {
		info := s.info()
		m.mu.Unlock()
		return info, nil
	}
	m.connectionLostLocked(s, m.clock.Now())
	info, rec := s.info(), s.record()
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.persist(ctx, rec)
	return info, nil
}

// connectionLostLocked считает попытку переподключения и назначает следующую,
// либо навсегда переводит сессию в polling
func (m *Manager) connectionLostLocked(s *session, now time.Time) {
	s.lease++
	s.reconnectAttempts++
	s.awaitingHeartbeat = false
	s.lastActivity = now
	reconnectsTotal.Inc()

	if m.config.Backoff.Exhausted(s.reconnectAttempts) {
		s.pushExhausted = true
		s.nextRetryAt = time.Time{}
		_ = s.transition(ModePolling)
		pushExhaustedTotal.Inc()
		logger.Warn("📉 [Dashboard] сессия %s исчерпала %d попыток, переход в polling",
			s.id, m.config.Backoff.MaxAttempts)
		return
	}

	_ = s.transition(ModeDisconnected)
	s.nextRetryAt = now.Add(m.config.Backoff.Delay(s.reconnectAttempts))
	logger.Info("🔄 [Dashboard] сессия %s потеряна, попытка %d не раньше %s",
		s.id, s.reconnectAttempts, s.nextRetryAt.Format(time.RFC3339))
}

// FallbackToPolling переводит сессию в polling по инициативе клиента
func (m *Manager) FallbackToPolling(ctx context.Context, sessionID string) (SessionInfo, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return SessionInfo{}, types.ErrSessionNotFound
	}
	if err := s.transition(ModePolling); err != nil {
		m.mu.Unlock()
		return SessionInfo{}, err
	}
	s.lease++
	s.nextRetryAt = time.Time{}
	s.lastActivity = m.clock.Now()
	info, rec := s.info(), s.record()
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.persist(ctx, rec)
	logger.Info("📊 [Dashboard] сессия %s перешла в polling", sessionID)
	return info, nil
}

// Disconnect закрывает сессию явно
func (m *Manager) Disconnect(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.updateGaugesLocked()
	m.mu.Unlock()

	if !ok {
		return types.ErrSessionNotFound
	}
	if m.store != nil {
		pctx, cancel := context.WithTimeout(ctx, m.config.PersistTimeout)
		defer cancel()
		if err := m.store.Delete(pctx, sessionID); err != nil {
			logger.Warn("⚠️ [Dashboard] не удалось удалить сессию %s: %v", sessionID, err)
		}
	}
	logger.Info("👋 [Dashboard] сессия %s закрыта", sessionID)
	return nil
}

// Ack подтверждает обработку событий типа eventType до seq включительно
func (m *Manager) Ack(ctx context.Context, sessionID string, eventType types.EventType, seq uint64) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return types.ErrSessionNotFound
	}
	current, tracked := s.acked[eventType]
	if !tracked {
		m.mu.Unlock()
		return fmt.Errorf("Dashboard.Ack: event type %q is not delivered to sessions", eventType)
	}
	s.lastActivity = m.clock.Now()
	if seq <= current {
		m.mu.Unlock()
		return nil
	}
	s.ack(eventType, seq)
	rec := s.record()
	m.mu.Unlock()

	m.persist(ctx, rec)
	return nil
}

// Outbound выдаёт push-подключению следующие неотправленные события.
// Подключение с устаревшим lease получает ErrConnectionLost.
func (m *Manager) Outbound(sessionID string, lease uint64) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Delivery{}, types.ErrSessionNotFound
	}
	if s.mode != ModePush || s.lease != lease {
		return Delivery{}, types.ErrConnectionLost
	}

	// сначала повторяем неподтверждённое, затем дочитываем шину
	if s.unsent >= len(s.inflight) {
		s.scan(m.source, m.config.BatchSize)
		s.trim(m.config.MaxUnacked)
	}
	end := s.unsent + m.config.BatchSize
	if end > len(s.inflight) {
		end = len(s.inflight)
	}
	out := append([]types.Event(nil), s.inflight[s.unsent:end]...)
	s.unsent = end
	return m.deliveryLocked(s, out), nil
}

// Pending возвращает неподтверждённые события сессии.
// Повторный вызов без Ack возвращает те же события; используется клиентами в режиме polling.
func (m *Manager) Pending(sessionID string, limit int) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Delivery{}, types.ErrSessionNotFound
	}
	if limit <= 0 || limit > m.config.BatchSize {
		limit = m.config.BatchSize
	}
	s.lastActivity = m.clock.Now()
	if len(s.inflight) < limit {
		s.scan(m.source, limit-len(s.inflight))
		s.trim(m.config.MaxUnacked)
	}
	n := limit
	if n > len(s.inflight) {
		n = len(s.inflight)
	}
	return m.deliveryLocked(s, append([]types.Event(nil), s.inflight[:n]...)), nil
}

// deliveryLocked собирает порцию и отдаёт клиенту накопленный признак потерь
func (m *Manager) deliveryLocked(s *session, out []types.Event) Delivery {
	d := Delivery{Events: out, Missed: s.takeMissed(), Latest: m.source.LatestSeq()}
	if d.Missed > 0 {
		overflowMarkersTotal.Inc()
		m.source.ReportOverflow(d.Missed)
	}
	return d
}

// Session возвращает снимок сессии
func (m *Manager) Session(sessionID string) (SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return SessionInfo{}, types.ErrSessionNotFound
	}
	return s.info(), nil
}

// Authorize проверяет, что сессия принадлежит владельцу
func (m *Manager) Authorize(sessionID, ownerID string) error {
	info, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	if info.OwnerID != ownerID {
		return types.ErrForbidden
	}
	return nil
}

// Sessions возвращает снимки всех сессий, упорядоченные по id
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountByMode - количество сессий по режимам
func (m *Manager) CountByMode() map[TransportMode]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked()
}

// lookup ищет сессию в памяти, затем во внешнем хранилище
func (m *Manager) lookup(ctx context.Context, sessionID string) (*session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return s, nil
	}
	if m.store == nil {
		return nil, types.ErrSessionNotFound
	}

	pctx, cancel := context.WithTimeout(ctx, m.config.PersistTimeout)
	defer cancel()
	rec, err := m.store.Load(pctx, sessionID)
	if err != nil {
		if errors.Is(err, types.ErrSessionNotFound) {
			return nil, types.ErrSessionNotFound
		}
		return nil, fmt.Errorf("Dashboard.lookup: %w", err)
	}

	restored := sessionFromRecord(rec, m.config.EventTypes)
	if restored.mode == ModePush {
		// подключение предыдущего процесса уже мертво
		restored.mode = ModeDisconnected
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[sessionID]; ok {
		return existing, nil
	}
	m.sessions[sessionID] = restored
	logger.Info("♻️ [Dashboard] сессия %s восстановлена из хранилища", sessionID)
	return restored, nil
}

func (m *Manager) persist(ctx context.Context, rec types.SessionRecord) {
	if m.store == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, m.config.PersistTimeout)
	defer cancel()
	if err := m.store.Save(pctx, rec); err != nil {
		logger.Warn("⚠️ [Dashboard] не удалось сохранить сессию %s: %v", rec.ID, err)
	}
}

func (m *Manager) countLocked() map[TransportMode]int {
	counts := map[TransportMode]int{ModePush: 0, ModePolling: 0, ModeDisconnected: 0}
	for _, s := range m.sessions {
		counts[s.mode]++
	}
	return counts
}

func (m *Manager) updateGaugesLocked() {
	for mode, n := range m.countLocked() {
		sessionsGauge.WithLabelValues(string(mode)).Set(float64(n))
	}
}
