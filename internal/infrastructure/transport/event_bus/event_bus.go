// internal/infrastructure/transport/event_bus/event_bus.go
package events

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/logger"

	"github.com/google/uuid"
)

// EventBus - центральная шина событий.
// Публикация никогда не блокируется: событие попадает в кольцевой буфер,
// при переполнении вытесняется самое старое. backlog_overflow растёт только тогда,
// когда читатель обнаруживает, что нужные ему события вытеснены до чтения.
// Подписчики и сессии читают буфер по своему курсору, поэтому порядок
// доставки совпадает с порядком публикации.
type EventBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	middlewares   []Middleware

	ringMu     sync.Mutex
	ring       *ring
	watchers   map[uint64]chan struct{}
	watcherSeq uint64

	metrics  *types.EventBusCounters
	config   EventBusConfig
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// EventBusConfig - конфигурация EventBus
type EventBusConfig struct {
	BufferSize      int           `json:"buffer_size"`
	BatchSize       int           `json:"batch_size"`
	MaxRetries      int           `json:"max_retries"`
	RetryDelay      time.Duration `json:"retry_delay"`
	EnableMetrics   bool          `json:"enable_metrics"`
	EnableLogging   bool          `json:"enable_logging"`
	MetricsInterval time.Duration `json:"metrics_interval"`
}

// DefaultConfig - конфигурация по умолчанию
var DefaultConfig = EventBusConfig{
	BufferSize:      1000,
	BatchSize:       100,
	MaxRetries:      3,
	RetryDelay:      100 * time.Millisecond,
	EnableMetrics:   true,
	EnableLogging:   true,
	MetricsInterval: 30 * time.Second,
}

// Batch - результат чтения буфера по курсору
type Batch struct {
	Events []types.Event
	// Missed - сколько событий после курсора уже вытеснено (признак backlog_overflow)
	Missed uint64
	// Next - курсор для следующего чтения
	Next uint64
	// Latest - номер последнего опубликованного события
	Latest uint64
}

// Overflowed сообщает, что читатель отстал и потерял события
func (b Batch) Overflowed() bool {
	return b.Missed > 0
}

// subscription - подписчик-обработчик со своим курсором и горутиной
type subscription struct {
	subscriber types.EventSubscriber
	accepts    map[types.EventType]struct{}
	cursor     uint64
	done       chan struct{}
}

func (s *subscription) filter(event types.Event) bool {
	_, ok := s.accepts[event.Type]
	return ok
}

// NewEventBus создает новую шину событий
func NewEventBus(config ...EventBusConfig) *EventBus {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = DefaultConfig.MetricsInterval
	}

	return &EventBus{
		subscriptions: make(map[string]*subscription),
		middlewares:   make([]Middleware, 0),
		ring:          newRing(cfg.BufferSize),
		watchers:      make(map[uint64]chan struct{}),
		metrics: &types.EventBusCounters{
			SubscribersCount: make(map[types.EventType]int),
		},
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// Start запускает EventBus
func (b *EventBus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return
	}
	b.running = true
	b.stopChan = make(chan struct{})

	for _, sub := range b.subscriptions {
		b.startSubscription(sub)
	}

	if b.config.EnableMetrics {
		b.startMetricsCollection(b.stopChan)
	}

	if b.config.EnableLogging {
		logger.Info("🚀 EventBus запущен: буфер %d событий, подписчиков %d",
			b.config.BufferSize, len(b.subscriptions))
	}
}

// Stop останавливает EventBus. Подписчики дочитывают буфер перед выходом.
func (b *EventBus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopChan)
	b.mu.Unlock()

	b.wg.Wait()

	if b.config.EnableLogging {
		logger.Info("🛑 EventBus остановлен")
	}
}

// Subscribe подписывает обработчик на его типы событий.
// Подписчик получает события, опубликованные после подписки.
func (b *EventBus) Subscribe(subscriber types.EventSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := subscriber.GetName()
	if _, exists := b.subscriptions[name]; exists {
		logger.Warn("⚠️ Подписчик %s уже зарегистрирован", name)
		return
	}

	sub := &subscription{
		subscriber: subscriber,
		accepts:    make(map[types.EventType]struct{}),
		cursor:     b.LatestSeq(),
		done:       make(chan struct{}),
	}
	for _, et := range subscriber.GetSubscribedEvents() {
		sub.accepts[et] = struct{}{}
	}
	b.subscriptions[name] = sub

	b.metrics.Mu.Lock()
	for et := range sub.accepts {
		b.metrics.SubscribersCount[et]++
	}
	b.metrics.Mu.Unlock()

	if b.running {
		b.startSubscription(sub)
	}

	if b.config.EnableLogging {
		logger.Info("✅ %s подписался на %v", name, subscriber.GetSubscribedEvents())
	}
}

// Unsubscribe отписывает обработчик
func (b *EventBus) Unsubscribe(subscriber types.EventSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := subscriber.GetName()
	sub, exists := b.subscriptions[name]
	if !exists {
		return
	}
	delete(b.subscriptions, name)
	close(sub.done)

	b.metrics.Mu.Lock()
	for et := range sub.accepts {
		b.metrics.SubscribersCount[et]--
		if b.metrics.SubscribersCount[et] <= 0 {
			delete(b.metrics.SubscribersCount, et)
		}
	}
	b.metrics.Mu.Unlock()

	if b.config.EnableLogging {
		logger.Info("❌ %s отписался", name)
	}
}

// Publish публикует событие. Никогда не ждёт медленных читателей.
func (b *EventBus) Publish(event types.Event) error {
	if !b.IsRunning() {
		return fmt.Errorf("event bus is not running")
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.ringMu.Lock()
	stored, dropped := b.ring.push(event)
	buffered := b.ring.len()
	for _, ch := range b.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.ringMu.Unlock()

	b.metrics.Mu.Lock()
	b.metrics.EventsPublished++
	if dropped {
		b.metrics.Evicted++
	}
	b.metrics.Mu.Unlock()

	publishedTotal.WithLabelValues(string(stored.Type)).Inc()
	bufferedGauge.Set(float64(buffered))
	if dropped {
		evictedTotal.Inc()
		if b.config.EnableLogging {
			logger.Debug("⚠️ Буфер событий полон, вытеснено самое старое событие (seq < %d)", stored.Seq)
		}
	}

	logger.Debug("📤 Опубликовано событие #%d %s от %s (бот %s)", stored.Seq, stored.Type, stored.Source, stored.BotID)
	return nil
}

// Since читает события после курсора after, прошедшие filter (nil - все)
func (b *EventBus) Since(after uint64, filter func(types.Event) bool, limit int) Batch {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()

	events, missed, next := b.ring.since(after, filter, limit)
	return Batch{
		Events: events,
		Missed: missed,
		Next:   next,
		Latest: b.ring.lastSeq,
	}
}

// ReportOverflow учитывает события, вытесненные до того, как читатель их получил
func (b *EventBus) ReportOverflow(missed uint64) {
	if missed == 0 {
		return
	}
	b.metrics.Mu.Lock()
	b.metrics.BacklogOverflow += int64(missed)
	b.metrics.Mu.Unlock()
	backlogOverflowTotal.Add(float64(missed))
}

// LatestSeq - номер последнего опубликованного события
func (b *EventBus) LatestSeq() uint64 {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	return b.ring.lastSeq
}

// Watch возвращает канал-сигнал о новых событиях и функцию отписки.
// Сигналы схлопываются: один сигнал может означать несколько событий.
func (b *EventBus) Watch() (<-chan struct{}, func()) {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()

	b.watcherSeq++
	id := b.watcherSeq
	ch := make(chan struct{}, 1)
	b.watchers[id] = ch

	return ch, func() {
		b.ringMu.Lock()
		delete(b.watchers, id)
		b.ringMu.Unlock()
	}
}

// AddMiddleware добавляет middleware
func (b *EventBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middlewares = append(b.middlewares, middleware)

	if b.config.EnableLogging {
		logger.Debug("➕ Добавлен middleware: %T", middleware)
	}
}

// startSubscription запускает горутину подписчика; вызывается под b.mu
func (b *EventBus) startSubscription(sub *subscription) {
	stop := b.stopChan
	b.wg.Add(1)
	go b.runSubscription(sub, stop)
}

// runSubscription дочитывает буфер при каждом сигнале о новых событиях
func (b *EventBus) runSubscription(sub *subscription, stop <-chan struct{}) {
	defer b.wg.Done()

	signal, cancel := b.Watch()
	defer cancel()

	for {
		b.drain(sub)
		select {
		case <-signal:
		case <-sub.done:
			return
		case <-stop:
			b.drain(sub)
			return
		}
	}
}

// drain доставляет подписчику всё, что накопилось после его курсора
func (b *EventBus) drain(sub *subscription) {
	for {
		batch := b.Since(sub.cursor, sub.filter, b.config.BatchSize)
		if batch.Overflowed() {
			b.ReportOverflow(batch.Missed)
			logger.Warn("⚠️ Подписчик %s отстал: потеряно %d событий", sub.subscriber.GetName(), batch.Missed)
		}
		sub.cursor = batch.Next
		if len(batch.Events) == 0 {
			return
		}
		for _, event := range batch.Events {
			b.processEvent(event, sub.subscriber)
		}
	}
}

// processEvent обрабатывает одно событие одним подписчиком через цепочку middleware
func (b *EventBus) processEvent(event types.Event, subscriber types.EventSubscriber) error {
	startTime := time.Now()

	defer func() {
		elapsed := time.Since(startTime)
		b.metrics.Mu.Lock()
		b.metrics.ProcessingTime += elapsed
		b.metrics.EventsProcessed++
		b.metrics.Mu.Unlock()
		processedTotal.WithLabelValues(subscriber.GetName()).Inc()
	}()

	handler := func(event types.Event) error {
		return b.handleEventWithRetry(event, subscriber)
	}
	return b.executeWithMiddleware(event, handler)
}

// handleEventWithRetry вызывает обработчик с повторными попытками
func (b *EventBus) handleEventWithRetry(event types.Event, subscriber types.EventSubscriber) error {
	var err error
	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		if attempt > 0 && b.config.RetryDelay > 0 {
			time.Sleep(b.config.RetryDelay)
		}
		err = b.safeExecute(func() error { return subscriber.HandleEvent(event) })
		if err == nil {
			return nil
		}
		logger.Debug("🔁 %s: попытка %d обработки %s не удалась: %v",
			subscriber.GetName(), attempt+1, event.Type, err)
	}

	b.metrics.Mu.Lock()
	b.metrics.EventsFailed++
	b.metrics.Mu.Unlock()
	failedTotal.WithLabelValues(subscriber.GetName()).Inc()
	logger.Error("❌ Ошибка обработки события %s подписчиком %s: %v",
		event.Type, subscriber.GetName(), err)
	return err
}

// executeWithMiddleware выполняет обработку через цепочку middleware
func (b *EventBus) executeWithMiddleware(event types.Event, handler HandlerFunc) error {
	b.mu.RLock()
	middlewares := make([]Middleware, len(b.middlewares))
	copy(middlewares, b.middlewares)
	b.mu.RUnlock()

	chain := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := chain
		chain = func(event types.Event) error {
			return mw.Process(event, next)
		}
	}
	return chain(event)
}

// safeExecute выполняет обработчик, превращая панику в ошибку
func (b *EventBus) safeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("⚠️ Паника восстановлена: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	return fn()
}

// GetMetrics возвращает снимок метрик
func (b *EventBus) GetMetrics() types.EventBusMetrics {
	b.ringMu.Lock()
	buffered := b.ring.len()
	latest := b.ring.lastSeq
	b.ringMu.Unlock()

	b.metrics.Mu.RLock()
	defer b.metrics.Mu.RUnlock()

	subs := make(map[types.EventType]int, len(b.metrics.SubscribersCount))
	for k, v := range b.metrics.SubscribersCount {
		subs[k] = v
	}
	return types.EventBusMetrics{
		EventsPublished:  b.metrics.EventsPublished,
		EventsProcessed:  b.metrics.EventsProcessed,
		EventsFailed:     b.metrics.EventsFailed,
		BacklogOverflow:  b.metrics.BacklogOverflow,
		Evicted:          b.metrics.Evicted,
		Buffered:         buffered,
		LatestSeq:        latest,
		SubscribersCount: subs,
		ProcessingTime:   b.metrics.ProcessingTime,
	}
}

// GetSubscriberNames возвращает имена подписчиков (отсортированы)
func (b *EventBus) GetSubscriberNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.subscriptions))
	for name := range b.subscriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// startMetricsCollection периодически пишет метрики в лог
func (b *EventBus) startMetricsCollection(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(b.config.MetricsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				b.logMetrics()
			case <-stop:
				return
			}
		}
	}()
}

// logMetrics логирует метрики
func (b *EventBus) logMetrics() {
	metrics := b.GetMetrics()

	logger.Info("📊 EventBus метрики:")
	logger.Info("   Опубликовано: %d событий (последний seq %d)", metrics.EventsPublished, metrics.LatestSeq)
	logger.Info("   Обработано: %d, ошибок: %d", metrics.EventsProcessed, metrics.EventsFailed)
	logger.Info("   В буфере: %d, вытеснено: %d, потеряно читателями: %d",
		metrics.Buffered, metrics.Evicted, metrics.BacklogOverflow)

	if metrics.EventsProcessed > 0 {
		avg := metrics.ProcessingTime / time.Duration(metrics.EventsProcessed)
		logger.Info("   Среднее время обработки: %v", avg)
	}
}

// IsRunning возвращает true если EventBus запущен
func (b *EventBus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Name возвращает имя сервиса
func (b *EventBus) Name() string {
	return "EventBus"
}

// HealthCheck проверяет здоровье сервиса
func (b *EventBus) HealthCheck() bool {
	return b.IsRunning()
}
