// application/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trading-bot-fleet/pkg/clock"
	"trading-bot-fleet/pkg/logger"
)

// Schedule определяет расписание задачи
type Schedule struct {
	// DailyAt: задача запускается раз в день в заданное UTC время
	// Every: задача запускается с заданным интервалом
	kind     scheduleKind
	hour     int
	minute   int
	interval time.Duration
}

type scheduleKind int

const (
	kindDaily    scheduleKind = iota // раз в сутки в HH:MM UTC
	kindInterval                     // каждые N единиц времени
)

// DailyAt создает расписание "каждый день в HH:MM UTC"
func DailyAt(hour, minute int) Schedule {
	return Schedule{kind: kindDaily, hour: hour, minute: minute}
}

// Every создает расписание "каждые N времени"
func Every(d time.Duration) Schedule {
	return Schedule{kind: kindInterval, interval: d}
}

// nextRun вычисляет время следующего запуска относительно now
func (s Schedule) nextRun(now time.Time) time.Time {
	switch s.kind {
	case kindDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		return next
	case kindInterval:
		return now.Add(s.interval)
	default:
		return now.Add(24 * time.Hour)
	}
}

// Job описывает одну планируемую задачу
type Job struct {
	Name        string
	Description string
	Schedule    Schedule
	Handler     func(ctx context.Context) error

	mu      sync.Mutex
	running bool
	nextRun time.Time
	lastRun time.Time
	lastErr error
	runs    int
	skipped int
}

// Status возвращает текущее состояние задачи
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		Name:        j.Name,
		Description: j.Description,
		NextRun:     j.nextRun,
		LastRun:     j.lastRun,
		LastErr:     j.lastErr,
		Runs:        j.runs,
		Skipped:     j.skipped,
		Running:     j.running,
	}
}

// JobStatus снапшот состояния задачи
type JobStatus struct {
	Name        string
	Description string
	NextRun     time.Time
	LastRun     time.Time
	LastErr     error
	Runs        int
	Skipped     int
	Running     bool
}

// Scheduler управляет всеми периодическими задачами сервиса.
// Задача, которая ещё выполняется к моменту следующего запуска, пропускает его.
type Scheduler struct {
	jobs       []*Job
	mu         sync.RWMutex
	clock      clock.Clock
	resolution time.Duration
	jobTimeout time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// Option настраивает планировщик
type Option func(*Scheduler)

// WithClock подменяет источник времени
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithResolution задаёт период проверки расписания
func WithResolution(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.resolution = d
		}
	}
}

// WithJobTimeout ограничивает время одного запуска задачи
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// New создает новый планировщик
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:      clock.New(),
		resolution: time.Second,
		jobTimeout: 5 * time.Minute,
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register добавляет задачу в планировщик.
// Должен вызываться до Start().
func (s *Scheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.nextRun = job.Schedule.nextRun(s.clock.Now().UTC())
	s.jobs = append(s.jobs, job)

	logger.Info("📋 [Scheduler] Зарегистрирована задача %q, первый запуск в %s",
		job.Name, job.nextRun.Format("2006-01-02 15:04:05 UTC"))
}

// Start запускает цикл планировщика в фоновой горутине
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	logger.Info("✅ [Scheduler] Запущен (%d задач)", len(s.jobs))
}

// Stop останавливает планировщик и ждёт завершения текущих задач
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	logger.Info("🛑 [Scheduler] Остановлен")
}

// Jobs возвращает статус всех задач
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	statuses := make([]JobStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = j.Status()
	}
	return statuses
}

// loop - основной цикл: с периодом resolution проверяет, какие задачи нужно запустить
func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopChan:
			return
		}
	}
}

// RunNow запускает задачу по имени вне расписания и ждёт результата
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	var job *Job
	for _, j := range s.jobs {
		if j.Name == name {
			job = j
			break
		}
	}
	s.mu.RUnlock()

	if job == nil {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	if !job.begin() {
		return fmt.Errorf("scheduler: job %q is already running", name)
	}
	return s.execute(ctx, job)
}

// tick проверяет все задачи и запускает те, у которых наступило время
func (s *Scheduler) tick() {
	now := s.clock.Now().UTC()

	s.mu.RLock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	for _, job := range jobs {
		job.mu.Lock()
		due := !now.Before(job.nextRun)
		if due && job.running {
			job.skipped++
			job.nextRun = job.Schedule.nextRun(now)
			due = false
			logger.Debug("⏭️ [Scheduler] Задача %q ещё выполняется, запуск пропущен", job.Name)
		}
		job.mu.Unlock()

		if due && job.begin() {
			s.wg.Add(1)
			go s.run(job)
		}
	}
}

// Wait ждёт завершения запущенных задач
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// begin помечает задачу выполняющейся; false - она уже идёт
func (j *Job) begin() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return false
	}
	j.running = true
	return true
}

// run выполняет одну задачу по расписанию
func (s *Scheduler) run(job *Job) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.execute(ctx, job)
}

// execute выполняет задачу и обновляет её состояние
func (s *Scheduler) execute(ctx context.Context, job *Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	logger.Debug("▶️  [Scheduler] Запуск задачи %q", job.Name)
	start := s.clock.Now()

	err := job.Handler(ctx)

	elapsed := s.clock.Now().Sub(start)

	job.mu.Lock()
	job.running = false
	job.lastRun = start
	job.lastErr = err
	job.runs++
	job.nextRun = job.Schedule.nextRun(s.clock.Now().UTC())
	job.mu.Unlock()

	if err != nil {
		logger.Error("❌ [Scheduler] Задача %q завершилась с ошибкой за %v: %v", job.Name, elapsed, err)
	} else {
		logger.Debug("✅ [Scheduler] Задача %q выполнена за %v", job.Name, elapsed)
	}
	return err
}
