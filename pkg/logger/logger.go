// pkg/logger/logger.go

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Уровни логирования
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

var levelPriority = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

type Logger struct {
	mu        sync.Mutex
	logFile   *os.File
	out       io.Writer
	logLevel  string // Уровень логирования
	debugMode bool
}

// NewLogger создает логгер, пишущий в консоль и (если путь задан) в файл
func NewLogger(logPath string, logLevel string, debug bool) (*Logger, error) {
	l := &Logger{
		out:       os.Stdout,
		logLevel:  strings.ToUpper(logLevel),
		debugMode: debug,
	}

	if logPath == "" {
		return l, nil
	}

	if dir := filepath.Dir(logPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, err
	}

	l.logFile = file
	l.out = io.MultiWriter(os.Stdout, file)
	return l, nil
}

// NewLoggerWithWriter создает логгер поверх произвольного writer (тесты, сборщики логов)
func NewLoggerWithWriter(w io.Writer, logLevel string) *Logger {
	return &Logger{
		out:      w,
		logLevel: strings.ToUpper(logLevel),
	}
}

// shouldLog проверяет, нужно ли логировать сообщение на данном уровне
func (l *Logger) shouldLog(level string) bool {
	currentPriority, ok1 := levelPriority[l.logLevel]
	msgPriority, ok2 := levelPriority[level]

	if !ok1 || !ok2 {
		return true // Если неизвестный уровень, логируем всё
	}

	return msgPriority >= currentPriority
}

func (l *Logger) log(level string, format string, v ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	msg := strings.TrimRight(fmt.Sprintf(format, v...), "\n")
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	// Цвета для консоли
	color := ""
	reset := ""
	if l.debugMode {
		switch level {
		case LevelDebug:
			color = "\033[36m" // Cyan
		case LevelInfo:
			color = "\033[32m" // Green
		case LevelWarn:
			color = "\033[33m" // Yellow
		case LevelError:
			color = "\033[31m" // Red
		case LevelFatal:
			color = "\033[35m" // Magenta
		}
		reset = "\033[0m"
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s[%s] %s %s%s\n", color, level, timestamp, msg, reset)
}

// Методы для разных уровней
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(LevelDebug, format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.log(LevelInfo, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(LevelWarn, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.log(LevelError, format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.log(LevelFatal, format, v...)
	os.Exit(1)
}

func (l *Logger) Status(stats map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintln(l.out, strings.Repeat("─", 50))
	fmt.Fprintln(l.out, "📊 СТАТУС ФЛОТА")
	for key, value := range stats {
		fmt.Fprintf(l.out, "   %-20s: %s\n", key, value)
	}
	fmt.Fprintln(l.out, strings.Repeat("─", 50))
}

// Transition пишет однострочную запись о переходе бота между состояниями
func (l *Logger) Transition(botID, from, to, reason, actor string) {
	icon := "🔁"
	switch to {
	case "quarantined":
		icon = "🔒"
	case "deleted":
		icon = "🗑️"
	case "live":
		icon = "🚀"
	case "paused":
		icon = "⏸️"
	case "active":
		icon = "▶️"
	}

	if actor == "" {
		actor = "system"
	}

	l.Info("%s ПЕРЕХОД: бот %s %s → %s (причина: %s, инициатор: %s)",
		icon, botID, from, to, reason, actor)
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.logFile.Close()
	}
}
