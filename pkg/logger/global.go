// pkg/logger/global.go
package logger

import "os"

var globalLogger *Logger

func InitGlobal(logPath, logLevel string, debug bool) error {
	l, err := NewLogger(logPath, logLevel, debug)
	if err != nil {
		return err
	}
	globalLogger = l
	return nil
}

// SetGlobal подменяет глобальный логгер (используется в тестах)
func SetGlobal(l *Logger) {
	globalLogger = l
}

func GetLogger() *Logger {
	if globalLogger == nil {
		// Fallback к консольному логгеру
		globalLogger = NewLoggerWithWriter(os.Stdout, LevelInfo)
	}
	return globalLogger
}

// Глобальные методы для удобства
func Debug(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Debug(format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Info(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Warn(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Error(format, v...)
	}
}

func Transition(botID, from, to, reason, actor string) {
	if globalLogger != nil {
		globalLogger.Transition(botID, from, to, reason, actor)
	}
}
