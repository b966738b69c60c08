// Package logger предоставляет логирование с префиксом сервиса поверх zap.
// Поддерживается логирование времени выполнения функций.
package logger

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// slowThreshold — при LOG_LEVEL=info LogDuration пишет только вызовы дольше этого порога.
const slowThreshold = 100 * time.Millisecond

var (
	mu     sync.RWMutex
	prefix string
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base   *zap.SugaredLogger
	once   sync.Once
)

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func build() {
	level.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "service",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	var enc zapcore.Encoder
	if os.Getenv("APP_ENV") == "production" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	base = zap.New(core).Sugar()
}

func sugar() *zap.SugaredLogger {
	once.Do(build)
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return base
	}
	return base.Named(prefix)
}

// SetPrefix задаёт имя сервиса для всех последующих логов (например "collab", "gateway").
func SetPrefix(p string) {
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// SetLevel переопределяет уровень, прочитанный из LOG_LEVEL (значение из конфига).
func SetLevel(s string) {
	once.Do(build)
	level.SetLevel(parseLevel(s))
}

// Replace подменяет ядро логгера (в тестах — zaptest/observer).
func Replace(l *zap.Logger) {
	once.Do(build)
	mu.Lock()
	base = l.Sugar()
	mu.Unlock()
}

func Info(v ...any) { sugar().Info(v...) }

func Infof(format string, v ...any) { sugar().Infof(format, v...) }

func Debugf(format string, v ...any) { sugar().Debugf(format, v...) }

func Warnf(format string, v ...any) { sugar().Warnf(format, v...) }

func Error(v ...any) { sugar().Error(v...) }

func Errorf(format string, v ...any) { sugar().Errorf(format, v...) }

// Errorw пишет ошибку со структурированными полями: logger.Errorw("msg", "key", value, ...).
func Errorw(msg string, kv ...any) { sugar().Errorw(msg, kv...) }

// Sync сбрасывает буферы zap; вызывать перед выходом из main.
func Sync() {
	_ = sugar().Sync()
}

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if level.Enabled(zapcore.DebugLevel) || elapsed >= slowThreshold {
		sugar().Infow("duration", "fn", fn, "duration_ms", elapsed.Milliseconds())
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("Op", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
