// Package logger holds the process-wide zap logger used by every vmdash
// component.
//
// The CLI logs to stderr in console form so stdout stays clean for tables and
// JSON; the fake backend and the live dashboard usually run with json. The
// level is shared through a zap.AtomicLevel and can be changed while running.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global      *zap.Logger
	atomicLevel = zap.NewAtomicLevel()
	once        sync.Once
)

// Init builds the global logger once; later calls are no-ops. format is
// "console" or anything else for json. outputs are zap sink URLs and default
// to stderr.
func Init(level, format string, outputs ...string) error {
	var initErr error
	once.Do(func() {
		if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
			initErr = fmt.Errorf("parse log level %q: %w", level, err)
			return
		}
		cfg := configFor(format)
		if len(outputs) > 0 {
			cfg.OutputPaths = outputs
		}
		// Skip emit and the package-level helper so callers are reported.
		l, err := cfg.Build(zap.AddCallerSkip(2))
		if err != nil {
			initErr = fmt.Errorf("build logger: %w", err)
			return
		}
		global = l
	})
	return initErr
}

func configFor(format string) zap.Config {
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = atomicLevel
	cfg.OutputPaths = []string{"stderr"}
	return cfg
}

// SetLevel switches verbosity without rebuilding the logger.
func SetLevel(level string) error {
	return atomicLevel.UnmarshalText([]byte(level))
}

func GetLevel() zapcore.Level {
	return atomicLevel.Level()
}

// LevelHandler serves the shared level over HTTP: GET reads it, PUT with
// {"level":"debug"} changes it.
func LevelHandler() *zap.AtomicLevel {
	return &atomicLevel
}

// L returns the global logger. It panics before Init.
func L() *zap.Logger {
	if global == nil {
		panic("logger.Init() must be called before logger.L()")
	}
	return global
}

// Named tags every entry with component. The child logs its own call site.
func Named(component string) *zap.Logger {
	return L().WithOptions(zap.AddCallerSkip(-2)).With(zap.String("component", component))
}

func emit(lvl zapcore.Level, msg string, fields []zap.Field) {
	if ce := L().Check(lvl, msg); ce != nil {
		ce.Write(fields...)
	}
}

func Debug(msg string, fields ...zap.Field) { emit(zapcore.DebugLevel, msg, fields) }

func Info(msg string, fields ...zap.Field) { emit(zapcore.InfoLevel, msg, fields) }

func Warn(msg string, fields ...zap.Field) { emit(zapcore.WarnLevel, msg, fields) }

func Error(msg string, fields ...zap.Field) { emit(zapcore.ErrorLevel, msg, fields) }

// Sync flushes buffered entries. It is safe to call before Init.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}
