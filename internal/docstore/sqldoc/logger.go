package sqldoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slogLogger routes GORM logging through slog. Stale-version and
// duplicate-key errors are expected under contention and logged at debug.
type slogLogger struct {
	logger *slog.Logger
	Config logger.Config
}

func newLogger(l *slog.Logger) *slogLogger {
	return &slogLogger{
		logger: l,
		Config: logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	}
}

// LogMode sets the logging level and returns a new interface instance.
func (l *slogLogger) LogMode(level logger.LogLevel) logger.Interface {
	newlogger := *l
	newlogger.Config.LogLevel = level
	return &newlogger
}

func (l *slogLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, logger.Info, slog.LevelInfo, msg, data)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, logger.Warn, slog.LevelWarn, msg, data)
}

func (l *slogLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, logger.Error, slog.LevelError, msg, data)
}

func (l *slogLogger) printf(ctx context.Context, threshold logger.LogLevel, level slog.Level, msg string, data []interface{}) {
	if l.Config.LogLevel >= threshold {
		l.logger.Log(ctx, level, fmt.Sprintf(msg, data...))
	}
}

// Trace logs failed and slow statements, and every statement at Info.
func (l *slogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Config.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	attrs := []any{slog.String("sql", sql), slog.Int64("rows", rows), slog.Duration("elapsed", elapsed)}
	slow := l.Config.SlowThreshold != 0 && elapsed > l.Config.SlowThreshold

	switch {
	case err != nil && isRetryable(err):
		l.logger.DebugContext(ctx, "document write lost a race", append(attrs, slog.String("error", err.Error()))...)
	case err != nil && errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil && l.Config.LogLevel >= logger.Error:
		l.logger.ErrorContext(ctx, "sql statement failed", append(attrs, slog.String("error", err.Error()))...)
	case slow && l.Config.LogLevel >= logger.Warn:
		l.logger.WarnContext(ctx, "slow sql statement", attrs...)
	case l.Config.LogLevel >= logger.Info:
		l.logger.InfoContext(ctx, "sql statement", attrs...)
	}
}
