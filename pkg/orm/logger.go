package orm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger sends gorm's SQL trace to zap.
type GormLogger struct {
	ZapLogger *zap.Logger
	Config    gormlogger.Config
}

var gormLevels = map[string]gormlogger.LogLevel{
	"info":   gormlogger.Info,
	"warn":   gormlogger.Warn,
	"error":  gormlogger.Error,
	"silent": gormlogger.Silent,
	"none":   gormlogger.Silent,
}

func NewGormLogger(slowThreshold time.Duration, logLevel string) gormlogger.Interface {
	ll, ok := gormLevels[strings.ToLower(logLevel)]
	if !ok {
		ll = gormlogger.Error
	}

	return &GormLogger{
		ZapLogger: zap.L().Named("gorm"),
		Config: gormlogger.Config{
			SlowThreshold:             slowThreshold,
			LogLevel:                  ll,
			IgnoreRecordNotFoundError: true,
		},
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newlogger := *l
	newlogger.Config.LogLevel = level
	return &newlogger
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= gormlogger.Info {
		l.ZapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= gormlogger.Warn {
		l.ZapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= gormlogger.Error {
		l.ZapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace logs failed statements at error, slow ones at warn and the rest at debug.
// A blocking pg_advisory_lock is expected to be slow, so long waits show up as slow sql.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.Config.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !(l.Config.IgnoreRecordNotFoundError && errors.Is(err, gormlogger.ErrRecordNotFound)):
		if l.Config.LogLevel >= gormlogger.Error {
			l.ZapLogger.Error("gorm trace", append(fields, zap.Error(err))...)
		}
	case l.Config.SlowThreshold != 0 && elapsed > l.Config.SlowThreshold && l.Config.LogLevel >= gormlogger.Warn:
		l.ZapLogger.Warn("gorm slow sql", fields...)
	case l.Config.LogLevel >= gormlogger.Info:
		l.ZapLogger.Debug("gorm trace", fields...)
	}
}
