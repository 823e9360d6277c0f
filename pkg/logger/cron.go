package logger

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type cronLogger struct {
	sugar *zap.SugaredLogger
}

// Cron adapts a zap logger to the cron scheduler. Scheduler chatter is logged at debug level.
func Cron(base *zap.Logger) cron.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return cronLogger{sugar: base.Named("cron").Sugar()}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
