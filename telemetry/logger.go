package telemetry

import (
	"context"

	tlog "go.temporal.io/sdk/log"
	"goa.design/clue/log"
)

// TemporalLogger adapts clue logging to the Temporal SDK logger interface so
// worker and client internals log through the same pipeline as the rest of
// the service. The context carries clue's formatting and debug settings.
type TemporalLogger struct {
	ctx context.Context
}

// NewTemporalLogger returns a Temporal SDK logger writing through clue.
func NewTemporalLogger(ctx context.Context) tlog.Logger {
	return TemporalLogger{ctx: ctx}
}

// Debug implements log.Logger.
func (l TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	log.Debug(l.ctx, fielders(msg, keyvals)...)
}

// Info implements log.Logger.
func (l TemporalLogger) Info(msg string, keyvals ...interface{}) {
	log.Info(l.ctx, fielders(msg, keyvals)...)
}

// Warn implements log.Logger.
func (l TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	fs := append(fielders(msg, keyvals), log.KV{K: "severity", V: "warning"})
	log.Warn(l.ctx, fs...)
}

// Error implements log.Logger.
func (l TemporalLogger) Error(msg string, keyvals ...interface{}) {
	log.Error(l.ctx, nil, fielders(msg, keyvals)...)
}

// fielders converts Temporal's key-value pairs into clue fielders, leading
// with the message itself. Non-string keys are skipped; an odd trailing key
// pairs with nil.
func fielders(msg string, keyvals []interface{}) []log.Fielder {
	fs := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v interface{}
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		fs = append(fs, log.KV{K: key, V: v})
	}
	return fs
}
