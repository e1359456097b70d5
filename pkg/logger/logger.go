package logger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production JSON logger at the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

var dedup = &deduplicator{
	flushDelay: 2 * time.Second,
	emit: func(msg string) {
		zap.L().Info(msg)
	},
}

// deduplicator collapses runs of identical messages into one line with a
// repeat count, flushed once the run has been quiet for flushDelay.
type deduplicator struct {
	mu         sync.Mutex
	lastMsg    string
	count      int
	flushDelay time.Duration
	timer      *time.Timer
	emit       func(string)
}

func (d *deduplicator) flush() {
	if d.count == 0 {
		return
	}
	if d.count == 1 {
		d.emit(d.lastMsg)
	} else {
		d.emit(fmt.Sprintf("%s (%d)", d.lastMsg, d.count))
	}
	d.count = 0
	d.lastMsg = ""
}

func (d *deduplicator) log(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	if msg == d.lastMsg {
		d.count++
	} else {
		d.flush()
		d.lastMsg = msg
		d.count = 1
	}
	d.timer = time.AfterFunc(d.flushDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.flush()
	})
}

// Dedup logs a formatted message at info level through the global zap logger,
// collapsing immediate repeats (cache hits, polling) into "msg (n)".
func Dedup(format string, args ...any) {
	dedup.log(fmt.Sprintf(format, args...))
}
