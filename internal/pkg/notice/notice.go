// Package notice carries short user-visible messages about completed or
// failed operations.
package notice

import (
	"log/slog"
	"sync"
	"time"
)

// Level is the severity of a notice.
type Level string

// Notice levels.
const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// DefaultCapacity is the number of notices Log keeps.
const DefaultCapacity = 50

// Sink receives user-visible notices.
type Sink interface {
	Success(msg string)
	Error(msg string)
}

// Notice is a single recorded message.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Log is a bounded in-memory Sink. Oldest notices are dropped first.
type Log struct {
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	ring  []Notice
	next  int
	count int
}

// NewLog creates a Log holding up to capacity notices.
func NewLog(capacity int, logger *slog.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		logger: logger,
		now:    time.Now,
		ring:   make([]Notice, capacity),
	}
}

// Success records a success notice.
func (l *Log) Success(msg string) {
	l.logger.Info("notice", "level", LevelSuccess, "message", msg)
	l.add(LevelSuccess, msg)
}

// Error records an error notice.
func (l *Log) Error(msg string) {
	l.logger.Warn("notice", "level", LevelError, "message", msg)
	l.add(LevelError, msg)
}

// Recent returns up to limit notices, newest first. limit <= 0 returns all.
func (l *Log) Recent(limit int) []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Notice, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}

func (l *Log) add(level Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = Notice{Level: level, Message: msg, Time: l.now()}
	l.next = (l.next + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
}

// Discard is a Sink that drops every notice.
var Discard Sink = discard{}

type discard struct{}

func (discard) Success(string) {}
func (discard) Error(string)   {}
