package webapi

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LogEntry represents console output
type LogEntry struct {
	Level   string // log, debug, info, warn, error
	Message string
	Time    time.Time
}

// Console routes guest console output to zap and keeps a transcript.
type Console struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries []LogEntry
	limit   int
}

// NewConsole creates a console keeping at most limit entries (0 = 1000).
func NewConsole(logger *zap.Logger, limit int) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 1000
	}
	return &Console{
		logger: logger.With(zap.String("component", "console")),
		limit:  limit,
	}
}

// Log writes args at level.
func (c *Console) Log(level string, args ...any) {
	parts := make([]string, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			parts[i] = s
		} else {
			parts[i] = DebugString(a)
		}
	}
	msg := strings.Join(parts, " ")

	switch level {
	case "debug":
		c.logger.Debug(msg)
	case "warn":
		c.logger.Warn(msg)
	case "error":
		c.logger.Error(msg)
	default:
		c.logger.Info(msg, zap.String("level", level))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, LogEntry{Level: level, Message: msg, Time: time.Now()})
	if len(c.entries) > c.limit {
		c.entries = c.entries[len(c.entries)-c.limit:]
	}
}

// Entries returns a copy of the transcript.
func (c *Console) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ConstructorName names the object for diagnostics.
func (c *Console) ConstructorName() string {
	return "console"
}
