package worker

import (
	"sync"

	"go.uber.org/zap"
)

// Console is the host's one-way diagnostic log channel. Log is
// fire-and-forget: failures to emit are not observable to the caller.
type Console interface {
	Log(msg string)
}

// zapConsole routes console lines through a zap logger.
type zapConsole struct {
	log *zap.Logger
}

// NewZapConsole wraps a zap logger as a Console.
func NewZapConsole(log *zap.Logger) Console {
	return &zapConsole{log: log}
}

func (c *zapConsole) Log(msg string) {
	c.log.Info(msg)
}

// CaptureConsole records every line for later inspection. Intended for
// tests. Safe for concurrent use.
type CaptureConsole struct {
	mu    sync.Mutex
	lines []string
}

// Log appends the line to the capture buffer.
func (c *CaptureConsole) Log(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, msg)
}

// Lines returns a copy of everything logged so far.
func (c *CaptureConsole) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}
