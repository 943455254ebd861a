package logger

import (
	"sync"
	"time"
)

// RateLimiter wraps a Logger and suppresses repeats of the same (level,
// message, source) triple within a window instead of flooding the log with
// an identical line on every capture tick. The number of suppressed repeats
// is logged in one summary line when the next occurrence finds the window
// closed, or when Flush runs.
type RateLimiter struct {
	logger *Logger
	window time.Duration

	mu      sync.Mutex
	entries map[string]*rateEntry
}

type rateEntry struct {
	firstSeen time.Time
	count     int
	source    string
}

// DefaultRateLimitWindow is the span over which repeats of one line are
// collapsed: a condition re-logged on every capture tick is written once
// per window, plus a count of what was suppressed.
const DefaultRateLimitWindow = 10 * time.Second

// NewRateLimiter wraps logger with repeat suppression over window. A
// non-positive window falls back to DefaultRateLimitWindow.
func NewRateLimiter(logger *Logger, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RateLimiter{
		logger:  logger,
		window:  window,
		entries: make(map[string]*rateEntry),
	}
}

// Warn logs msg at WARN level, or silently counts it as a repeat if the same
// (source, msg) pair was already logged within the window.
func (r *RateLimiter) Warn(source, msg string, keysAndValues ...interface{}) {
	r.log("WARN", source, msg, func() { r.logger.Warn(msg, keysAndValues...) })
}

// Error logs msg at ERROR level with the same suppression behavior as Warn.
func (r *RateLimiter) Error(source, msg string, keysAndValues ...interface{}) {
	r.log("ERROR", source, msg, func() { r.logger.Error(msg, keysAndValues...) })
}

func (r *RateLimiter) log(level, source, msg string, emit func()) {
	key := level + "|" + source + "|" + msg

	r.mu.Lock()
	entry, seen := r.entries[key]
	now := time.Now()

	if !seen || now.Sub(entry.firstSeen) > r.window {
		var dropped int
		if seen {
			dropped = entry.count
		}
		r.entries[key] = &rateEntry{firstSeen: now, count: 0, source: source}
		r.mu.Unlock()
		if dropped > 0 {
			r.logger.Warn("repeated log line suppressed", "source", source, "count", dropped)
		}
		emit()
		return
	}

	entry.count++
	suppressed := entry.count
	r.mu.Unlock()

	if suppressed == 1 {
		r.logger.Debug("suppressing repeated log line", "source", source, "message", msg, "window", r.window)
	}
}

// SourceLogger pins a RateLimiter to one source (a camera ID, a delivery
// queue name) so it can be handed to code that only knows the plain
// Debug/Info/Warn/Error Logger shape and has no notion of "source" itself.
// Debug and Info pass straight through since rate limiting targets the
// warning/error spam from a camera flapping offline or a delivery retrying,
// not routine operational logging.
type SourceLogger struct {
	base   *Logger
	rl     *RateLimiter
	source string
}

// NewSourceLogger returns a Logger-shaped view of rl scoped to source.
func NewSourceLogger(base *Logger, rl *RateLimiter, source string) *SourceLogger {
	return &SourceLogger{base: base, rl: rl, source: source}
}

func (s *SourceLogger) Debug(msg string, keysAndValues ...interface{}) {
	s.base.Debug(msg, keysAndValues...)
}

func (s *SourceLogger) Info(msg string, keysAndValues ...interface{}) {
	s.base.Info(msg, keysAndValues...)
}

func (s *SourceLogger) Warn(msg string, keysAndValues ...interface{}) {
	s.rl.Warn(s.source, msg, keysAndValues...)
}

func (s *SourceLogger) Error(msg string, keysAndValues ...interface{}) {
	s.rl.Error(s.source, msg, keysAndValues...)
}

// Flush logs a summary for every entry with suppressed repeats and resets
// its window. Intended to be called periodically (e.g. once per minute) so
// suppressed conditions are never silently lost, only batched.
func (r *RateLimiter) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.entries {
		if entry.count > 0 {
			r.logger.Warn("repeated log line suppressed", "source", entry.source, "count", entry.count)
		}
		delete(r.entries, key)
	}
}
