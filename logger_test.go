package lintas

import (
	"testing"
	"time"
)

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()
	if cfg.Enabled {
		t.Error("debug enabled by default")
	}
	if !cfg.LogRetries || !cfg.LogTransport || !cfg.LogAuth || !cfg.LogEndpoint {
		t.Error("per-area flags should default on so enabling the master switch is enough")
	}
	if cfg.InvocationIDGen != nil {
		t.Error("InvocationIDGen set by default")
	}
}

func TestSimpleLoggerImplementsLogger(t *testing.T) {
	var l Logger = NewSimpleLogger()
	// Smoke test: none of these may panic, including odd-length pairs.
	l.Debug("debug message", "key", "value")
	l.Info("info message", "attempt", 1, "delay", 100*time.Millisecond)
	l.Warn("warn message", "dangling-key")
	l.Error("error message")
}

// recordingLogger captures log lines for assertions in this package's
// tests.
type recordingLogger struct {
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	kv    []interface{}
}

func (r *recordingLogger) append(level, msg string, kv []interface{}) {
	r.entries = append(r.entries, logEntry{level: level, msg: msg, kv: kv})
}

func (r *recordingLogger) Debug(msg string, kv ...interface{}) { r.append("debug", msg, kv) }
func (r *recordingLogger) Info(msg string, kv ...interface{})  { r.append("info", msg, kv) }
func (r *recordingLogger) Warn(msg string, kv ...interface{})  { r.append("warn", msg, kv) }
func (r *recordingLogger) Error(msg string, kv ...interface{}) { r.append("error", msg, kv) }

func TestDebugLogRespectsFlags(t *testing.T) {
	rec := &recordingLogger{}
	c := New(
		WithStaticEndpoint("https://api.example.com"),
		WithLogger(rec),
	)
	// Debug master switch is off: nothing logs.
	c.debugLog(true, "should not appear")
	if len(rec.entries) != 0 {
		t.Fatalf("logged %d entries with debug disabled", len(rec.entries))
	}

	c.debug.Enabled = true
	c.debugLog(false, "area disabled")
	c.debugLog(true, "area enabled", "k", "v")
	if len(rec.entries) != 1 || rec.entries[0].msg != "area enabled" {
		t.Errorf("entries = %+v", rec.entries)
	}
}
