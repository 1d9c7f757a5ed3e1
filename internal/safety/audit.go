package safety

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ErrNilWriter is returned by Log on a logger with no writer.
var ErrNilWriter = errors.New("audit logger: writer is nil")

// Audit outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeDenied   = "denied"
	OutcomeConfirm  = "confirmation_requested"
	OutcomeInFlight = "in_flight"
)

// AuditEntry records one tool invocation.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Tool      string         `json:"tool"`
	Entity    string         `json:"entity,omitempty"`
	Params    map[string]any `json:"params"`
	Outcome   string         `json:"outcome"`
	Detail    string         `json:"detail,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
}

// AuditLogger appends AuditEntry records as JSON lines. Safe for concurrent use.
type AuditLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewAuditLogger writes to w. A nil w yields a nil logger.
func NewAuditLogger(w io.Writer) *AuditLogger {
	if w == nil {
		return nil
	}
	return &AuditLogger{w: w}
}

// OpenAuditLog opens (or creates) path for appending and returns a logger
// over it together with the file's Close.
func OpenAuditLog(path string) (*AuditLogger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("safety: open audit log %q: %w", path, err)
	}
	return NewAuditLogger(f), f.Close, nil
}

// Log writes entry as a single line.
func (l *AuditLogger) Log(entry AuditEntry) error {
	if l == nil || l.w == nil {
		return ErrNilWriter
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit logger: marshal: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(data)
	return err
}
