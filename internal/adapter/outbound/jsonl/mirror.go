// Package jsonl mirrors the audit trail to a newline-delimited JSON file
// for offline inspection and log shipping. The mirror wraps the primary
// store; queries are served from the primary, writes go to both.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farm-gate/farmgate/internal/domain/audit"
)

// defaultMaxBytes rotates the mirror file once it exceeds 10 MiB.
const defaultMaxBytes = 10 << 20

// Mirror implements audit.Store by delegating to a primary store and
// appending each entry as one JSON line to a size-rotated file.
type Mirror struct {
	primary audit.Store
	path    string

	// MaxBytes bounds the file before rotation; zero selects the default.
	MaxBytes int64

	mu   sync.Mutex
	file *os.File
	size int64
}

// Compile-time interface verification.
var _ audit.Store = (*Mirror)(nil)

// NewMirror opens (appending) the mirror file at path.
func NewMirror(primary audit.Store, path string) (*Mirror, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit mirror: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat audit mirror: %w", err)
	}
	return &Mirror{
		primary: primary,
		path:    path,
		file:    f,
		size:    info.Size(),
	}, nil
}

// Append assigns IDs and timestamps when unset so both sinks record the
// same values, writes to the primary store, then mirrors to the file. A
// mirror write failure is returned but the primary already holds the entry.
func (m *Mirror) Append(ctx context.Context, entries ...audit.Entry) error {
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.New().String()
		}
		if entries[i].Timestamp.IsZero() {
			entries[i].Timestamp = time.Now().UTC()
		}
	}
	if err := m.primary.Append(ctx, entries...); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode audit entry: %w", err)
		}
		if err := m.writeLine(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// RecentForSession delegates to the primary store.
func (m *Mirror) RecentForSession(ctx context.Context, sessionID string, limit int) ([]audit.Entry, error) {
	return m.primary.RecentForSession(ctx, sessionID, limit)
}

// CountForSession delegates to the primary store.
func (m *Mirror) CountForSession(ctx context.Context, sessionID string) (int, error) {
	return m.primary.CountForSession(ctx, sessionID)
}

// Close flushes and closes the mirror file. The primary store is untouched.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// writeLine appends one line, rotating first if the file is full. Caller
// holds the mutex.
func (m *Mirror) writeLine(line []byte) error {
	maxBytes := m.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if m.size > 0 && m.size+int64(len(line)) > maxBytes {
		if err := m.rotate(); err != nil {
			return err
		}
	}
	n, err := m.file.Write(line)
	m.size += int64(n)
	if err != nil {
		return fmt.Errorf("write audit mirror: %w", err)
	}
	return nil
}

// rotate moves the current file to path.1 (replacing any previous rotation)
// and starts a fresh file. One rotation generation is kept.
func (m *Mirror) rotate() error {
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("rotate audit mirror: %w", err)
	}
	if err := os.Rename(m.path, m.path+".1"); err != nil {
		return fmt.Errorf("rotate audit mirror: %w", err)
	}
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("rotate audit mirror: %w", err)
	}
	m.file = f
	m.size = 0
	return nil
}
