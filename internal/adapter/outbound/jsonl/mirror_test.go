package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/farm-gate/farmgate/internal/adapter/outbound/memory"
	"github.com/farm-gate/farmgate/internal/domain/audit"
)

func newTestMirror(t *testing.T) (*Mirror, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	m, err := NewMirror(memory.NewAuditStore(), path)
	if err != nil {
		t.Fatalf("new mirror: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, path
}

func readLines(t *testing.T, path string) []audit.Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open mirror file: %v", err)
	}
	defer f.Close()
	var entries []audit.Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e audit.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestMirrorAppendsToPrimaryAndFile(t *testing.T) {
	m, path := newTestMirror(t)
	ctx := context.Background()

	err := m.Append(ctx,
		audit.Entry{SessionID: "s1", ActorID: "a1", EntryType: audit.EntryToolCall, ToolName: "fs_read", Decision: audit.DecisionAllow},
		audit.Entry{SessionID: "s1", ActorID: "a1", EntryType: audit.EntryViolation, ToolName: "fs_write", Decision: audit.DecisionDeny},
	)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	recent, err := m.RecentForSession(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("primary entries = %d, want 2", len(recent))
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("mirror lines = %d, want 2", len(lines))
	}
	if lines[0].ToolName != "fs_read" || lines[1].ToolName != "fs_write" {
		t.Errorf("mirror order = [%s, %s]", lines[0].ToolName, lines[1].ToolName)
	}
	if lines[0].ID == "" || lines[0].Timestamp.IsZero() {
		t.Errorf("mirror entry missing assigned fields: %+v", lines[0])
	}
	// Primary and file record the same ID.
	if lines[1].ID != recent[0].ID {
		t.Errorf("mirror ID %s != primary ID %s", lines[1].ID, recent[0].ID)
	}

	n, err := m.CountForSession(ctx, "s1")
	if err != nil || n != 2 {
		t.Errorf("count = (%d, %v), want (2, nil)", n, err)
	}
}

func TestMirrorRotates(t *testing.T) {
	m, path := newTestMirror(t)
	m.MaxBytes = 256
	ctx := context.Background()

	for range 8 {
		err := m.Append(ctx, audit.Entry{
			SessionID: "s1", ActorID: "a1", EntryType: audit.EntryToolCall,
			ToolName: "fs_read", Decision: audit.DecisionAllow,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	current := readLines(t, path)
	rotated := readLines(t, path+".1")
	if len(current) == 0 || len(rotated) == 0 {
		t.Errorf("entries per file = %d current, %d rotated, want both non-empty",
			len(current), len(rotated))
	}
	if n, _ := m.CountForSession(ctx, "s1"); n != 8 {
		t.Errorf("primary count = %d, want 8 regardless of rotation", n)
	}
}

func TestMirrorAppendAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	primary := memory.NewAuditStore()
	ctx := context.Background()

	m, err := NewMirror(primary, path)
	if err != nil {
		t.Fatalf("new mirror: %v", err)
	}
	if err := m.Append(ctx, audit.Entry{SessionID: "s1", EntryType: audit.EntryToolCall, Decision: audit.DecisionAllow}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	m, err = NewMirror(primary, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m.Close()
	if err := m.Append(ctx, audit.Entry{SessionID: "s1", EntryType: audit.EntryToolCall, Decision: audit.DecisionAllow}); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}

	if lines := readLines(t, path); len(lines) != 2 {
		t.Errorf("lines after reopen = %d, want 2 (appends, not truncation)", len(lines))
	}
}
