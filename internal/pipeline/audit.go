package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fyrsmithlabs/vigild/internal/decision"
)

// Entry is one line of the decision audit trail. Decisions and advisory
// commentary are separate lines: advisory results arrive asynchronously,
// potentially after the decision was already recorded, and must never
// block or reorder it.
type Entry struct {
	Kind            string             `json:"kind"` // decision | advisory
	RecordedAt      time.Time          `json:"recorded_at"`
	Decision        *decision.Decision `json:"decision,omitempty"`
	SnapshotID      string             `json:"snapshot_id,omitempty"`
	SnapshotSummary string             `json:"snapshot_summary,omitempty"`
	Advisory        string             `json:"advisory,omitempty"`
}

// AuditLog is an append-only JSONL sink for decisions plus a bounded
// in-memory ring for the inspection API.
type AuditLog struct {
	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	recent []Entry
	keep   int
	now    func() time.Time
}

const defaultKeep = 256

// NewAuditLog opens (or creates) the JSONL file in append mode.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLog{
		f:    f,
		enc:  json.NewEncoder(f),
		keep: defaultKeep,
		now:  time.Now,
	}, nil
}

// NewMemoryAuditLog keeps entries only in memory, for tests and replay.
func NewMemoryAuditLog() *AuditLog {
	return &AuditLog{keep: defaultKeep, now: time.Now}
}

// RecordDecision appends a decision entry.
func (a *AuditLog) RecordDecision(dec decision.Decision, snapshotSummary string) error {
	e := Entry{
		Kind:            "decision",
		RecordedAt:      a.now().UTC(),
		Decision:        &dec,
		SnapshotID:      dec.SnapshotID,
		SnapshotSummary: snapshotSummary,
	}
	return a.append(e)
}

// AttachAdvisory appends an advisory entry referencing the snapshot the
// commentary belongs to.
func (a *AuditLog) AttachAdvisory(snapshotID, text string) error {
	e := Entry{
		Kind:       "advisory",
		RecordedAt: a.now().UTC(),
		SnapshotID: snapshotID,
		Advisory:   text,
	}
	return a.append(e)
}

func (a *AuditLog) append(e Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.recent = append(a.recent, e)
	if len(a.recent) > a.keep {
		a.recent = a.recent[len(a.recent)-a.keep:]
	}
	if a.enc != nil {
		if err := a.enc.Encode(e); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
	}
	return nil
}

// Recent returns up to n most recent entries, oldest first.
func (a *AuditLog) Recent(n int) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 || n > len(a.recent) {
		n = len(a.recent)
	}
	out := make([]Entry, n)
	copy(out, a.recent[len(a.recent)-n:])
	return out
}

// Close flushes and closes the file sink.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}
