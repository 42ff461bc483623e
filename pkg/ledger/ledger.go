// Package ledger — append-only, hash-chained run log.
//
// The router appends one entry per completed execute call, success or
// failure. Each entry is content-hashed over its canonical JSON form and
// chained to its predecessor; Verify walks the whole chain.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// EntryType categorizes a run-log entry.
type EntryType string

const (
	EntryExecuteCall  EntryType = "EXECUTE_CALL"
	EntryGrantChange  EntryType = "GRANT_CHANGE"
	EntryWorldGenesis EntryType = "WORLD_GENESIS"
)

// Entry is an immutable, hash-chained run-log entry.
type Entry struct {
	Sequence    uint64         `json:"sequence"`
	EntryType   EntryType      `json:"entry_type"`
	ContentHash string         `json:"content_hash"`
	PrevHash    string         `json:"prev_hash"`
	Timestamp   time.Time      `json:"timestamp"`
	Actor       string         `json:"actor,omitempty"`
	Data        map[string]any `json:"data"`
}

// RunLedger is an append-only, hash-chained log. Safe for concurrent readers;
// appends are serialized.
type RunLedger struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time
}

// NewRunLedger creates an empty run ledger.
func NewRunLedger() *RunLedger {
	return &RunLedger{
		headHash: "genesis",
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (l *RunLedger) WithClock(clock func() time.Time) *RunLedger {
	l.clock = clock
	return l
}

// Append adds an entry and returns its sequence number.
func (l *RunLedger) Append(entryType EntryType, actor string, data map[string]any) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	contentHash, err := hashEntry(seq, entryType, data, l.headHash)
	if err != nil {
		return 0, err
	}

	l.entries = append(l.entries, Entry{
		Sequence:    seq,
		EntryType:   entryType,
		ContentHash: contentHash,
		PrevHash:    l.headHash,
		Timestamp:   l.clock(),
		Actor:       actor,
		Data:        data,
	})
	l.headHash = contentHash
	return seq, nil
}

// Get retrieves an entry by sequence number.
func (l *RunLedger) Get(seq uint64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq == 0 || seq > uint64(len(l.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	entry := l.entries[seq-1]
	return &entry, nil
}

// Head returns the current head hash.
func (l *RunLedger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *RunLedger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify checks the integrity of the entire chain.
func (l *RunLedger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}
		computed, err := hashEntry(entry.Sequence, entry.EntryType, entry.Data, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to rehash entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}
	return true, "chain verified"
}

// hashEntry digests the canonical JSON (RFC 8785) of the hash input, so the
// chain is stable across map iteration order and re-marshaling.
func hashEntry(seq uint64, entryType EntryType, data map[string]any, prevHash string) (string, error) {
	raw, err := json.Marshal(struct {
		Seq      uint64         `json:"seq"`
		Type     EntryType      `json:"type"`
		Data     map[string]any `json:"data"`
		PrevHash string         `json:"prev"`
	}{seq, entryType, data, prevHash})
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
