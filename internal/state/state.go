// Package state journals in-flight container swaps to a JSON file. The
// journal is evidence, not a recovery mechanism: an interrupted swap is
// surfaced to the operator on the next run and never replayed automatically.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SwapRecord records one swap the engine was asked to perform.
type SwapRecord struct {
	OldID     string    `json:"old_id"`
	Image     string    `json:"image"`
	Timestamp time.Time `json:"timestamp"`
}

const journalFileName = "podhawk_journal.json"

// Journal persists swap records under a directory.
type Journal struct {
	mu  sync.Mutex
	dir string
}

// NewJournal returns a journal rooted at dir. An empty dir selects
// /var/lib/podhawk when writable, falling back to the working directory and
// finally the temp directory.
func NewJournal(dir string) *Journal {
	if dir == "" {
		dir = defaultDir()
	}
	return &Journal{dir: dir}
}

func defaultDir() string {
	const preferred = "/var/lib/podhawk"
	if err := os.MkdirAll(preferred, 0o755); err == nil {
		return preferred
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return os.TempDir()
}

func (j *Journal) path() string {
	return filepath.Join(j.dir, journalFileName)
}

// loadUnlocked reads the journal file. Caller must hold the mutex.
func (j *Journal) loadUnlocked() (map[string]SwapRecord, error) {
	data, err := os.ReadFile(j.path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]SwapRecord), nil
		}
		return nil, fmt.Errorf("load journal: %w", err)
	}
	out := make(map[string]SwapRecord)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal journal: %w", err)
	}
	return out, nil
}

// saveUnlocked writes the journal file. Caller must hold the mutex.
func (j *Journal) saveUnlocked(m map[string]SwapRecord) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir journal dir: %w", err)
	}
	if err := os.WriteFile(j.path(), b, 0o640); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Add persists a swap record keyed by the old container ID. The mutex is
// held for the whole read-modify-write cycle to avoid lost updates.
func (j *Journal) Add(r SwapRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	m, err := j.loadUnlocked()
	if err != nil {
		return err
	}
	m[r.OldID] = r
	return j.saveUnlocked(m)
}

// Remove deletes the record for the given old container ID, if any.
func (j *Journal) Remove(oldID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	m, err := j.loadUnlocked()
	if err != nil {
		return err
	}
	delete(m, oldID)
	return j.saveUnlocked(m)
}

// All returns every persisted swap record.
func (j *Journal) All() (map[string]SwapRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.loadUnlocked()
}
