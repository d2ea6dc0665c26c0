package upload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/menta2k/palmscan/pkg/types"
)

// PendingRecord is a record kept locally after a failed upload
type PendingRecord struct {
	Record   *types.UploadRecord `json:"record"`
	SavedAt  time.Time           `json:"saved_at"`
	LastErr  string              `json:"last_error,omitempty"`
	Attempts int                 `json:"attempts"`
}

// Outbox is a JSON file of records that have not reached the store
type Outbox struct {
	mu   sync.Mutex
	path string
}

// NewOutbox returns an outbox persisted at path
func NewOutbox(path string) *Outbox {
	return &Outbox{path: path}
}

// Path returns the backing file
func (o *Outbox) Path() string {
	return o.path
}

// Save stores record, replacing an earlier entry with the same id
func (o *Outbox) Save(record *types.UploadRecord, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending, err := o.load()
	if err != nil {
		return err
	}

	entry := PendingRecord{Record: record, SavedAt: time.Now().UTC(), Attempts: 1}
	if cause != nil {
		entry.LastErr = cause.Error()
	}

	replaced := false
	for i := range pending {
		if pending[i].Record != nil && pending[i].Record.ID == record.ID {
			entry.Attempts = pending[i].Attempts + 1
			pending[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		pending = append(pending, entry)
	}

	return o.store(pending)
}

// Remove drops the record with id, if present
func (o *Outbox) Remove(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending, err := o.load()
	if err != nil {
		return err
	}

	kept := pending[:0]
	for _, p := range pending {
		if p.Record != nil && p.Record.ID == id {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == len(pending) {
		return nil
	}
	return o.store(kept)
}

// Pending lists the stored records, oldest first
func (o *Outbox) Pending() ([]PendingRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load()
}

func (o *Outbox) load() ([]PendingRecord, error) {
	data, err := os.ReadFile(o.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var pending []PendingRecord
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("failed to parse outbox %s: %w", o.path, err)
	}
	return pending, nil
}

// store replaces the outbox file atomically
func (o *Outbox) store(pending []PendingRecord) error {
	if err := os.MkdirAll(filepath.Dir(o.path), 0755); err != nil {
		return fmt.Errorf("failed to create outbox directory: %w", err)
	}

	data, err := json.MarshalIndent(pending, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outbox: %w", err)
	}

	tmp := o.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write outbox: %w", err)
	}
	return os.Rename(tmp, o.path)
}
