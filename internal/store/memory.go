package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps List when no limit is given
const DefaultListLimit = 50

// NewID returns a fresh scan id
func NewID() string {
	return uuid.NewString()
}

// MemoryStore keeps scans in process memory, newest first
type MemoryStore struct {
	mu    sync.Mutex
	scans []Scan
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Name identifies the backend in health reports
func (m *MemoryStore) Name() string {
	return "memory"
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Insert saves a copy of scan
func (m *MemoryStore) Insert(ctx context.Context, scan *Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scan.ClientScanID != "" {
		for i := range m.scans {
			if m.scans[i].ClientScanID == scan.ClientScanID {
				scan.ID, scan.CreatedAt = m.scans[i].ID, m.scans[i].CreatedAt
				m.scans[i] = *scan
				return nil
			}
		}
	}

	scan.ID = NewID()
	scan.CreatedAt = m.now()
	m.scans = append([]Scan{*scan}, m.scans...)
	return nil
}

// List returns up to limit scans, newest first
func (m *MemoryStore) List(ctx context.Context, limit int) ([]Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > len(m.scans) {
		limit = len(m.scans)
	}
	return append([]Scan(nil), m.scans[:limit]...), nil
}

// Delete removes a scan by id
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.scans {
		if m.scans[i].ID == id {
			m.scans = append(m.scans[:i], m.scans[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Reset wipes every stored scan
func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	m.scans = nil
	m.mu.Unlock()
	return nil
}
