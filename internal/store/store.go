// Package store persists scans received by the record-store server.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a scan id does not exist
var ErrNotFound = errors.New("scan not found")

// Scan is a stored classification record
type Scan struct {
	ID             string
	ClientScanID   string
	CreatedAt      time.Time
	DiseaseCode    string
	DiseaseName    string
	Confidence     int
	SeverityLevel  string
	Recommendation string
	ImageURL       string
	DeviceID       string
	DeviceModel    string
	Latitude       *float64
	Longitude      *float64
	Notes          string
	Status         string
	RawData        []byte
}

// Repository is implemented by Store and MemoryStore
type Repository interface {
	// Insert saves scan and fills in ID and CreatedAt. A scan with a
	// ClientScanID that was already stored replaces the earlier row.
	Insert(ctx context.Context, scan *Scan) error
	List(ctx context.Context, limit int) ([]Scan, error)
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Name() string
}

// Store keeps scans in PostgreSQL
type Store struct {
	mu    sync.Mutex
	conn  *pgx.Conn
	newID func() string
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn, newID: NewID}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY,
			client_scan_id TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			disease_code TEXT NOT NULL,
			disease_detected TEXT NOT NULL,
			confidence INT NOT NULL,
			severity_level TEXT NOT NULL,
			recommendation TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			device_id TEXT NOT NULL DEFAULT '',
			device_model TEXT NOT NULL DEFAULT '',
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			raw_data JSONB
		);
		CREATE INDEX IF NOT EXISTS scans_created_at_idx ON scans (created_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// Name identifies the backend in health reports
func (s *Store) Name() string {
	return "postgres"
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Ping(ctx)
}

// Insert saves a scan. Retried uploads carry the same client scan id and
// overwrite the row they created the first time.
func (s *Store) Insert(ctx context.Context, scan *Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var clientID *string
	if scan.ClientScanID != "" {
		clientID = &scan.ClientScanID
	}
	var raw *string
	if len(scan.RawData) > 0 {
		r := string(scan.RawData)
		raw = &r
	}

	return s.conn.QueryRow(ctx, `
		INSERT INTO scans (id, client_scan_id, disease_code, disease_detected, confidence,
			severity_level, recommendation, image_url, device_id, device_model,
			latitude, longitude, notes, status, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb)
		ON CONFLICT (client_scan_id) DO UPDATE SET
			disease_code = EXCLUDED.disease_code,
			disease_detected = EXCLUDED.disease_detected,
			confidence = EXCLUDED.confidence,
			severity_level = EXCLUDED.severity_level,
			recommendation = EXCLUDED.recommendation,
			image_url = EXCLUDED.image_url,
			device_id = EXCLUDED.device_id,
			device_model = EXCLUDED.device_model,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			notes = EXCLUDED.notes,
			status = EXCLUDED.status,
			raw_data = EXCLUDED.raw_data
		RETURNING id, created_at
	`, s.newID(), clientID, scan.DiseaseCode, scan.DiseaseName, scan.Confidence,
		scan.SeverityLevel, scan.Recommendation, scan.ImageURL, scan.DeviceID, scan.DeviceModel,
		scan.Latitude, scan.Longitude, scan.Notes, scan.Status, raw,
	).Scan(&scan.ID, &scan.CreatedAt)
}

// List returns up to limit scans, newest first
func (s *Store) List(ctx context.Context, limit int) ([]Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, COALESCE(client_scan_id, ''), created_at, disease_code, disease_detected,
			confidence, severity_level, recommendation, image_url, device_id, device_model,
			latitude, longitude, notes, status, COALESCE(raw_data::text, '')
		FROM scans
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var sc Scan
		var raw string
		if err := rows.Scan(&sc.ID, &sc.ClientScanID, &sc.CreatedAt, &sc.DiseaseCode, &sc.DiseaseName,
			&sc.Confidence, &sc.SeverityLevel, &sc.Recommendation, &sc.ImageURL, &sc.DeviceID, &sc.DeviceModel,
			&sc.Latitude, &sc.Longitude, &sc.Notes, &sc.Status, &raw); err != nil {
			return nil, err
		}
		if raw != "" {
			sc.RawData = []byte(raw)
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// Delete removes a scan by id
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.conn.Exec(ctx, "DELETE FROM scans WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reset wipes every stored scan
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(ctx, "TRUNCATE scans")
	return err
}
