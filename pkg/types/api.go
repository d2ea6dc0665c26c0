package types

import "encoding/json"

// CloudResponse is the envelope returned by the record store
type CloudResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	ScanID     string          `json:"scan_id,omitempty"`
	ImageURL   string          `json:"image_url,omitempty"`
	AIResult   string          `json:"ai_result,omitempty"`
	Confidence string          `json:"confidence,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

// ScansResponse lists stored scans, newest first
type ScansResponse struct {
	Success bool          `json:"success"`
	Scans   []ScanSummary `json:"scans"`
	Total   int           `json:"total"`
}

// HealthStatus is reported by the record store health endpoint
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Database  string `json:"database"`
	Storage   string `json:"storage"`
}

// PredictResponse is returned by server-side classification
type PredictResponse struct {
	Class          string             `json:"class"`
	DiseaseName    string             `json:"disease_name"`
	Confidence     float32            `json:"confidence"`
	Percent        int                `json:"confidence_percent"`
	Predictions    map[string]float32 `json:"predictions"`
	Presentation   Presentation       `json:"presentation"`
	ProcessingTime int64              `json:"processing_time_ms"`
}
