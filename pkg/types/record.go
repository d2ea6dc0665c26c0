package types

// UploadRecord is the payload transmitted to the remote record store
type UploadRecord struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Timestamp   int64           `json:"timestamp"`
	ImageBase64 string          `json:"imageBase64"`
	ImageName   string          `json:"imageName"`
	ImageSize   int64           `json:"imageSize"`
	Detection   DetectionResult `json:"detectionResult"`
	Device      DeviceInfo      `json:"deviceInfo"`
	Location    *Location       `json:"locationInfo,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// HasImage reports whether the record carries an image payload
func (r *UploadRecord) HasImage() bool {
	return r.ImageBase64 != ""
}

// DetectionResult is the classification part of an upload record
type DetectionResult struct {
	PrimaryDisease    string             `json:"primaryDisease"`
	DiseaseName       string             `json:"diseaseName"`
	Confidence        float32            `json:"confidence"`
	ConfidencePercent int                `json:"confidencePercent"`
	AllPredictions    map[string]float32 `json:"allPredictions"`
	SeverityLevel     string             `json:"severityLevel"`
	RiskLevel         string             `json:"riskLevel"`
	Recommendation    string             `json:"recommendation"`
	ProcessingTimeMs  int64              `json:"processingTimeMs"`
}

// DeviceInfo describes the capturing device and app build
type DeviceInfo struct {
	DeviceModel     string `json:"deviceModel"`
	OSVersion       string `json:"androidVersion"`
	AppVersion      string `json:"appVersion"`
	ModelVersion    string `json:"modelVersion"`
	ImageResolution string `json:"imageResolution"`
}

// Location is an optional geotag for a scan
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float32 `json:"accuracy"`
	Address   string  `json:"address,omitempty"`
}

// UploadReceipt is the store's confirmation of a saved record
type UploadReceipt struct {
	ScanID    string `json:"scan_id"`
	Message   string `json:"message"`
	ImageURL  string `json:"image_url,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ScanSummary is a stored scan as listed by the record store
type ScanSummary struct {
	ID             string   `json:"id"`
	Timestamp      string   `json:"timestamp"`
	DiseaseCode    string   `json:"disease_code"`
	Disease        string   `json:"disease_detected"`
	Confidence     int      `json:"confidence"`
	SeverityLevel  string   `json:"severity_level"`
	Recommendation string   `json:"recommendation"`
	ImageURL       string   `json:"image_url,omitempty"`
	DeviceID       string   `json:"device_id"`
	DeviceModel    string   `json:"device_model,omitempty"`
	Latitude       *float64 `json:"location_latitude,omitempty"`
	Longitude      *float64 `json:"location_longitude,omitempty"`
}
