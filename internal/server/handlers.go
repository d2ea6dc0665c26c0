package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/menta2k/palmscan/internal/store"
	"github.com/menta2k/palmscan/internal/utils"
	"github.com/menta2k/palmscan/pkg/presentation"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/types"
)

// Health reports service and storage status
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	database := s.repo.Name()
	status := "healthy"
	if err := s.repo.Ping(r.Context()); err != nil {
		s.logf("Health check: database ping failed: %v", err)
		database += " (unreachable)"
		status = "degraded"
	}
	storage := "disabled"
	if s.images != nil {
		storage = "local webp"
	}

	writeJSON(w, http.StatusOK, types.HealthStatus{
		Status:    status,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Service:   serviceName,
		Version:   serviceVersion,
		Database:  database,
		Storage:   storage,
	})
}

// UploadMobile stores a classification sent by a client
func (s *Server) UploadMobile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Only POST method allowed", "")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes*2))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Upload failed", fmt.Sprintf("failed to read body: %v", err))
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Upload failed", "invalid JSON payload")
		return
	}

	scan, err := s.scanFromPayload(payload, body)
	if err != nil {
		s.logf("Upload rejected: %v", err)
		writeError(w, http.StatusBadRequest, "Upload failed", err.Error())
		return
	}

	if err := s.repo.Insert(r.Context(), scan); err != nil {
		s.logf("Failed to save scan: %v", err)
		if scan.ImageURL != "" {
			if rerr := s.images.Remove(scan.ImageURL); rerr != nil {
				s.logf("Failed to remove orphan image %s: %v", scan.ImageURL, rerr)
			}
		}
		writeError(w, http.StatusInternalServerError, "Upload failed", err.Error())
		return
	}
	s.logf("Scan saved: %s %s (%d%%)", scan.ID, scan.DiseaseCode, scan.Confidence)

	data, _ := json.Marshal(summary(*scan))
	writeJSON(w, http.StatusOK, types.CloudResponse{
		Success:    true,
		Message:    fmt.Sprintf("SUCCESS: %s detected!", scan.DiseaseName),
		Data:       data,
		ScanID:     scan.ID,
		ImageURL:   scan.ImageURL,
		AIResult:   scan.DiseaseName,
		Confidence: strconv.Itoa(scan.Confidence) + "%",
		Timestamp:  scan.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) scanFromPayload(payload map[string]any, raw []byte) (*store.Scan, error) {
	d := extractDetection(payload)
	pres := presentation.FormatLabel(d.Code)
	device := object(payload, "deviceInfo")
	location := object(payload, "locationInfo")

	scan := &store.Scan{
		ClientScanID:   str(payload, "id"),
		DiseaseCode:    d.Code,
		DiseaseName:    presentation.FriendlyName(d.Code),
		Confidence:     confidencePercent(d.Confidence),
		SeverityLevel:  pres.SeverityLevel(),
		Recommendation: pres.Recommendation,
		DeviceID:       deviceID(payload, "mobile_"+strconv.FormatInt(s.now().UnixMilli(), 10)),
		DeviceModel:    str(device, "deviceModel"),
		Latitude:       optionalNumber(location, "latitude"),
		Longitude:      optionalNumber(location, "longitude"),
		Notes:          str(payload, "notes"),
		Status:         "Mobile Upload",
	}

	if b64 := str(payload, "imageBase64"); b64 != "" && s.images != nil {
		url, err := s.images.SaveBase64(b64)
		if err != nil {
			return nil, fmt.Errorf("image rejected: %w", err)
		}
		scan.ImageURL = url
		// keep the stored raw payload small
		delete(payload, "imageBase64")
		raw, _ = json.Marshal(payload)
	}
	scan.RawData = compact(raw)
	return scan, nil
}

func compact(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// Scans lists stored scans, or deletes one given as ?id=
func (s *Server) Scans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listScans(w, r)
	case http.MethodDelete:
		s.deleteScan(w, r, r.URL.Query().Get("id"))
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	}
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit := s.listLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	scans, err := s.repo.List(r.Context(), limit)
	if err != nil {
		s.logf("Failed to list scans: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	out := make([]types.ScanSummary, 0, len(scans))
	for _, sc := range scans {
		out = append(out, summary(sc))
	}
	writeJSON(w, http.StatusOK, types.ScansResponse{Success: true, Scans: out, Total: len(out)})
}

// DeleteScan removes the scan named in the path
func (s *Server) DeleteScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "Only DELETE requests are allowed")
		return
	}
	s.deleteScan(w, r, r.PathValue("id"))
}

func (s *Server) deleteScan(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing scan ID", "Scan ID is required for deletion")
		return
	}

	err := s.repo.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Scan not found", id)
		return
	}
	if err != nil {
		s.logf("Failed to delete scan %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	s.logf("Deleted scan %s", id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Scan deleted successfully",
		"id":      id,
	})
}

// PredictFromImage classifies a multipart upload in the "image" field
func (s *Server) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	if s.classifier == nil {
		writeError(w, http.StatusServiceUnavailable, "Classifier not configured", "")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form", err.Error())
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'image' as the form field name", "")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image", err.Error())
		return
	}
	img, err := processing.DecodeBytes(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image format", err.Error())
		return
	}
	info := processing.Info(img)
	s.logf("Received file: %s (%s, %dx%d)", header.Filename, utils.FormatFileSize(header.Size), info.Width, info.Height)

	result, err := s.classifier.Classify(r.Context(), processing.NewStaticFrame(img))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrImageUnavailable) || errors.Is(err, types.ErrUnsupportedImageFormat) {
			status = http.StatusBadRequest
		}
		s.logf("Prediction error: %v", err)
		writeError(w, status, "Prediction failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, types.PredictResponse{
		Class:          result.TopLabel,
		DiseaseName:    presentation.FriendlyName(result.TopLabel),
		Confidence:     result.TopConfidence,
		Percent:        presentation.ConfidencePercent(result.TopConfidence),
		Predictions:    result.Predictions,
		Presentation:   presentation.Format(result),
		ProcessingTime: result.ProcessingTime.Milliseconds(),
	})
}

// Image serves a stored scan image
func (s *Server) Image(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	if s.images == nil {
		http.NotFound(w, r)
		return
	}
	path, ok := s.images.Path(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/webp")
	http.ServeFile(w, r, path)
}

func summary(sc store.Scan) types.ScanSummary {
	return types.ScanSummary{
		ID:             sc.ID,
		Timestamp:      sc.CreatedAt.UTC().Format(time.RFC3339),
		DiseaseCode:    sc.DiseaseCode,
		Disease:        sc.DiseaseName,
		Confidence:     sc.Confidence,
		SeverityLevel:  sc.SeverityLevel,
		Recommendation: sc.Recommendation,
		ImageURL:       sc.ImageURL,
		DeviceID:       sc.DeviceID,
		DeviceModel:    sc.DeviceModel,
		Latitude:       sc.Latitude,
		Longitude:      sc.Longitude,
	}
}
