package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/menta2k/palmscan/pkg/presentation"
)

// detection is what the extractors pull out of an upload payload
type detection struct {
	Code       string
	Confidence float64
}

// Mobile clients have shipped several payload layouts; extractors are tried
// in order and the first one that finds a disease code wins.
var extractors = []func(payload map[string]any) (detection, bool){
	func(p map[string]any) (detection, bool) {
		dr, ok := p["detectionResult"].(map[string]any)
		if !ok {
			return detection{}, false
		}
		return fromFields(dr, "primaryDisease", dr)
	},
	func(p map[string]any) (detection, bool) { return fromFields(p, "diseaseDetected", p) },
	func(p map[string]any) (detection, bool) { return fromFields(p, "primaryDisease", p) },
	func(p map[string]any) (detection, bool) { return fromFields(p, "disease", p) },
}

func fromFields(src map[string]any, key string, confSrc map[string]any) (detection, bool) {
	code, _ := src[key].(string)
	code = strings.TrimSpace(code)
	if code == "" {
		return detection{}, false
	}
	return detection{Code: code, Confidence: number(confSrc["confidence"])}, true
}

// extractDetection returns the disease code and raw confidence of a payload.
// Payloads without a recognizable code are recorded as "Unknown".
func extractDetection(payload map[string]any) detection {
	for _, extract := range extractors {
		if d, ok := extract(payload); ok {
			return d
		}
	}
	return detection{Code: "Unknown"}
}

// confidencePercent accepts a 0..1 fraction or an already scaled percentage
func confidencePercent(c float64) int {
	if math.IsNaN(c) || c <= 0 {
		return 0
	}
	if c <= 1 {
		return presentation.ConfidencePercent(float32(c))
	}
	if c >= 100 {
		return 100
	}
	return int(math.Floor(c + 0.5))
}

// deviceID falls back through the id fields clients have used
func deviceID(payload map[string]any, fallback string) string {
	for _, key := range []string{"device_id", "deviceId", "userId"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

func object(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

// number reads a JSON number, or a string such as "87" or "87%"
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func optionalNumber(m map[string]any, key string) *float64 {
	if m == nil {
		return nil
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	v := number(m[key])
	return &v
}
