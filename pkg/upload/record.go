package upload

import (
	"image"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/palmscan/pkg/presentation"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/types"
)

// JPEGQuality is used for images attached to records
const JPEGQuality = 80

// RecordOptions carries the parts of a record that do not come from the
// classification itself
type RecordOptions struct {
	ID       string
	UserID   string
	Device   types.DeviceInfo
	Location *types.Location
	Notes    string
	Now      func() time.Time
}

// DefaultDevice describes the host running the classifier
func DefaultDevice(modelVersion string, imageSize int) types.DeviceInfo {
	if modelVersion == "" {
		modelVersion = "enhanced_v1.0"
	}
	res := "224x224"
	if imageSize > 0 {
		res = strconv.Itoa(imageSize) + "x" + strconv.Itoa(imageSize)
	}
	return types.DeviceInfo{
		DeviceModel:     runtime.GOOS + " " + runtime.GOARCH,
		OSVersion:       runtime.Version(),
		AppVersion:      "1.0",
		ModelVersion:    modelVersion,
		ImageResolution: res,
	}
}

// NewRecord assembles the upload record for a classification. img is
// attached as base64 JPEG when non-nil.
func NewRecord(result *types.ClassificationResult, img image.Image, opts RecordOptions) (*types.UploadRecord, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	ts := now()

	pres := presentation.Format(result)
	id := opts.ID
	if id == "" {
		id = NewScanID()
	}

	userID := opts.UserID
	if userID == "" {
		userID = "mobile_user_" + strconv.FormatInt(ts.UnixMilli(), 10)
	}

	record := &types.UploadRecord{
		ID:        id,
		UserID:    userID,
		Timestamp: ts.UnixMilli(),
		ImageName: id + ".jpg",
		Detection: types.DetectionResult{
			PrimaryDisease:    result.TopLabel,
			DiseaseName:       presentation.FriendlyName(result.TopLabel),
			Confidence:        result.TopConfidence,
			ConfidencePercent: presentation.ConfidencePercent(result.TopConfidence),
			AllPredictions:    copyPredictions(result.Predictions),
			SeverityLevel:     pres.SeverityLevel(),
			RiskLevel:         pres.SeverityLevel(),
			Recommendation:    pres.Recommendation,
			ProcessingTimeMs:  result.ProcessingTime.Milliseconds(),
		},
		Device:   opts.Device,
		Location: opts.Location,
		Notes:    opts.Notes,
	}

	if img != nil {
		encoded, err := processing.EncodeBase64(img, "jpg", 0, JPEGQuality)
		if err != nil {
			return nil, err
		}
		record.ImageBase64 = encoded
		record.ImageSize = int64(len(encoded))
	}

	return record, nil
}

// NewScanID returns a fresh client-side scan identifier
func NewScanID() string {
	return "scan_" + uuid.New().String()
}

func copyPredictions(in map[string]float32) map[string]float32 {
	out := make(map[string]float32, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
