package types

import "errors"

// Errors surfaced by the classification and sync pipeline. Callers match them
// with errors.Is; producers wrap them with additional context.
var (
	ErrImageUnavailable       = errors.New("image unavailable")
	ErrUnsupportedImageFormat = errors.New("unsupported image format")
	ErrTensorSizeMismatch     = errors.New("tensor size mismatch")
	ErrInferenceFailed        = errors.New("inference failed")
	ErrUploadFailed           = errors.New("upload failed")

	// ErrLabelMismatch means the label list does not fit the model output.
	// It is a configuration defect, not a per-image failure.
	ErrLabelMismatch = errors.New("label count does not match model output")

	ErrNoResult         = errors.New("no classification to upload")
	ErrUploadInProgress = errors.New("upload already in progress")
)
