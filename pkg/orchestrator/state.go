package orchestrator

import "fmt"

// State is the position of a session in the capture and upload flow
type State int

const (
	Idle State = iota
	Preprocessing
	Inferring
	Displaying
	AwaitingUploadChoice
	Uploading
	UploadSucceeded
	UploadFailedFallback
)

var stateNames = map[State]string{
	Idle:                 "idle",
	Preprocessing:        "preprocessing",
	Inferring:            "inferring",
	Displaying:           "displaying",
	AwaitingUploadChoice: "awaiting_upload_choice",
	Uploading:            "uploading",
	UploadSucceeded:      "upload_succeeded",
	UploadFailedFallback: "upload_failed_fallback",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Ready reports whether the session waits for user input
func (s State) Ready() bool {
	switch s {
	case Idle, Displaying, AwaitingUploadChoice, UploadSucceeded, UploadFailedFallback:
		return true
	}
	return false
}

// Busy reports whether work is in flight
func (s State) Busy() bool {
	switch s {
	case Preprocessing, Inferring, Uploading:
		return true
	}
	return false
}

// Mode selects what an upload carries
type Mode int

const (
	// WithImage attaches the captured image to the record
	WithImage Mode = iota
	// ResultsOnly sends the classification without the image
	ResultsOnly
)

func (m Mode) String() string {
	if m == WithImage {
		return "with-image"
	}
	return "results-only"
}

// ParseMode accepts the names printed by Mode.String
func ParseMode(s string) (Mode, error) {
	switch s {
	case "with-image", "image":
		return WithImage, nil
	case "results-only", "results":
		return ResultsOnly, nil
	}
	return 0, fmt.Errorf("unknown upload mode %q (want with-image or results-only)", s)
}

// Action is a user action available in the current state
type Action string

const (
	ActionCapture           Action = "capture"
	ActionUploadWithImage   Action = "upload_with_image"
	ActionUploadResultsOnly Action = "upload_results_only"
)

func actionsFor(s State) []Action {
	switch s {
	case Idle, UploadSucceeded:
		return []Action{ActionCapture}
	case Displaying, AwaitingUploadChoice, UploadFailedFallback:
		return []Action{ActionUploadWithImage, ActionUploadResultsOnly, ActionCapture}
	}
	return nil
}
