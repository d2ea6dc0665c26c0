// Package orchestrator drives one capture → classify → display → upload
// flow per session and reports state changes to an observer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/menta2k/palmscan/pkg/client"
	"github.com/menta2k/palmscan/pkg/pipeline"
	"github.com/menta2k/palmscan/pkg/presentation"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/types"
	"github.com/menta2k/palmscan/pkg/upload"
)

// DefaultUploadTimeout bounds the single upload request
const DefaultUploadTimeout = 30 * time.Second

var (
	// ErrSuperseded is returned by work that finished after a newer capture
	// started; its result has been discarded.
	ErrSuperseded = errors.New("superseded by a newer capture")

	// ErrInvalidState means the requested action is not available now
	ErrInvalidState = errors.New("action not available in current state")
)

// Fallback keeps records whose upload failed
type Fallback interface {
	Save(record *types.UploadRecord, cause error) error
	Remove(id string) error
}

// Options configures a Session
type Options struct {
	Store    client.RecordStore
	Fallback Fallback

	// Observer receives a snapshot on Displaying, UploadSucceeded,
	// UploadFailedFallback and when a capture fails back to Idle
	Observer func(Snapshot)
	// Dispatch runs observer calls on the interactive goroutine; nil calls
	// the observer directly
	Dispatch func(func())

	UploadTimeout time.Duration
	Record        upload.RecordOptions
	TopN          int

	Logger func(format string, args ...interface{})
}

// Snapshot is a consistent view of a session
type Snapshot struct {
	State        State
	Result       *types.ClassificationResult
	Presentation *types.Presentation
	Message      string
	Receipt      *types.UploadReceipt
	Actions      []Action
	Err          error
}

// Display is what a successful capture shows
type Display struct {
	Result       *types.ClassificationResult
	Presentation types.Presentation
	Text         string
	Actions      []Action
}

// Session holds the state of one user's flow. Its methods may be called
// from any goroutine; Capture and Upload block and belong off the
// interactive goroutine.
type Session struct {
	pipeline *pipeline.Pipeline
	opts     Options

	mu      sync.Mutex
	gen     uint64
	state   State
	result  *types.ClassificationResult
	pres    *types.Presentation
	image   image.Image
	scanID  string
	message string
	receipt *types.UploadReceipt
	lastErr error
}

// NewSession creates an idle session
func NewSession(p *pipeline.Pipeline, opts Options) *Session {
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	if opts.TopN <= 0 {
		opts.TopN = 3
	}
	return &Session{pipeline: p, opts: opts, state: Idle}
}

// Capture classifies frame. Any previous result is discarded first; a
// failure leaves the session Idle with no result.
func (s *Session) Capture(ctx context.Context, frame processing.Frame) (*Display, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = Preprocessing
	s.result, s.pres, s.image, s.receipt, s.lastErr = nil, nil, nil, nil, nil
	s.scanID = ""
	s.message = LoadingStages[0].Title
	s.mu.Unlock()

	buf, in, err := s.pipeline.Preprocess(frame)
	if err != nil {
		return nil, s.failCapture(gen, err)
	}

	if !s.advance(gen, Inferring) {
		return nil, ErrSuperseded
	}

	result, err := s.pipeline.Infer(ctx, in)
	if err != nil {
		return nil, s.failCapture(gen, err)
	}

	pres := presentation.Format(result)
	display := &Display{
		Result:       result,
		Presentation: pres,
		Text:         presentation.Render(result, pres, s.opts.TopN),
		Actions:      actionsFor(Displaying),
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	s.state = Displaying
	s.result = result
	s.pres = &pres
	s.image = processing.ToImage(buf)
	s.scanID = upload.NewScanID()
	s.message = pres.Emoji + " " + pres.StatusText
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)

	s.mu.Lock()
	if s.gen == gen && s.state == Displaying {
		s.state = AwaitingUploadChoice
	}
	s.mu.Unlock()

	s.logf("classified %s (%d%%) in %v", result.TopLabel, presentation.ConfidencePercent(result.TopConfidence), result.ProcessingTime)
	return display, nil
}

// Upload sends the current result to the record store. On failure the
// session enters UploadFailedFallback, keeps the result and both upload
// actions, and the record is handed to the fallback. An attempt overtaken
// by a newer capture returns ErrSuperseded and keeps nothing locally.
func (s *Session) Upload(ctx context.Context, mode Mode) (*types.UploadReceipt, error) {
	s.mu.Lock()
	switch {
	case s.state == Uploading:
		s.mu.Unlock()
		return nil, types.ErrUploadInProgress
	case s.result == nil:
		s.mu.Unlock()
		return nil, types.ErrNoResult
	case s.state != Displaying && s.state != AwaitingUploadChoice && s.state != UploadFailedFallback:
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: upload in %s", ErrInvalidState, state)
	}
	gen := s.gen
	s.state = Uploading
	s.message = "☁️ Uploading to cloud..."
	result, img, scanID := s.result, s.image, s.scanID
	s.mu.Unlock()

	opts := s.opts.Record
	opts.ID = scanID
	if mode != WithImage {
		img = nil
	}

	record, err := upload.NewRecord(result, img, opts)
	if err == nil {
		var receipt *types.UploadReceipt
		receipt, err = s.send(ctx, record)
		if err == nil {
			// the store has the record even if a newer capture took over
			if s.opts.Fallback != nil {
				if rerr := s.opts.Fallback.Remove(record.ID); rerr != nil {
					s.logf("failed to clear %s from outbox: %v", record.ID, rerr)
				}
			}
			if ferr := s.finishUpload(gen, record, receipt); ferr != nil {
				return nil, ferr
			}
			return receipt, nil
		}
	}

	uploadErr := fmt.Errorf("%w: %v", types.ErrUploadFailed, err)
	if !s.current(gen) {
		return nil, ErrSuperseded
	}
	if record != nil && s.opts.Fallback != nil {
		if ferr := s.opts.Fallback.Save(record, err); ferr != nil {
			s.logf("failed to keep %s locally: %v", record.ID, ferr)
		}
	}
	if ferr := s.failUpload(gen, uploadErr); ferr != nil {
		return nil, ferr
	}
	return nil, uploadErr
}

func (s *Session) send(ctx context.Context, record *types.UploadRecord) (*types.UploadReceipt, error) {
	if s.opts.Store == nil {
		return nil, errors.New("no record store configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.UploadTimeout)
	defer cancel()

	receipt, err := s.opts.Store.Upload(ctx, record)
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.ScanID == "" {
		return nil, errors.New("store returned no scan id")
	}
	return receipt, nil
}

func (s *Session) finishUpload(gen uint64, record *types.UploadRecord, receipt *types.UploadReceipt) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.state = UploadSucceeded
	s.receipt = receipt
	s.lastErr = nil
	s.message = "✅ Uploaded! Scan ID: " + receipt.ScanID
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logf("uploaded %s as %s", record.ID, receipt.ScanID)
	s.notify(snap)
	return nil
}

func (s *Session) failUpload(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.state = UploadFailedFallback
	s.lastErr = err
	s.message = "⚠️ Upload failed, saved locally only"
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logf("upload failed: %v", err)
	s.notify(snap)
	return nil
}

func (s *Session) failCapture(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.state = Idle
	s.result, s.pres, s.image, s.scanID = nil, nil, nil, ""
	s.lastErr = err
	s.message = "❌ " + err.Error()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logf("capture failed: %v", err)
	s.notify(snap)
	return err
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// advance moves to state if gen is still current
func (s *Session) advance(gen uint64, state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.state = state
	return true
}

// Snapshot returns the current state of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Actions lists the actions available now
func (s *Session) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return actionsFor(s.state)
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:        s.state,
		Result:       s.result,
		Presentation: s.pres,
		Message:      s.message,
		Receipt:      s.receipt,
		Actions:      actionsFor(s.state),
		Err:          s.lastErr,
	}
}

func (s *Session) notify(snap Snapshot) {
	if s.opts.Observer == nil {
		return
	}
	if s.opts.Dispatch == nil {
		s.opts.Observer(snap)
		return
	}
	s.opts.Dispatch(func() { s.opts.Observer(snap) })
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.opts.Logger != nil {
		s.opts.Logger(format, args...)
	}
}
