package orchestrator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/palmscan/internal/testutil"
	"github.com/menta2k/palmscan/pkg/pipeline"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/types"
	"github.com/menta2k/palmscan/pkg/upload"
)

var labels = []string{"Healthy", "CaterpillarInfestation", "LeafSpot"}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	r.states = append(r.states, s.State)
	r.mu.Unlock()
}

func (r *recorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func newSession(inv *testutil.MockInvoker, opts Options) *Session {
	p := pipeline.New(processing.NewProcessor(224), inv, labels)
	return NewSession(p, opts)
}

func leafFrame() processing.Frame {
	return processing.NewStaticFrame(testutil.CreateTestImage(640, 480))
}

func TestHealthyCaptureAndResultsOnlyUpload(t *testing.T) {
	inv := testutil.NewMockInvoker(0.9, 0.05, 0.05)
	store := &testutil.MockRecordStore{}
	rec := &recorder{}
	s := newSession(inv, Options{Store: store, Observer: rec.observe})

	display, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)

	assert.Equal(t, "Healthy", display.Result.TopLabel)
	assert.Equal(t, "🟢 Low Risk", display.Presentation.SeverityLevel())
	assert.Contains(t, display.Text, "Confidence: 90%")
	assert.Equal(t, AwaitingUploadChoice, s.State())
	assert.ElementsMatch(t, []Action{ActionUploadWithImage, ActionUploadResultsOnly, ActionCapture}, s.Actions())

	receipt, err := s.Upload(context.Background(), ResultsOnly)
	require.NoError(t, err)
	assert.Equal(t, UploadSucceeded, s.State())
	assert.NotEmpty(t, receipt.ScanID)

	record := store.Last()
	require.NotNil(t, record)
	assert.False(t, record.HasImage())
	assert.Equal(t, 90, record.Detection.ConfidencePercent)
	assert.Equal(t, "Healthy", record.Detection.PrimaryDisease)
	assert.Equal(t, "Healthy Coconut", record.Detection.DiseaseName)

	assert.Equal(t, []State{Displaying, UploadSucceeded}, rec.seen())
	assert.Equal(t, []Action{ActionCapture}, s.Actions())
}

func TestUniformGreenLeafIsHealthy(t *testing.T) {
	green := image.NewRGBA(image.Rect(0, 0, 224, 224))
	draw.Draw(green, green.Bounds(), &image.Uniform{C: color.RGBA{34, 139, 34, 255}}, image.Point{}, draw.Src)

	store := &testutil.MockRecordStore{}
	s := newSession(testutil.NewMockInvoker(0.9, 0.05, 0.05), Options{Store: store})

	display, err := s.Capture(context.Background(), processing.NewStaticFrame(green))
	require.NoError(t, err)
	assert.Equal(t, "Healthy", display.Result.TopLabel)
	assert.InDelta(t, 0.9, display.Result.TopConfidence, 1e-6)
	assert.Equal(t, "🟢 Low Risk", display.Presentation.SeverityLevel())

	_, err = s.Upload(context.Background(), ResultsOnly)
	require.NoError(t, err)
	record := store.Last()
	assert.False(t, record.HasImage())
	assert.Equal(t, 90, record.Detection.ConfidencePercent)
}

func TestDisplayingOffersUploadActions(t *testing.T) {
	store := &testutil.MockRecordStore{}
	var s *Session
	var displayed []Action
	var uploadErr error
	s = newSession(testutil.NewMockInvoker(0.9, 0.05, 0.05), Options{
		Store: store,
		Observer: func(snap Snapshot) {
			if snap.State != Displaying {
				return
			}
			displayed = snap.Actions
			_, uploadErr = s.Upload(context.Background(), ResultsOnly)
		},
	})

	display, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)

	assert.ElementsMatch(t, []Action{ActionUploadWithImage, ActionUploadResultsOnly, ActionCapture}, displayed)
	assert.ElementsMatch(t, displayed, display.Actions)
	require.NoError(t, uploadErr)
	assert.Equal(t, 1, store.Calls())
	assert.Equal(t, UploadSucceeded, s.State())
}

func TestSupersededFailedUploadIsNotKept(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	store := &testutil.MockRecordStore{
		UploadFunc: func(ctx context.Context, record *types.UploadRecord) (*types.UploadReceipt, error) {
			close(entered)
			<-release
			return nil, testutil.ErrStoreDown
		},
	}
	outbox := upload.NewOutbox(filepath.Join(t.TempDir(), "outbox.json"))
	s := newSession(testutil.NewMockInvoker(0.9, 0.05, 0.05), Options{Store: store, Fallback: outbox})

	_, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Upload(context.Background(), ResultsOnly)
		done <- err
	}()

	<-entered
	_, err = s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)
	close(release)

	assert.True(t, errors.Is(<-done, ErrSuperseded))
	assert.Equal(t, AwaitingUploadChoice, s.State())

	pending, err := outbox.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSupersededUploadClearsOutbox(t *testing.T) {
	var attempt int32
	entered := make(chan struct{})
	release := make(chan struct{})
	store := &testutil.MockRecordStore{
		UploadFunc: func(ctx context.Context, record *types.UploadRecord) (*types.UploadReceipt, error) {
			if atomic.AddInt32(&attempt, 1) == 1 {
				return nil, testutil.ErrStoreDown
			}
			close(entered)
			<-release
			return &types.UploadReceipt{ScanID: "srv_" + record.ID}, nil
		},
	}
	outbox := upload.NewOutbox(filepath.Join(t.TempDir(), "outbox.json"))
	s := newSession(testutil.NewMockInvoker(0.9, 0.05, 0.05), Options{Store: store, Fallback: outbox})

	_, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)
	_, err = s.Upload(context.Background(), ResultsOnly)
	require.True(t, errors.Is(err, types.ErrUploadFailed))

	pending, err := outbox.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	done := make(chan error, 1)
	go func() {
		_, err := s.Upload(context.Background(), ResultsOnly)
		done <- err
	}()

	<-entered
	_, err = s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)
	close(release)

	assert.True(t, errors.Is(<-done, ErrSuperseded))

	pending, err = outbox.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTieResolvesToFirstLabel(t *testing.T) {
	s := newSession(testutil.NewMockInvoker(0.4, 0.4, 0.2), Options{})

	display, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)
	assert.Equal(t, "Healthy", display.Result.TopLabel)
}

func TestUploadWithImageAttachesNormalizedImage(t *testing.T) {
	store := &testutil.MockRecordStore{}
	s := newSession(testutil.NewMockInvoker(0.1, 0.8, 0.1), Options{Store: store})

	_, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)

	_, err = s.Upload(context.Background(), WithImage)
	require.NoError(t, err)

	record := store.Last()
	require.True(t, record.HasImage())
	assert.Equal(t, "🟡 Medium Risk", record.Detection.SeverityLevel)
}

func TestFailedUploadFallsBackAndRetries(t *testing.T) {
	inv := testutil.NewMockInvoker(0.9, 0.05, 0.05)
	store := &testutil.MockRecordStore{Fail: true}
	outbox := upload.NewOutbox(filepath.Join(t.TempDir(), "outbox.json"))
	rec := &recorder{}
	s := newSession(inv, Options{Store: store, Fallback: outbox, Observer: rec.observe})

	_, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)

	_, err = s.Upload(context.Background(), WithImage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUploadFailed))

	snap := s.Snapshot()
	assert.Equal(t, UploadFailedFallback, snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "Healthy", snap.Result.TopLabel)
	assert.Contains(t, snap.Actions, ActionUploadWithImage)
	assert.Contains(t, snap.Actions, ActionUploadResultsOnly)
	assert.Contains(t, snap.Message, "saved locally")

	pending, err := outbox.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	firstID := pending[0].Record.ID

	store.SetFail(false)
	receipt, err := s.Upload(context.Background(), ResultsOnly)
	require.NoError(t, err)
	assert.Equal(t, "srv_"+firstID, receipt.ScanID)
	assert.Equal(t, UploadSucceeded, s.State())

	assert.Equal(t, 1, inv.Calls(), "retry must not re-run inference")
	assert.Equal(t, 2, store.Calls())

	pending, err = outbox.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Equal(t, []State{Displaying, UploadFailedFallback, UploadSucceeded}, rec.seen())
}

func TestUnavailableFrameReturnsToIdle(t *testing.T) {
	inv := testutil.NewMockInvoker(0.9, 0.05, 0.05)
	rec := &recorder{}
	s := newSession(inv, Options{Observer: rec.observe})

	_, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)

	broken := processing.FrameFunc(func() (image.Image, error) {
		return nil, errors.New("camera disconnected")
	})
	_, err = s.Capture(context.Background(), broken)
	assert.True(t, errors.Is(err, types.ErrImageUnavailable))

	snap := s.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.Result)
	assert.Equal(t, 1, inv.Calls())
	assert.Equal(t, []State{Displaying, Idle}, rec.seen())

	_, err = s.Upload(context.Background(), ResultsOnly)
	assert.True(t, errors.Is(err, types.ErrNoResult))
}

func TestInferenceFailureReturnsToIdle(t *testing.T) {
	inv := testutil.NewMockInvoker()
	inv.Err = errors.New("interpreter closed")
	s := newSession(inv, Options{})

	_, err := s.Capture(context.Background(), leafFrame())
	assert.True(t, errors.Is(err, types.ErrInferenceFailed))
	assert.Equal(t, Idle, s.State())
}

func TestUploadRequiresAwaitingChoice(t *testing.T) {
	store := &testutil.MockRecordStore{}
	s := newSession(testutil.NewMockInvoker(0.9, 0.05, 0.05), Options{Store: store})

	_, err := s.Upload(context.Background(), WithImage)
	assert.True(t, errors.Is(err, types.ErrNoResult))

	_, err = s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)
	_, err = s.Upload(context.Background(), ResultsOnly)
	require.NoError(t, err)

	_, err = s.Upload(context.Background(), ResultsOnly)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, 1, store.Calls())
}

func TestUploadInProgress(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	store := &testutil.MockRecordStore{
		UploadFunc: func(ctx context.Context, record *types.UploadRecord) (*types.UploadReceipt, error) {
			close(entered)
			<-release
			return &types.UploadReceipt{ScanID: "1"}, nil
		},
	}
	s := newSession(testutil.NewMockInvoker(0.9, 0.05, 0.05), Options{Store: store})

	_, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Upload(context.Background(), ResultsOnly)
		done <- err
	}()

	<-entered
	_, err = s.Upload(context.Background(), ResultsOnly)
	assert.True(t, errors.Is(err, types.ErrUploadInProgress))

	close(release)
	require.NoError(t, <-done)
}

func TestUploadTimeout(t *testing.T) {
	store := &testutil.MockRecordStore{
		UploadFunc: func(ctx context.Context, record *types.UploadRecord) (*types.UploadReceipt, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	s := newSession(testutil.NewMockInvoker(0.9, 0.05, 0.05), Options{Store: store, UploadTimeout: 20 * time.Millisecond})

	_, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)

	_, err = s.Upload(context.Background(), ResultsOnly)
	assert.True(t, errors.Is(err, types.ErrUploadFailed))
	assert.Equal(t, UploadFailedFallback, s.State())
}

func TestNewerCaptureSupersedesInFlight(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	inv := testutil.NewMockInvoker()
	inv.InvokeFunc = func(ctx context.Context, in *types.InputTensor) (*types.RawOutput, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
			return &types.RawOutput{Floats: []float32{0.9, 0.05, 0.05}}, nil
		}
		return &types.RawOutput{Floats: []float32{0.1, 0.1, 0.8}}, nil
	}
	s := newSession(inv, Options{})

	first := make(chan error, 1)
	go func() {
		_, err := s.Capture(context.Background(), leafFrame())
		first <- err
	}()

	<-started
	display, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)
	assert.Equal(t, "LeafSpot", display.Result.TopLabel)

	close(release)
	assert.True(t, errors.Is(<-first, ErrSuperseded))

	snap := s.Snapshot()
	assert.Equal(t, AwaitingUploadChoice, snap.State)
	assert.Equal(t, "LeafSpot", snap.Result.TopLabel)
}

func TestObserverRunsThroughDispatch(t *testing.T) {
	var dispatched int32
	rec := &recorder{}
	s := newSession(testutil.NewMockInvoker(0.9, 0.05, 0.05), Options{
		Observer: rec.observe,
		Dispatch: func(fn func()) {
			atomic.AddInt32(&dispatched, 1)
			fn()
		},
	})

	_, err := s.Capture(context.Background(), leafFrame())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&dispatched))
	assert.Equal(t, []State{Displaying}, rec.seen())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("with-image")
	require.NoError(t, err)
	assert.Equal(t, WithImage, m)

	m, err = ParseMode("results-only")
	require.NoError(t, err)
	assert.Equal(t, ResultsOnly, m)

	_, err = ParseMode("everything")
	assert.Error(t, err)
}

func TestPlayStages(t *testing.T) {
	stages := []Stage{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	var shown []string

	err := PlayStages(context.Background(), stages, func(i int, s Stage) {
		shown = append(shown, s.Title)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, shown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shown = nil
	err = PlayStages(ctx, LoadingStages, func(i int, s Stage) {
		shown = append(shown, s.Title)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, shown, 1)
	assert.Len(t, LoadingStages, 6)
}
