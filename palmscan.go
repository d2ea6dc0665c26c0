// Package palmscan classifies photos of coconut palm leaves for disease and
// optionally records the results in a remote record store.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/menta2k/palmscan"
//		"github.com/menta2k/palmscan/internal/config"
//	)
//
//	func main() {
//		scanner, err := palmscan.New(config.Default())
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer scanner.Close()
//
//		result, err := scanner.Classify(context.Background(), "leaf.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(palmscan.Render(result, 3))
//	}
//
// The classification chain is:
//
//  1. Processing (pkg/processing): decodes the photo and resamples it to the model size
//  2. Tensor (pkg/tensor): encodes the pixels as uint8 or float32 input
//  3. Backend (pkg/onnx, or pkg/scoring with ollama / llama.cpp): runs the model
//  4. Decoder (pkg/decoder): picks the top label
//  5. Presentation (pkg/presentation): severity, recommendation and display text
//
// An orchestrator.Session adds the capture → display → upload flow, with a
// local outbox for records the store did not accept.
package palmscan

import (
	"context"
	"fmt"
	"time"

	"github.com/menta2k/palmscan/internal/config"
	"github.com/menta2k/palmscan/pkg/client"
	"github.com/menta2k/palmscan/pkg/llamacpp"
	"github.com/menta2k/palmscan/pkg/model"
	"github.com/menta2k/palmscan/pkg/ollama"
	"github.com/menta2k/palmscan/pkg/onnx"
	"github.com/menta2k/palmscan/pkg/orchestrator"
	"github.com/menta2k/palmscan/pkg/pipeline"
	"github.com/menta2k/palmscan/pkg/presentation"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/scoring"
	"github.com/menta2k/palmscan/pkg/types"
	"github.com/menta2k/palmscan/pkg/upload"
)

// Version of the palmscan library
const Version = "1.0.0"

// Scanner wires a backend, the classification pipeline and the record
// store client from a configuration
type Scanner struct {
	spec     *model.Spec
	pipeline *pipeline.Pipeline
	uploader *upload.Client
	outbox   *upload.Outbox
	device   types.DeviceInfo
	userID   string
	timeout  time.Duration
	close    func()
}

// New builds a scanner from cfg
func New(cfg *config.Config) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	spec, meta, err := loadSpec(cfg.Model)
	if err != nil {
		return nil, err
	}

	invoker, closeFn, err := newInvoker(cfg.Model, spec, meta)
	if err != nil {
		return nil, err
	}

	s, err := NewWithInvoker(cfg, spec, invoker)
	if err != nil {
		closeFn()
		return nil, err
	}
	s.close = closeFn
	return s, nil
}

// NewWithInvoker builds a scanner around an existing invoker
func NewWithInvoker(cfg *config.Config, spec *model.Spec, invoker client.Invoker) (*Scanner, error) {
	s := &Scanner{
		spec:     spec,
		pipeline: pipeline.New(processing.NewProcessor(spec.ImageSize), invoker, spec.Labels),
		userID:   cfg.Upload.UserID,
		timeout:  cfg.UploadTimeout(),
		close:    func() {},
	}

	s.device = upload.DefaultDevice(spec.Version, spec.ImageSize)
	if cfg.Device.Model != "" {
		s.device.DeviceModel = cfg.Device.Model
	}
	if cfg.Device.OSVersion != "" {
		s.device.OSVersion = cfg.Device.OSVersion
	}
	if cfg.Device.AppVersion != "" {
		s.device.AppVersion = cfg.Device.AppVersion
	}

	if cfg.Upload.ServerURL != "" {
		c, err := upload.NewClient(cfg.Upload.ServerURL, s.timeout)
		if err != nil {
			return nil, fmt.Errorf("record store client: %w", err)
		}
		s.uploader = c
	}
	if cfg.Upload.OutboxPath != "" {
		s.outbox = upload.NewOutbox(cfg.Upload.OutboxPath)
	}
	return s, nil
}

func loadSpec(mc config.ModelConfig) (*model.Spec, *model.Metadata, error) {
	var labels []string
	if mc.LabelsPath != "" {
		l, err := model.LoadLabels(mc.LabelsPath)
		if err != nil {
			return nil, nil, err
		}
		labels = l
	}

	var meta *model.Metadata
	var spec *model.Spec
	if mc.MetadataPath != "" {
		m, err := model.LoadMetadata(mc.MetadataPath)
		if err != nil {
			return nil, nil, err
		}
		if spec, err = m.Spec(labels); err != nil {
			return nil, nil, err
		}
		meta = m
	} else {
		spec = model.DefaultSpec(labels)
		spec.ImageSize = mc.ImageSize
	}

	if mc.Version != "" {
		spec.Version = mc.Version
	}
	return spec, meta, nil
}

func newInvoker(mc config.ModelConfig, spec *model.Spec, meta *model.Metadata) (client.Invoker, func(), error) {
	switch mc.Backend {
	case "ollama":
		c, err := ollama.NewClient(mc.VisionURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return scoring.NewInvoker(c, mc.VisionModel, spec.Labels), func() {}, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(mc.VisionURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return scoring.NewInvoker(c, mc.VisionModel, spec.Labels), func() {}, nil
	default:
		if err := onnx.InitEnvironment(mc.LibraryPath); err != nil {
			return nil, nil, err
		}
		inv, err := onnx.NewInvoker(mc.Path, meta, spec)
		if err != nil {
			onnx.DestroyEnvironment()
			return nil, nil, err
		}
		return inv, func() {
			inv.Close()
			onnx.DestroyEnvironment()
		}, nil
	}
}

// Labels returns the model's label list
func (s *Scanner) Labels() []string {
	return s.pipeline.Labels()
}

// Spec returns the loaded model description
func (s *Scanner) Spec() *model.Spec {
	return s.spec
}

// Pipeline returns the classification pipeline
func (s *Scanner) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// Uploader returns the record store client, or nil when no server is configured
func (s *Scanner) Uploader() *upload.Client {
	return s.uploader
}

// Outbox returns the local store of records that failed to upload, or nil
func (s *Scanner) Outbox() *upload.Outbox {
	return s.outbox
}

// Classify runs the pipeline on a file path or URL
func (s *Scanner) Classify(ctx context.Context, source string) (*types.ClassificationResult, error) {
	return s.pipeline.Classify(ctx, s.pipeline.Processor().Frame(source))
}

// NewSession starts a capture/upload session. Store, Fallback, Record and
// UploadTimeout default to the scanner's configuration when unset.
func (s *Scanner) NewSession(opts orchestrator.Options) *orchestrator.Session {
	if opts.Store == nil && s.uploader != nil {
		opts.Store = s.uploader
	}
	if opts.Fallback == nil && s.outbox != nil {
		opts.Fallback = s.outbox
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = s.timeout
	}
	if opts.Record.UserID == "" {
		opts.Record.UserID = s.userID
	}
	if opts.Record.Device == (types.DeviceInfo{}) {
		opts.Record.Device = s.device
	}
	return orchestrator.NewSession(s.pipeline, opts)
}

// Close releases the backend
func (s *Scanner) Close() {
	s.close()
}

// Render formats a result with the top n predictions
func Render(result *types.ClassificationResult, n int) string {
	return presentation.Render(result, presentation.Format(result), n)
}
