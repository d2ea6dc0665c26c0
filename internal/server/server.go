// Package server implements the record store HTTP API that mobile and CLI
// clients upload classifications to.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/menta2k/palmscan/internal/store"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/types"
)

const (
	serviceName    = "🥥 Coconut Disease Detection API"
	serviceVersion = "1.0.0"
	maxUploadBytes = 10 << 20
)

// Classifier runs server-side classification of an uploaded image
type Classifier interface {
	Classify(ctx context.Context, frame processing.Frame) (*types.ClassificationResult, error)
}

// Options configures a Server
type Options struct {
	Repo       store.Repository
	Images     *ImageStore
	Classifier Classifier
	ListLimit  int
	Logger     func(format string, args ...interface{})
}

// Server serves the record store API
type Server struct {
	repo       store.Repository
	images     *ImageStore
	classifier Classifier
	listLimit  int
	logger     func(format string, args ...interface{})
	now        func() time.Time
}

// New creates a server. Images and Classifier are optional; without them
// uploaded images are dropped and /api/predict/image answers 503.
func New(opts Options) (*Server, error) {
	if opts.Repo == nil {
		return nil, errors.New("server needs a scan repository")
	}
	limit := opts.ListLimit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	return &Server{
		repo:       opts.Repo,
		images:     opts.Images,
		classifier: opts.Classifier,
		listLimit:  limit,
		logger:     opts.Logger,
		now:        time.Now,
	}, nil
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", enableCORS("GET, OPTIONS", s.Health))
	mux.HandleFunc("/api/upload-mobile", enableCORS("POST, OPTIONS", s.UploadMobile))
	mux.HandleFunc("/api/scans", enableCORS("GET, DELETE, OPTIONS", s.Scans))
	mux.HandleFunc("/api/scans/{id}", enableCORS("DELETE, OPTIONS", s.DeleteScan))
	mux.HandleFunc("/api/predict/image", enableCORS("POST, OPTIONS", s.PredictFromImage))
	mux.HandleFunc("/images/{name}", enableCORS("GET, OPTIONS", s.Image))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func enableCORS(methods string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errText, message string) {
	writeJSON(w, status, types.CloudResponse{Success: false, Error: errText, Message: message})
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger(format, args...)
	}
}
