package main

import (
	"context"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/palmscan"
	"github.com/menta2k/palmscan/internal/server"
	"github.com/menta2k/palmscan/internal/store"
	"github.com/menta2k/palmscan/internal/utils"
)

type serveOptions struct {
	Addr       string
	DB         string
	ImageDir   string
	PublicURL  string
	Memory     bool
	NoClassify bool
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the record store HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		runServe(cmd.Context(), serveOpts)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.Addr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveOpts.DB, "db", "", "PostgreSQL connection string (default: server.database_url or POSTGRES_* env)")
	serveCmd.Flags().StringVar(&serveOpts.ImageDir, "image-dir", "", "directory for uploaded images (overrides server.image_dir)")
	serveCmd.Flags().StringVar(&serveOpts.PublicURL, "public-url", "", "base URL used in returned image links")
	serveCmd.Flags().BoolVar(&serveOpts.Memory, "memory", false, "keep scans in memory instead of PostgreSQL")
	serveCmd.Flags().BoolVar(&serveOpts.NoClassify, "no-classify", false, "disable /api/predict/image")

	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, opts serveOptions) {
	sc := cfg.Server
	if opts.Addr != "" {
		sc.Addr = opts.Addr
	}
	if opts.DB != "" {
		sc.DatabaseURL = opts.DB
	}
	if opts.ImageDir != "" {
		sc.ImageDir = opts.ImageDir
	}
	if opts.PublicURL != "" {
		sc.PublicURL = opts.PublicURL
	}
	if sc.PublicURL == "" {
		sc.PublicURL = "http://localhost" + sc.Addr
		if !strings.HasPrefix(sc.Addr, ":") {
			sc.PublicURL = "http://" + sc.Addr
		}
	}

	var repo store.Repository
	if opts.Memory || sc.DatabaseURL == "" {
		log.Printf("⚠️ No database configured, scans are kept in memory")
		repo = store.NewMemoryStore()
	} else {
		db, err := store.New(ctx, sc.DatabaseURL)
		if err != nil {
			utils.Die("Failed to connect to database", err)
		}
		// the serve context is already cancelled at shutdown
		defer db.Close(context.Background())
		repo = db
	}

	images, err := server.NewImageStore(sc.ImageDir, sc.PublicURL)
	if err != nil {
		utils.Die("Failed to prepare image storage", err)
	}

	srvOpts := server.Options{
		Repo:      repo,
		Images:    images,
		ListLimit: sc.ListLimit,
		Logger:    log.Printf,
	}
	if !opts.NoClassify {
		scanner, err := palmscan.New(cfg)
		if err != nil {
			log.Printf("⚠️ Classifier unavailable, /api/predict/image disabled: %v", err)
		} else {
			defer scanner.Close()
			srvOpts.Classifier = scanner.Pipeline()
		}
	}

	srv, err := server.New(srvOpts)
	if err != nil {
		utils.Die("Failed to create server", err)
	}

	log.Printf("Record store listening on %s (database: %s)", sc.Addr, repo.Name())
	log.Println("Endpoints:")
	log.Println("  GET    /api/health        - Health check")
	log.Println("  POST   /api/upload-mobile - Store a classification")
	log.Println("  GET    /api/scans         - List scans, newest first")
	log.Println("  DELETE /api/scans/{id}    - Delete a scan")
	log.Println("  POST   /api/predict/image - Classify an uploaded image")
	log.Println("  GET    /images/{name}     - Stored scan images")

	if err := srv.ListenAndServe(ctx, sc.Addr); err != nil {
		utils.Die("Server failed", err)
	}
	log.Printf("Server stopped")
}
