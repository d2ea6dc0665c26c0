package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/menta2k/palmscan"
	"github.com/menta2k/palmscan/internal/utils"
	"github.com/menta2k/palmscan/pkg/orchestrator"
	"github.com/menta2k/palmscan/pkg/presentation"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/types"
)

type classifyOptions struct {
	UploadMode     string
	SaveNormalized string
	TopN           int
	NoStages       bool
	Latitude       float64
	Longitude      float64
	Notes          string
}

var classifyOpts classifyOptions

var classifyCmd = &cobra.Command{
	Use:   "classify <image|url|dir>...",
	Short: "Classify leaf photos and optionally upload the results",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runClassify(cmd.Context(), args, classifyOpts)
	},
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyOpts.UploadMode, "upload", "u", "", "upload results: with-image or results-only")
	classifyCmd.Flags().StringVar(&classifyOpts.SaveNormalized, "save-normalized", "", "directory to write the normalized model input to")
	classifyCmd.Flags().IntVarP(&classifyOpts.TopN, "top", "n", 3, "number of ranked predictions to show")
	classifyCmd.Flags().BoolVar(&classifyOpts.NoStages, "no-stages", false, "skip the loading stage messages")
	classifyCmd.Flags().Float64Var(&classifyOpts.Latitude, "lat", 0, "latitude attached to uploads")
	classifyCmd.Flags().Float64Var(&classifyOpts.Longitude, "lon", 0, "longitude attached to uploads")
	classifyCmd.Flags().StringVar(&classifyOpts.Notes, "notes", "", "notes attached to uploads")

	rootCmd.AddCommand(classifyCmd)
}

func runClassify(ctx context.Context, args []string, opts classifyOptions) {
	var mode orchestrator.Mode
	upload := opts.UploadMode != ""
	if upload {
		m, err := orchestrator.ParseMode(opts.UploadMode)
		if err != nil {
			utils.Die("Invalid --upload value", err)
		}
		mode = m
	}

	sources, err := utils.ExpandSources(args)
	if err != nil {
		utils.Die("No images to classify", err)
	}

	scanner, err := palmscan.New(cfg)
	if err != nil {
		utils.Die("Failed to load the classifier", err)
	}
	defer scanner.Close()
	log.Printf("Model %s loaded: %d labels, %dx%d input", scanner.Spec().Version, len(scanner.Labels()), scanner.Spec().ImageSize, scanner.Spec().ImageSize)

	if upload && scanner.Uploader() == nil {
		utils.Die("Upload requested", errors.New("no record store configured (set --server or upload.server_url)"))
	}

	sessionOpts := orchestrator.Options{
		TopN:   opts.TopN,
		Logger: log.Printf,
		Observer: func(s orchestrator.Snapshot) {
			if s.Err != nil {
				log.Printf("Session %s: %v", s.State, s.Err)
				return
			}
			log.Printf("Session %s: %s", s.State, s.Message)
		},
	}
	sessionOpts.Record.Notes = opts.Notes
	if opts.Latitude != 0 || opts.Longitude != 0 {
		sessionOpts.Record.Location = &types.Location{Latitude: opts.Latitude, Longitude: opts.Longitude}
	}
	session := scanner.NewSession(sessionOpts)

	if len(sources) == 1 {
		classifyOne(ctx, scanner, session, sources[0], upload, mode, opts)
		return
	}
	classifyBatch(ctx, scanner, session, sources, upload, mode, opts)
}

// classifyOne runs a single capture with the loading stages and prints the
// full result
func classifyOne(ctx context.Context, scanner *palmscan.Scanner, session *orchestrator.Session, source string, upload bool, mode orchestrator.Mode, opts classifyOptions) {
	frame := scanner.Pipeline().Processor().Frame(source)

	stagesCtx, stopStages := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if !opts.NoStages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			playStages(stagesCtx)
		}()
	}

	display, err := session.Capture(ctx, frame)
	if err != nil {
		stopStages()
		wg.Wait()
		utils.Die("Classification failed for "+source, err)
	}
	wg.Wait()
	stopStages()

	fmt.Println()
	fmt.Print(display.Text)

	if opts.SaveNormalized != "" {
		saveNormalized(scanner, frame, source, opts.SaveNormalized)
	}

	if upload {
		uploadCurrent(ctx, session, mode)
	}
}

func playStages(ctx context.Context) {
	stages := orchestrator.LoadingStages
	bar := progressbar.NewOptions(len(stages),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	orchestrator.PlayStages(ctx, stages, func(i int, s orchestrator.Stage) {
		bar.Describe(s.Title + " " + s.Detail)
		bar.Set(i + 1)
	})
	bar.Finish()
}

type batchRow struct {
	source  string
	label   string
	percent int
	tier    string
	scanID  string
	err     error
}

// classifyBatch classifies every source in turn with a progress bar and
// prints a summary table
func classifyBatch(ctx context.Context, scanner *palmscan.Scanner, session *orchestrator.Session, sources []string, upload bool, mode orchestrator.Mode, opts classifyOptions) {
	bar := progressbar.NewOptions(len(sources),
		progressbar.OptionSetDescription("🥥 Classifying"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	rows := make([]batchRow, 0, len(sources))
	for _, source := range sources {
		if ctx.Err() != nil {
			break
		}
		row := batchRow{source: source}

		frame := scanner.Pipeline().Processor().Frame(source)
		display, err := session.Capture(ctx, frame)
		if err != nil {
			row.err = err
		} else {
			row.label = display.Result.TopLabel
			row.percent = presentation.ConfidencePercent(display.Result.TopConfidence)
			row.tier = display.Presentation.SeverityLevel()

			if opts.SaveNormalized != "" {
				saveNormalized(scanner, frame, source, opts.SaveNormalized)
			}
			if upload {
				receipt, err := session.Upload(ctx, mode)
				if err != nil {
					row.err = err
				} else {
					row.scanID = receipt.ScanID
				}
			}
		}

		rows = append(rows, row)
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tRESULT\tCONFIDENCE\tSEVERITY\tSCAN ID")
	fmt.Fprintln(w, "-----\t------\t----------\t--------\t-------")
	failed := 0
	for _, r := range rows {
		if r.err != nil && r.label == "" {
			failed++
			fmt.Fprintf(w, "%s\t❌ %v\t\t\t\n", r.source, r.err)
			continue
		}
		scanID := r.scanID
		if r.err != nil {
			failed++
			scanID = "saved locally only"
		}
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\n", r.source, presentation.DisplayName(r.label), r.percent, r.tier, scanID)
	}
	w.Flush()

	if failed > 0 {
		log.Printf("%d of %d images failed", failed, len(rows))
	}
}

func uploadCurrent(ctx context.Context, session *orchestrator.Session, mode orchestrator.Mode) {
	log.Printf("☁️ Uploading (%s)...", mode)
	receipt, err := session.Upload(ctx, mode)
	if err != nil {
		if errors.Is(err, types.ErrUploadFailed) {
			fmt.Printf("\n⚠️ Upload failed, saved locally only: %v\n", err)
			fmt.Println("Run `palmscan scans retry` to send it later.")
			return
		}
		utils.Die("Upload failed", err)
	}
	fmt.Printf("\n✅ Uploaded as %s", receipt.ScanID)
	if receipt.ImageURL != "" {
		fmt.Printf(" (%s)", receipt.ImageURL)
	}
	fmt.Println()
}

func saveNormalized(scanner *palmscan.Scanner, frame processing.Frame, source, dir string) {
	proc := scanner.Pipeline().Processor()
	buf, err := proc.Normalize(frame)
	if err != nil {
		log.Printf("Failed to normalize %s: %v", source, err)
		return
	}
	if err := utils.EnsureDir(dir); err != nil {
		log.Printf("Failed to create %s: %v", dir, err)
		return
	}

	out := utils.GenerateOutputFilename(source, dir, "", fmt.Sprintf("_%d", buf.Size), "png")
	if err := proc.SaveImage(processing.ToImage(buf), out, "png", 0, false); err != nil {
		log.Printf("Failed to save %s: %v", out, err)
		return
	}
	log.Printf("Normalized input written to %s", out)
}
