/**
 * orient - page orientation correction for scanned PDFs
 *
 * Usage:
 *   orient [flags] file.pdf...          correct files locally
 *   orient enqueue [flags] file.pdf...  submit files to the worker queue
 *   orient worker [flags]               consume the queue until SIGINT/SIGTERM
 *
 * Each page is classified landscape/portrait, normalized to portrait with
 * Tesseract OSD, then resolved upright/inverted from OSD, an optional pose
 * estimator and the document's majority vote. Corrected files are written
 * next to the input as <name>_rot.pdf; pages that need a human look are
 * listed at the end.
 */

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cshinei1990/PDF-rotate/internal/config"
	"github.com/cshinei1990/PDF-rotate/internal/logging"
	"github.com/cshinei1990/PDF-rotate/internal/orientation"
	"github.com/cshinei1990/PDF-rotate/internal/pose"
	"github.com/cshinei1990/PDF-rotate/internal/processor"
	"github.com/cshinei1990/PDF-rotate/internal/queue"
	"github.com/cshinei1990/PDF-rotate/internal/storage"
)

var logger = logging.NewLogger("orient")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	mode := "local"
	if len(args) > 0 && (args[0] == "enqueue" || args[0] == "worker") {
		mode, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("orient "+mode, flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (default $ORIENT_CONFIG)")
	// Numbers are taken as strings so a typo falls back to the default
	threshold := fs.String("threshold", fmt.Sprint(config.DefaultConfidenceThreshold), "confidence threshold")
	dpi := fs.String("dpi", fmt.Sprint(config.DefaultDPI), "rasterization resolution")
	prompt := fs.Bool("prompt", false, "ask for threshold and DPI interactively")
	poseCmd := fs.String("pose", "", "pose landmark command, e.g. \"python3 scripts/pose_landmarks.py\"")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Explicit flags beat file and environment
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "threshold":
			cfg.ConfidenceThreshold = floatOrDefault(stdout, "Confidence threshold", *threshold, cfg.ConfidenceThreshold, config.ValidThreshold)
		case "dpi":
			cfg.DPI = intOrDefault(stdout, "DPI", *dpi, cfg.DPI, config.ValidDPI)
		case "pose":
			cfg.PoseCommand = *poseCmd
		}
	})

	in := bufio.NewReader(stdin)
	if *prompt {
		cfg.ConfidenceThreshold = promptFloat(in, stdout, "Confidence threshold", cfg.ConfidenceThreshold, config.ValidThreshold)
		cfg.DPI = promptInt(in, stdout, "DPI", cfg.DPI, config.ValidDPI)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logging.Configure(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "worker":
		return runWorker(ctx, cfg)
	case "enqueue":
		return runEnqueue(ctx, cfg, pathsFrom(fs.Args(), in, stdout), stdout)
	default:
		return runLocal(ctx, cfg, pathsFrom(fs.Args(), in, stdout), stdout)
	}
}

func pathsFrom(args []string, in *bufio.Reader, out io.Writer) []string {
	if len(args) > 0 {
		return expandPaths(args)
	}
	return readPaths(in, out)
}

// buildProcessor wires detectors, the resolver and the rasterizer. The
// returned cleanup stops the pose process if one was configured.
func buildProcessor(cfg *config.Config, sink processor.ResultSink) (*processor.DocumentProcessor, func(), error) {
	osd := processor.NewTesseractOSD(&processor.TesseractConfig{
		TesseractPath: cfg.TesseractPath,
		Languages:     cfg.Languages,
		DPI:           cfg.DPI,
		Timeout:       cfg.DetectorTimeout,
	})
	if !osd.IsAvailable() {
		logger.Warn("tesseract did not run; every OSD reading will be zero", "path", cfg.TesseractPath)
	}
	text := processor.NewTextProbe(&processor.TextProbeConfig{
		Languages: cfg.TextLanguages,
		Timeout:   cfg.DetectorTimeout,
	})

	var poseEstimator orientation.PoseEstimator
	cleanup := func() {}
	if cfg.PoseCommand != "" {
		est, err := pose.NewSubprocessEstimator(cfg.PoseCommand, cfg.DetectorTimeout)
		if err != nil {
			return nil, nil, err
		}
		poseEstimator = est
		cleanup = func() { est.Close() }
	}

	resolver := orientation.NewResolver(cfg.ResolverConfig(), osd, text, poseEstimator)

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Resolver:      resolver,
		Rasterizer:    processor.NewPopplerRasterizer(cfg.PdftoppmPath, cfg.DPI, cfg.TempDir),
		Sink:          sink,
		RasterWorkers: cfg.RasterWorkers,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return proc, cleanup, nil
}

func runLocal(ctx context.Context, cfg *config.Config, paths []string, out io.Writer) int {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "No PDF files selected.")
		return 1
	}

	var sink processor.ResultSink
	if cfg.DatabaseURL != "" {
		sm, err := storage.NewStorageManager(ctx, cfg.DatabaseURL, "", cfg.QueueName)
		if err != nil {
			logger.Warn("Audit store unavailable; continuing without it", "error", err)
		} else {
			defer sm.Close()
			sink = sm
		}
	}

	proc, cleanup, err := buildProcessor(cfg, sink)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize document processor: %v\n", err)
		return 1
	}
	defer cleanup()

	fmt.Fprintf(out, "Threshold %g, DPI %d\n", cfg.ConfidenceThreshold, cfg.DPI)

	status := 0
	for _, path := range paths {
		if ctx.Err() != nil {
			return 130
		}
		fmt.Fprintf(out, "\n=== %s ===\n", path)
		res, err := proc.ProcessDocument(ctx, &processor.ProcessRequest{InputPath: path})
		if err != nil {
			fmt.Fprintf(out, "Failed: %v\n", err)
			status = 1
			continue
		}
		printSummary(out, res)
	}
	return status
}

func printSummary(out io.Writer, res *processor.ProcessResult) {
	fmt.Fprintf(out, "Saved: %s (changed pages: %d of %d)\n", res.OutputPath, res.ChangedPages, res.PageCount)
	if len(res.LowConfidence) == 0 {
		return
	}
	fmt.Fprintf(out, "Low-confidence pages, please verify (threshold %g):\n", res.Threshold)
	for _, e := range res.LowConfidence {
		fmt.Fprintf(out, "  page %d: rotate %d (primary %d, updown %d) conf %.2f primary conf %.2f via %s\n",
			e.Page, e.TotalRotation, e.PrimaryRotation, e.UpdownRotation,
			e.Confidence, e.PrimaryConfidence, e.Provenance)
	}
}

func runEnqueue(ctx context.Context, cfg *config.Config, paths []string, out io.Writer) int {
	if cfg.RedisURL == "" {
		fmt.Fprintln(os.Stderr, "REDIS_URL is required to enqueue")
		return 1
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "No PDF files selected.")
		return 1
	}

	enq, err := queue.NewEnqueuer(cfg.RedisURL, cfg.QueueName, cfg.ProcessingTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to queue: %v\n", err)
		return 1
	}
	defer enq.Close()

	status := 0
	for _, path := range paths {
		jobID, err := enq.Enqueue(ctx, path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			status = 1
			continue
		}
		fmt.Fprintf(out, "%s: job %s\n", path, jobID)
	}
	return status
}

func runWorker(ctx context.Context, cfg *config.Config) int {
	if cfg.RedisURL == "" {
		fmt.Fprintln(os.Stderr, "REDIS_URL is required for worker mode")
		return 1
	}

	logger.Info("Orientation worker starting...",
		"queue", cfg.QueueName, "workers", cfg.WorkerConcurrency,
		"threshold", cfg.ConfidenceThreshold, "dpi", cfg.DPI)

	storageManager, err := storage.NewStorageManager(ctx, cfg.DatabaseURL, cfg.RedisURL, cfg.QueueName)
	if err != nil {
		logger.Error("Failed to initialize storage manager", "error", err)
		return 1
	}
	defer storageManager.Close()

	proc, cleanup, err := buildProcessor(cfg, storageManager)
	if err != nil {
		logger.Error("Failed to initialize document processor", "error", err)
		return 1
	}
	defer cleanup()

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		Tracker:           storageManager,
		ProcessingTimeout: cfg.ProcessingTimeout,
	})
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		return 1
	}
	if err := consumer.Start(ctx); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		return 1
	}
	logger.Info("Waiting for jobs...")

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining...")

	if err := consumer.Stop(context.Background()); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}
	logger.Info("Shutdown complete")
	return 0
}
