/**
 * Document Processor for the orientation worker
 *
 * Orchestrates one document:
 * - output naming and PDF magic-byte check
 * - rasterization prefetch across pages (bounded)
 * - a strictly sequential resolve/compose fold in page order
 * - save with alternate-name retry
 * - optional audit of the run
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cshinei1990/PDF-rotate/internal/document"
	"github.com/cshinei1990/PDF-rotate/internal/errors"
	"github.com/cshinei1990/PDF-rotate/internal/logging"
	"github.com/cshinei1990/PDF-rotate/internal/orientation"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
}

// ContainerOpener opens a document for rotation edits.
type ContainerOpener func(path string) (document.Container, error)

// ResultSink records finished runs. Failures are logged, never fatal: the
// rotated document is already on disk by then.
type ResultSink interface {
	StoreResult(ctx context.Context, res *ProcessResult) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Resolver      *orientation.Resolver
	Rasterizer    Rasterizer
	Open          ContainerOpener // defaults to document.Open
	Sink          ResultSink      // optional
	RasterWorkers int
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	resolver   *orientation.Resolver
	rasterizer Rasterizer
	open       ContainerOpener
	sink       ResultSink
	workers    int
	logger     *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Rasterizer == nil {
		return nil, fmt.Errorf("rasterizer is required")
	}

	open := cfg.Open
	if open == nil {
		open = func(path string) (document.Container, error) {
			return document.Open(path)
		}
	}
	workers := cfg.RasterWorkers
	if workers < 1 {
		workers = 1
	}

	return &DocumentProcessor{
		resolver:   cfg.Resolver,
		rasterizer: cfg.Rasterizer,
		open:       open,
		sink:       cfg.Sink,
		workers:    workers,
		logger:     logging.NewLogger("DocumentProcessor"),
	}, nil
}

// ProcessDocument corrects every page of req.InputPath and writes the result
// next to it.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	logger := p.logger.With("file", req.InputPath)
	if req.JobID != "" {
		logger = logger.With("job_id", req.JobID)
	}

	// Step 1: Make sure we are looking at a PDF
	if err := checkPDFMagic(req.InputPath); err != nil {
		return nil, errors.NewDocumentOpenError(req.InputPath, err)
	}

	// Step 2: Pick the output name before doing any work
	outPath := req.OutputPath
	if outPath == "" {
		var err error
		if outPath, err = document.DetermineOutputPath(req.InputPath); err != nil {
			return nil, err
		}
	}

	// Step 3: Open the container
	doc, err := p.open(req.InputPath)
	if err != nil {
		return nil, errors.NewDocumentOpenError(req.InputPath, err)
	}
	defer doc.Close()

	total := doc.PageCount()
	logger.Info("Starting orientation pass", "pages", total, "output", outPath)

	result := &ProcessResult{
		RunID:     uuid.NewString(),
		JobID:     req.JobID,
		InputPath: req.InputPath,
		PageCount: total,
		Threshold: p.resolver.Threshold(),
		Pages:     make([]PageResult, 0, total),
		StartedAt: startTime,
	}

	// Step 4: Prefetch rasters and fold decisions in page order
	tracker := orientation.NewFallbackTracker()
	report := orientation.NewReportCollector(p.resolver.Threshold())

	err = p.foldPages(ctx, req.InputPath, total, func(page int, img image.Image) error {
		pre, err := doc.Rotation(page)
		if err != nil {
			return errors.NewDocumentOpenError(req.InputPath, err)
		}

		d := p.resolver.Resolve(ctx, img, tracker)
		final, changed := orientation.Compose(pre, d.TotalRotation)
		if changed {
			if err := doc.SetRotation(page, final); err != nil {
				return fmt.Errorf("set rotation of page %d: %w", page, err)
			}
			result.ChangedPages++
		}
		report.Observe(page, d)

		result.Pages = append(result.Pages, PageResult{
			Page:        page,
			PreExisting: pre,
			Final:       final,
			Changed:     changed,
			Decision:    d,
		})
		logger.Debug("Page decided", "page", page, "pre", pre, "final", final, "decision", d.String())
		if req.Progress != nil {
			req.Progress(page, total)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Step 5: Save
	saved, err := document.Save(ctx, doc, outPath)
	if err != nil {
		return nil, err
	}
	if saved != outPath {
		logger.Warn("Output was not writable, saved under alternate name", "requested", outPath, "saved", saved)
	}

	result.OutputPath = saved
	result.LowConfidence = report.Entries()
	result.Duration = time.Since(startTime)

	logger.Info("Orientation pass complete",
		"saved", saved,
		"changed_pages", result.ChangedPages,
		"low_confidence", len(result.LowConfidence),
		"duration_ms", result.Duration.Milliseconds())

	// Step 6: Audit
	if p.sink != nil {
		if err := p.sink.StoreResult(ctx, result); err != nil {
			logger.Warn("Failed to record run", "run_id", result.RunID, "error", err)
		}
	}

	return result, nil
}

// foldPages rasterizes pages ahead of the consumer on up to p.workers
// goroutines and calls fn for pages 1..total strictly in order. At most
// 2*p.workers rasters are held at once.
func (p *DocumentProcessor) foldPages(ctx context.Context, path string, total int, fn func(page int, img image.Image) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	// One extra slot for the producer below.
	g.SetLimit(p.workers + 1)

	ready := make([]chan image.Image, total)
	for i := range ready {
		ready[i] = make(chan image.Image, 1)
	}
	window := make(chan struct{}, 2*p.workers)

	g.Go(func() error {
		for i := 0; i < total; i++ {
			select {
			case window <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			page, slot := i+1, ready[i]
			g.Go(func() error {
				img, err := p.rasterizer.Rasterize(gctx, path, page)
				if err != nil {
					return errors.NewRasterizeError(path, page, err)
				}
				slot <- img
				return nil
			})
		}
		return nil
	})

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return err
		}

		var img image.Image
		select {
		case img = <-ready[i]:
		case <-gctx.Done():
			if err := g.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		}

		if err := fn(i+1, img); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		<-window
	}

	return g.Wait()
}

var pdfMagic = []byte("%PDF-")

// checkPDFMagic looks for the PDF header within the first KiB, where
// readers are required to find it.
func checkPDFMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	if !bytes.Contains(head[:n], pdfMagic) {
		return fmt.Errorf("%s is not a PDF file", path)
	}
	return nil
}
