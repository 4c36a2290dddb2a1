package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Rasterizer renders one page of a document file to an image. Pages are
// numbered from 1.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, page int) (image.Image, error)
}

// PopplerRasterizer shells out to pdftoppm. It renders the page as stored,
// with the file's own /Rotate applied.
type PopplerRasterizer struct {
	pdftoppmPath string
	dpi          int
	tempDir      string
}

// NewPopplerRasterizer creates a rasterizer; an empty path means pdftoppm on PATH.
func NewPopplerRasterizer(pdftoppmPath string, dpi int, tempDir string) *PopplerRasterizer {
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	return &PopplerRasterizer{pdftoppmPath: pdftoppmPath, dpi: dpi, tempDir: tempDir}
}

func (r *PopplerRasterizer) Rasterize(ctx context.Context, path string, page int) (image.Image, error) {
	dir, err := os.MkdirTemp(r.tempDir, "orient-raster-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, r.pdftoppmPath,
		"-png", "-singlefile",
		"-r", strconv.Itoa(r.dpi),
		"-f", n, "-l", n,
		path, prefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm convert failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	f, err := os.Open(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced no image: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}
	return img, nil
}
