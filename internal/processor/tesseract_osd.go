package processor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cshinei1990/PDF-rotate/internal/logging"
	"github.com/cshinei1990/PDF-rotate/internal/orientation"
)

// TesseractOSD implements orientation.OrientationDetector by running
// `tesseract stdin stdout --psm 0` and parsing its report.
type TesseractOSD struct {
	tesseractPath string
	languages     string
	dpi           int
	timeout       time.Duration
	logger        *logging.Logger
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	TesseractPath string
	Languages     string
	DPI           int
	Timeout       time.Duration
}

// NewTesseractOSD creates a new OSD detector
func NewTesseractOSD(cfg *TesseractConfig) *TesseractOSD {
	path := cfg.TesseractPath
	if path == "" {
		path = "tesseract"
	}
	return &TesseractOSD{
		tesseractPath: path,
		languages:     cfg.Languages,
		dpi:           cfg.DPI,
		timeout:       cfg.Timeout,
		logger:        logging.NewLogger("OSD"),
	}
}

// IsAvailable checks that the tesseract binary runs.
func (t *TesseractOSD) IsAvailable() bool {
	return exec.Command(t.tesseractPath, "--version").Run() == nil
}

// DetectOrientation returns the clockwise rotation that makes img upright.
// Any failure yields the zero signal.
func (t *TesseractOSD) DetectOrientation(ctx context.Context, img image.Image) orientation.Signal {
	data, err := encodePNG(img)
	if err != nil {
		t.logger.Warn("Failed to encode page for OSD", "error", err)
		return orientation.Signal{}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	args := []string{"stdin", "stdout", "--psm", "0"}
	if t.languages != "" {
		args = append(args, "-l", t.languages)
	}
	if t.dpi > 0 {
		args = append(args, "--dpi", strconv.Itoa(t.dpi))
	}

	cmd := exec.CommandContext(ctx, t.tesseractPath, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		t.logger.Info("Tesseract OSD failed; using rotation=0, conf=0",
			"error", err, "stderr", strings.TrimSpace(stderr.String()))
		return orientation.Signal{}
	}

	sig, err := parseOSD(out)
	if err != nil {
		t.logger.Info("Tesseract OSD unreadable; using rotation=0, conf=0", "error", err)
		return orientation.Signal{}
	}
	return sig
}

// parseOSD reads the Rotate and Orientation confidence lines of a
// `--psm 0` report.
func parseOSD(out []byte) (orientation.Signal, error) {
	var (
		sig                  orientation.Signal
		haveRotate, haveConf bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "Rotate":
			r, err := strconv.Atoi(value)
			if err != nil {
				return orientation.Signal{}, fmt.Errorf("bad Rotate %q: %w", value, err)
			}
			sig.Rotation = r
			haveRotate = true
		case "Orientation confidence":
			c, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return orientation.Signal{}, fmt.Errorf("bad Orientation confidence %q: %w", value, err)
			}
			sig.Confidence = c
			haveConf = true
		}
	}
	if err := scanner.Err(); err != nil {
		return orientation.Signal{}, err
	}
	if !haveRotate || !haveConf {
		return orientation.Signal{}, fmt.Errorf("OSD report incomplete")
	}
	return sig, nil
}
