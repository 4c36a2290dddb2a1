/**
 * Tesseract text-presence probe
 *
 * Word-level recognition through gosseract. Used only to decide whether a
 * page carries enough text for OSD to be trusted; the recognized words are
 * discarded.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/cshinei1990/PDF-rotate/internal/logging"
)

// DefaultMaxInFlightProbes bounds recognitions that may still be running.
const DefaultMaxInFlightProbes = 4

// TextProbe implements orientation.TextPresenceProbe.
//
// A recognition cannot be interrupted once started: after a timeout its
// goroutine and gosseract client run on until tesseract returns. At most
// MaxInFlight such recognitions exist at once; further probes wait for a
// slot within their own timeout and report no text if none frees up.
type TextProbe struct {
	languages []string
	timeout   time.Duration
	inflight  chan struct{}
	run       func(data []byte) (bool, error)
	logger    *logging.Logger
}

// TextProbeConfig holds text probe configuration
type TextProbeConfig struct {
	Languages   string // tesseract "+"-joined form, e.g. jpn+jpn_vert+eng
	Timeout     time.Duration
	MaxInFlight int // default: DefaultMaxInFlightProbes
}

// NewTextProbe creates a new text probe
func NewTextProbe(cfg *TextProbeConfig) *TextProbe {
	langs := strings.Split(cfg.Languages, "+")
	if cfg.Languages == "" {
		langs = []string{"eng"}
	}
	limit := cfg.MaxInFlight
	if limit < 1 {
		limit = DefaultMaxInFlightProbes
	}
	t := &TextProbe{
		languages: langs,
		timeout:   cfg.Timeout,
		inflight:  make(chan struct{}, limit),
		logger:    logging.NewLogger("TextProbe"),
	}
	t.run = t.recognize
	return t
}

// HasText reports whether any word with a real confidence was recognized.
// Recognition failures and timeouts count as no text.
func (t *TextProbe) HasText(ctx context.Context, img image.Image) bool {
	data, err := encodePNG(img)
	if err != nil {
		t.logger.Warn("Failed to encode page for text probe", "error", err)
		return false
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	select {
	case t.inflight <- struct{}{}:
	case <-ctx.Done():
		t.logger.Warn("Text probe skipped, earlier recognitions still running", "in_flight", cap(t.inflight))
		return false
	}

	// gosseract calls block in cgo; the client is owned by the goroutine,
	// which holds its in-flight slot until tesseract returns.
	found := make(chan bool, 1)
	go func() {
		defer func() { <-t.inflight }()
		ok, err := t.run(data)
		if err != nil {
			t.logger.Debug("Text probe failed", "error", err)
		}
		found <- ok
	}()

	select {
	case ok := <-found:
		return ok
	case <-ctx.Done():
		t.logger.Warn("Text probe timed out", "timeout", t.timeout)
		return false
	}
}

func (t *TextProbe) recognize(data []byte) (bool, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return false, fmt.Errorf("failed to set languages: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return false, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return false, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	for _, box := range boxes {
		if strings.TrimSpace(box.Word) != "" && box.Confidence >= 0 {
			return true, nil
		}
	}
	return false, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
