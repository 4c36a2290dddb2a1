/**
 * PDF container access backed by pdfcpu
 *
 * Only the /Rotate entry of each page dictionary is touched; content streams
 * are carried through unchanged.
 */

package document

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/cshinei1990/PDF-rotate/internal/orientation"
)

// Container is the page-rotation view of a document the processor works on.
// Pages are numbered from 1.
type Container interface {
	PageCount() int
	Rotation(page int) (int, error)
	SetRotation(page int, degrees int) error
	WriteFile(path string) error
	Close() error
}

// PDF is a Container over a pdfcpu context.
type PDF struct {
	path string
	ctx  *model.Context
}

// Open reads and validates the PDF at path.
func Open(path string) (*PDF, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("count pages of %s: %w", path, err)
	}
	return &PDF{path: path, ctx: ctx}, nil
}

func (p *PDF) PageCount() int {
	return p.ctx.PageCount
}

// Rotation returns the page's effective /Rotate, including a value inherited
// from the page tree, normalized into [0, 360).
func (p *PDF) Rotation(page int) (int, error) {
	_, _, inh, err := p.ctx.PageDict(page, false)
	if err != nil {
		return 0, fmt.Errorf("page %d: %w", page, err)
	}
	if inh == nil {
		return 0, nil
	}
	return orientation.Normalize(inh.Rotate), nil
}

// SetRotation writes /Rotate directly on the page dictionary, which overrides
// any inherited value.
func (p *PDF) SetRotation(page int, degrees int) error {
	d, _, _, err := p.ctx.PageDict(page, false)
	if err != nil {
		return fmt.Errorf("page %d: %w", page, err)
	}
	if d == nil {
		return fmt.Errorf("page %d: no page dictionary", page)
	}
	d.Update("Rotate", types.Integer(orientation.Normalize(degrees)))
	return nil
}

func (p *PDF) WriteFile(path string) error {
	return api.WriteContextFile(p.ctx, path)
}

// Close releases the context. pdfcpu holds no open handles after reading.
func (p *PDF) Close() error {
	p.ctx = nil
	return nil
}

// Path returns the file the document was read from.
func (p *PDF) Path() string {
	return p.path
}
