// Package pdfdoc holds the in-memory PDF a request works on.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrClosed is returned by operations on a closed document.
var ErrClosed = errors.New("document is closed")

func init() {
	// pdfcpu otherwise writes a config directory into the user's home on first use.
	api.DisableConfigDir()
}

// Document is a parsed PDF owned by a single request.
type Document struct {
	data  []byte
	pages int
}

// Load parses and validates data as a PDF.
func Load(data []byte) (*Document, error) {
	ctx, err := parse(data)
	if err != nil {
		return nil, err
	}
	return &Document{data: data, pages: ctx.PageCount}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.pages
}

// FirstPageText extracts the plain text of page 1.
func (d *Document) FirstPageText() (text string, err error) {
	if d.data == nil {
		return "", ErrClosed
	}
	if d.pages == 0 {
		return "", nil
	}

	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract text: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
	if err != nil {
		return "", fmt.Errorf("open text reader: %w", err)
	}
	if r.NumPage() == 0 {
		return "", nil
	}

	page := r.Page(1)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// HasTextLayer reports whether page 1 carries extractable text. Later pages
// are never inspected, so a scan whose first page has a caption counts as
// already searchable.
func (d *Document) HasTextLayer() (bool, error) {
	text, err := d.FirstPageText()
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(text) != "", nil
}

// Replace swaps the document content for data, which must itself be a valid PDF.
func (d *Document) Replace(data []byte) error {
	if d.data == nil {
		return ErrClosed
	}
	ctx, err := parse(data)
	if err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	d.data = data
	d.pages = ctx.PageCount
	return nil
}

// Bytes returns a copy of the serialized document.
func (d *Document) Bytes() ([]byte, error) {
	if d.data == nil {
		return nil, ErrClosed
	}
	out := make([]byte, len(d.data))
	copy(out, d.data)
	return out, nil
}

// WriteTo writes the serialized document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	if d.data == nil {
		return 0, ErrClosed
	}
	n, err := w.Write(d.data)
	return int64(n), err
}

// Close releases the document buffer. It is safe to call more than once.
func (d *Document) Close() error {
	d.data = nil
	d.pages = 0
	return nil
}

// Merge concatenates PDFs into one document in the given order.
func Merge(parts [][]byte) ([]byte, error) {
	switch len(parts) {
	case 0:
		return nil, errors.New("merge: no documents")
	case 1:
		return parts[0], nil
	}

	rsc := make([]io.ReadSeeker, 0, len(parts))
	for _, p := range parts {
		rsc = append(rsc, bytes.NewReader(p))
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(rsc, &buf, false, newConfiguration()); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return buf.Bytes(), nil
}

// Overlay stamps page i of layer onto page i of base, scaled to fill the
// page. Both documents must have the same number of pages.
func Overlay(base, layer []byte) ([]byte, error) {
	baseCtx, err := parse(base)
	if err != nil {
		return nil, fmt.Errorf("overlay base: %w", err)
	}
	layerCtx, err := parse(layer)
	if err != nil {
		return nil, fmt.Errorf("overlay layer: %w", err)
	}
	if baseCtx.PageCount != layerCtx.PageCount {
		return nil, fmt.Errorf("overlay: base has %d pages, layer has %d", baseCtx.PageCount, layerCtx.PageCount)
	}

	wm, err := api.PDFMultiWatermarkForReadSeeker(bytes.NewReader(layer), 1, 1, "scalefactor:1 rel, rotation:0", true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}

	var buf bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(base), &buf, nil, wm, newConfiguration()); err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	return buf.Bytes(), nil
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func parse(data []byte) (ctx *model.Context, err error) {
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}

	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("read pdf: %v", r)
		}
	}()

	ctx, err = api.ReadContext(bytes.NewReader(data), newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	return ctx, nil
}
