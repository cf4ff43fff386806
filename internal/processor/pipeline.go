package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/Wojt3kW/ocrpdf/internal/config"
	"github.com/Wojt3kW/ocrpdf/internal/jobs"
	"github.com/Wojt3kW/ocrpdf/internal/ocr"
	"github.com/Wojt3kW/ocrpdf/internal/pdfdoc"
	"github.com/Wojt3kW/ocrpdf/internal/platform"
)

const (
	textLayerSuffix = "_WithTextLayer.pdf"
	imageSuffix     = "_OCR_PDF.pdf"
)

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	// Size is the declared length; negative when unknown.
	Size int64
	Body io.Reader
}

func (u Upload) empty() bool {
	return u.Body == nil || u.Size == 0
}

// Result is a finished PDF ready to be sent back.
type Result struct {
	Filename   string
	Data       []byte
	OCRApplied bool
}

// Pipeline runs the two conversion operations.
type Pipeline struct {
	engine    ocr.Engine
	resolver  *platform.Resolver
	languages []string
	dpi       int
	layout    pdfdoc.Layout
}

// NewPipeline creates a new processing pipeline.
func NewPipeline(cfg *config.Config, engine ocr.Engine, resolver *platform.Resolver) *Pipeline {
	return &Pipeline{
		engine:    engine,
		resolver:  resolver,
		languages: cfg.OCR.Languages,
		dpi:       cfg.OCR.DPI,
		layout: pdfdoc.Layout{
			Width:  cfg.Page.Width,
			Height: cfg.Page.Height,
			Margin: cfg.Page.Margin,
		},
	}
}

// AddTextLayer returns the uploaded PDF with a text layer. OCR only runs
// when the first page has no extractable text.
func (p *Pipeline) AddTextLayer(ctx context.Context, job *jobs.Job, up Upload) (*Result, error) {
	const op = jobs.OpAddTextLayer
	log := slog.With("job_id", job.ID, "operation", op)

	if up.empty() {
		return nil, reject(job, op, MsgNoFile, KindInvalidInput)
	}
	if !strings.EqualFold(up.ContentType, "application/pdf") {
		return nil, reject(job, op, MsgNotPDF, KindInvalidInput)
	}
	if err := advance(job, op, jobs.StateValidated); err != nil {
		return nil, err
	}

	data, err := buffer(job, op, up)
	if err != nil {
		return nil, err
	}

	doc, err := pdfdoc.Load(data)
	if err != nil {
		log.Info("upload is not a valid PDF", "error", err)
		return nil, reject(job, op, MsgInvalidPDF, KindUnparseableDocument)
	}
	defer doc.Close()

	if err := advance(job, op, jobs.StateParsed); err != nil {
		return nil, err
	}

	hasText, err := doc.HasTextLayer()
	if err != nil {
		log.Warn("text extraction failed, running OCR", "error", err)
		hasText = false
	}
	log.Debug("text layer check", "pages", doc.PageCount(), "has_text", hasText)

	if err := advance(job, op, jobs.StateOCRDecided); err != nil {
		return nil, err
	}

	if !hasText {
		if err := p.runOCR(ctx, doc); err != nil {
			return nil, fail(job, op, err)
		}
		job.SetOCRApplied(true)
	}

	return p.finish(job, op, doc, resultName(up.Filename, textLayerSuffix), !hasText)
}

// ProcessImageToOCRPDF wraps the uploaded image in a single page PDF and
// always runs OCR over it.
func (p *Pipeline) ProcessImageToOCRPDF(ctx context.Context, job *jobs.Job, up Upload) (*Result, error) {
	const op = jobs.OpImageToOCRPDF

	if up.empty() {
		return nil, reject(job, op, MsgNoFile, KindInvalidInput)
	}
	// Case-sensitive like the form's accept filter.
	if !strings.HasPrefix(up.ContentType, "image/") {
		return nil, reject(job, op, MsgNotImage, KindInvalidInput)
	}
	if err := advance(job, op, jobs.StateValidated); err != nil {
		return nil, err
	}

	data, err := buffer(job, op, up)
	if err != nil {
		return nil, err
	}

	img, err := prepareImage(data)
	if err != nil {
		return nil, fail(job, op, err)
	}
	page, err := pdfdoc.NewImagePage(img, p.layout)
	if err != nil {
		return nil, fail(job, op, err)
	}
	if err := advance(job, op, jobs.StateSynthesized); err != nil {
		return nil, err
	}

	doc, err := pdfdoc.Load(page)
	if err != nil {
		return nil, fail(job, op, fmt.Errorf("reload synthesized page: %w", err))
	}
	defer doc.Close()

	if err := advance(job, op, jobs.StateOCRDecided); err != nil {
		return nil, err
	}
	if err := p.runOCR(ctx, doc); err != nil {
		return nil, fail(job, op, err)
	}
	job.SetOCRApplied(true)

	return p.finish(job, op, doc, resultName(up.Filename, imageSuffix), true)
}

func (p *Pipeline) runOCR(ctx context.Context, doc *pdfdoc.Document) error {
	paths, err := p.resolver.Resolve()
	if err != nil {
		return &Error{Kind: KindUnsupportedPlatform, Message: MsgProcessError, Err: err}
	}

	session, err := p.engine.Open(ocr.Settings{
		Languages:    p.languages,
		TessDataPath: paths.LanguageData,
		BinaryPath:   paths.EngineBinaries,
		DPI:          p.dpi,
	})
	if err != nil {
		return fmt.Errorf("open OCR session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("close OCR session", "error", err)
		}
	}()

	if err := session.PerformOCR(ctx, doc); err != nil {
		return fmt.Errorf("perform OCR: %w", err)
	}
	return nil
}

func (p *Pipeline) finish(job *jobs.Job, op string, doc *pdfdoc.Document, filename string, ocrApplied bool) (*Result, error) {
	out, err := doc.Bytes()
	if err != nil {
		return nil, fail(job, op, fmt.Errorf("serialize document: %w", err))
	}
	if err := advance(job, op, jobs.StateProcessed); err != nil {
		return nil, err
	}

	slog.Info("document processed",
		"job_id", job.ID,
		"operation", op,
		"pages", doc.PageCount(),
		"size", len(out),
		"ocr", ocrApplied,
		"filename", filename)

	return &Result{Filename: filename, Data: out, OCRApplied: ocrApplied}, nil
}

// buffer reads the whole upload into memory. A body that turns out to be
// empty is rejected like a missing file.
func buffer(job *jobs.Job, op string, up Upload) ([]byte, error) {
	var buf bytes.Buffer
	if up.Size > 0 {
		buf.Grow(int(up.Size))
	}
	if _, err := io.Copy(&buf, up.Body); err != nil {
		return nil, fail(job, op, fmt.Errorf("read upload: %w", err))
	}
	if err := advance(job, op, jobs.StateBuffered); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, reject(job, op, MsgNoFile, KindInvalidInput)
	}
	return buf.Bytes(), nil
}

func advance(job *jobs.Job, op string, to jobs.State) error {
	if err := job.Transition(to); err != nil {
		return fail(job, op, err)
	}
	slog.Debug("job state", "job_id", job.ID, "state", to)
	return nil
}

func reject(job *jobs.Job, op, msg string, kind ErrorKind) error {
	if err := job.Reject(msg); err != nil {
		slog.Error("reject job", "job_id", job.ID, "error", err)
	}
	return &Error{Kind: kind, Op: op, Message: msg}
}

// fail marks the job failed and classifies err. Errors that already carry
// a kind keep it.
func fail(job *jobs.Job, op string, err error) error {
	job.Fail(err)

	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			e.Op = op
		}
		return e
	}
	return &Error{Kind: KindProcessingFailure, Op: op, Message: MsgProcessError, Err: err}
}

// resultName derives the download name from the uploaded file's name,
// which may carry a client-side directory in either separator style.
func resultName(original, suffix string) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "document"
	}
	return stem + suffix
}

// SanitizeFilename reduces name to a conservative ASCII subset, for
// headers that cannot carry the original.
func SanitizeFilename(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.' {
			result = append(result, c)
		} else if c == ' ' {
			result = append(result, '_')
		}
	}
	if len(result) == 0 {
		return "document"
	}
	return string(result)
}
