// Package ocr runs the external OCR engine over working documents.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Wojt3kW/ocrpdf/internal/pdfdoc"
)

// Mode selects the OCR backend.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeOCRmyPDF  Mode = "ocrmypdf"
	ModeTesseract Mode = "tesseract"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAuto, ModeOCRmyPDF, ModeTesseract:
		return m, nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown OCR mode %q", s)
	}
}

// Settings configures a single OCR session.
type Settings struct {
	Languages    []string
	TessDataPath string
	BinaryPath   string
	DPI          int
}

// LanguageString joins the languages the way tesseract expects them.
func (s Settings) LanguageString() string {
	return strings.Join(s.Languages, "+")
}

// Engine opens request-scoped OCR sessions.
type Engine interface {
	Open(settings Settings) (Session, error)
}

// Session embeds a recognized text layer into a document. Close must be
// called on every path once the session is no longer needed.
type Session interface {
	PerformOCR(ctx context.Context, doc *pdfdoc.Document) error
	Close() error
}

// Exec is an Engine that shells out to ocrmypdf or tesseract.
type Exec struct {
	mode    Mode
	tempDir string
}

// NewExec creates an exec-backed engine. Sessions keep their files below tempDir.
func NewExec(mode Mode, tempDir string) *Exec {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Exec{mode: mode, tempDir: tempDir}
}

// Open creates a session with its own working directory.
func (e *Exec) Open(settings Settings) (Session, error) {
	if len(settings.Languages) == 0 {
		return nil, errors.New("no OCR languages configured")
	}
	if settings.DPI <= 0 {
		settings.DPI = 300
	}

	dir := filepath.Join(e.tempDir, "ocr-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create OCR work dir: %w", err)
	}

	return &execSession{
		mode:     e.mode,
		settings: settings,
		dir:      dir,
	}, nil
}

type execSession struct {
	mode     Mode
	settings Settings
	dir      string
}

func (s *execSession) PerformOCR(ctx context.Context, doc *pdfdoc.Document) error {
	input := filepath.Join(s.dir, "input.pdf")
	output := filepath.Join(s.dir, "output.pdf")

	f, err := os.Create(input)
	if err != nil {
		return fmt.Errorf("create OCR input: %w", err)
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write OCR input: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write OCR input: %w", err)
	}

	mode := s.resolveMode()
	slog.Debug("running OCR backend", "mode", mode, "languages", s.settings.LanguageString(), "dir", s.dir)

	switch mode {
	case ModeOCRmyPDF:
		err = runOCRMyPDF(ctx, s.settings, input, output)
	default:
		err = runTesseract(ctx, s.settings, s.dir, input, output)
	}
	if err != nil {
		return err
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return fmt.Errorf("read OCR output: %w", err)
	}
	return doc.Replace(data)
}

func (s *execSession) Close() error {
	return os.RemoveAll(s.dir)
}

func (s *execSession) resolveMode() Mode {
	return ResolveMode(s.mode, s.settings.BinaryPath)
}

// ResolveMode returns the backend a session would use. Auto picks ocrmypdf
// when it is found in binaryDir or on PATH, tesseract otherwise.
func ResolveMode(mode Mode, binaryDir string) Mode {
	if mode != ModeAuto {
		return mode
	}
	if _, err := findBinary(binaryDir, "ocrmypdf"); err == nil {
		return ModeOCRmyPDF
	}
	return ModeTesseract
}
