// Package ocrtest provides an in-memory OCR engine for tests.
package ocrtest

import (
	"context"
	"sync"

	"github.com/Wojt3kW/ocrpdf/internal/ocr"
	"github.com/Wojt3kW/ocrpdf/internal/pdfdoc"
	"github.com/Wojt3kW/ocrpdf/internal/pdfdoc/pdftest"
)

// Engine replaces each document with a text PDF carrying Text on every page.
type Engine struct {
	Text    string
	OpenErr error
	OCRErr  error

	mu       sync.Mutex
	settings []ocr.Settings
	opened   int
	closed   int
	ran      int
}

// New returns an engine that "recognizes" text.
func New(text string) *Engine {
	return &Engine{Text: text}
}

func (e *Engine) Open(settings ocr.Settings) (ocr.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	e.opened++
	e.settings = append(e.settings, settings)
	return &session{engine: e}, nil
}

// Settings returns the settings of every opened session.
func (e *Engine) Settings() []ocr.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ocr.Settings(nil), e.settings...)
}

// Opened returns the number of sessions opened.
func (e *Engine) Opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

// Closed returns the number of sessions closed.
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Runs returns the number of PerformOCR calls.
func (e *Engine) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ran
}

type session struct {
	engine *Engine
}

func (s *session) PerformOCR(_ context.Context, doc *pdfdoc.Document) error {
	e := s.engine
	e.mu.Lock()
	e.ran++
	err := e.OCRErr
	e.mu.Unlock()
	if err != nil {
		return err
	}

	pages := make([]string, doc.PageCount())
	for i := range pages {
		pages[i] = e.Text
	}
	return doc.Replace(pdftest.TextPDF(pages...))
}

func (s *session) Close() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.engine.closed++
	return nil
}
