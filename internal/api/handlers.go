package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Wojt3kW/ocrpdf/internal/jobs"
	"github.com/Wojt3kW/ocrpdf/internal/ocr"
	"github.com/Wojt3kW/ocrpdf/internal/platform"
	"github.com/Wojt3kW/ocrpdf/internal/processor"
)

//go:embed index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// operation is one of the two pipeline entry points.
type operation func(ctx context.Context, job *jobs.Job, up processor.Upload) (*processor.Result, error)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writePDF(w http.ResponseWriter, res *processor.Result) {
	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", contentDisposition(res.Filename))
	h.Set("Content-Length", strconv.Itoa(len(res.Data)))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		slog.Warn("failed to write PDF response", "error", err)
	}
}

// contentDisposition names the attachment. A name outside printable ASCII is
// sent as RFC 2231 filename* with a sanitized plain filename for older clients.
func contentDisposition(name string) string {
	if isPrintableASCII(name) {
		return mime.FormatMediaType("attachment", map[string]string{"filename": name})
	}
	plain := mime.FormatMediaType("attachment", map[string]string{"filename": processor.SanitizeFilename(name)})
	encoded := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	return plain + strings.TrimPrefix(encoded, "attachment")
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}

type healthResponse struct {
	Status           string          `json:"status"`
	Version          string          `json:"version"`
	Platform         string          `json:"platform"`
	Paths            *platform.Paths `json:"paths,omitempty"`
	OCRMode          string          `json:"ocr_mode"`
	OCRBackend       string          `json:"ocr_backend,omitempty"`
	Languages        []string        `json:"languages"`
	Installed        []string        `json:"installed_languages"`
	MissingLanguages []string        `json:"missing_languages,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   Version,
		Platform:  s.resolver.OS().String(),
		OCRMode:   s.cfg.OCR.Mode,
		Languages: s.cfg.OCR.Languages,
		Installed: []string{},
	}

	paths, err := s.resolver.Resolve()
	if err != nil {
		resp.Status = "degraded"
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Paths = &paths

	if mode, err := ocr.ParseMode(s.cfg.OCR.Mode); err == nil {
		resp.OCRBackend = string(ocr.ResolveMode(mode, paths.EngineBinaries))
	}

	if installed, err := ocr.LanguageModels(paths.LanguageData); err == nil {
		resp.Installed = installed
	}
	resp.MissingLanguages = ocr.MissingLanguages(paths.LanguageData, s.cfg.OCR.Languages)
	if len(resp.MissingLanguages) > 0 {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct{ Field string }{Field: s.cfg.Upload.Field}
	if err := indexTemplate.Execute(w, data); err != nil {
		slog.Error("failed to render index", "error", err)
	}
}

func (s *Server) handleAddTextLayer(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, jobs.OpAddTextLayer, s.pipeline.AddTextLayer)
}

func (s *Server) handleImageToPDF(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, jobs.OpImageToOCRPDF, s.pipeline.ProcessImageToOCRPDF)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, op string, run operation) {
	up, cleanup, err := s.readUpload(r)
	defer cleanup()

	job := jobs.New(op, up.Filename)
	log := slog.With("job_id", job.ID, "request_id", middleware.GetReqID(r.Context()), "operation", op)

	if err != nil {
		job.Fail(err)
		log.Info("malformed upload", "error", err)
		http.Error(w, processor.MsgNoFile, http.StatusBadRequest)
		return
	}
	log.Debug("upload received", "filename", up.Filename, "content_type", up.ContentType, "size", up.Size)

	// Once accepted, processing runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	res, err := run(ctx, job, up)
	if err != nil {
		kind := processor.KindOf(err)
		status := kind.HTTPStatus()
		if status >= http.StatusInternalServerError {
			log.Error("processing failed", "kind", kind, "error", err)
		} else {
			log.Info("request rejected", "kind", kind, "reason", processor.PublicMessage(err))
		}
		http.Error(w, processor.PublicMessage(err), status)
		return
	}

	writePDF(w, res)
	if err := job.Transition(jobs.StateResponded); err != nil {
		log.Error("job state", "error", err)
	}
	log.Info("document returned", "filename", res.Filename, "size", len(res.Data), "ocr", res.OCRApplied)
}

// readUpload extracts the configured file field. A request without a file,
// or that is not multipart at all, yields an empty upload.
func (s *Server) readUpload(r *http.Request) (processor.Upload, func(), error) {
	cleanup := func() {}

	if err := r.ParseMultipartForm(s.cfg.Upload.MaxMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return processor.Upload{}, cleanup, nil
		}
		return processor.Upload{}, cleanup, err
	}
	form := r.MultipartForm
	cleanup = func() {
		if err := form.RemoveAll(); err != nil {
			slog.Warn("remove multipart temp files", "error", err)
		}
	}

	file, header, err := r.FormFile(s.cfg.Upload.Field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return processor.Upload{}, cleanup, nil
		}
		return processor.Upload{}, cleanup, err
	}

	removeForm := cleanup
	cleanup = func() {
		file.Close()
		removeForm()
	}

	return processor.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, cleanup, nil
}
