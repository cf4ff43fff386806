package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Wojt3kW/ocrpdf/internal/config"
	"github.com/Wojt3kW/ocrpdf/internal/ocr/ocrtest"
	"github.com/Wojt3kW/ocrpdf/internal/pdfdoc"
	"github.com/Wojt3kW/ocrpdf/internal/pdfdoc/pdftest"
	"github.com/Wojt3kW/ocrpdf/internal/platform"
	"github.com/Wojt3kW/ocrpdf/internal/processor"
)

type testServer struct {
	*Server
	engine *ocrtest.Engine
	root   string
}

func newTestServer(t *testing.T, family platform.OS, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	root := t.TempDir()
	tessdata := filepath.Join(root, "Data", "tessdata")
	if err := os.MkdirAll(tessdata, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, lang := range []string{"eng", "pol"} {
		if err := os.WriteFile(filepath.Join(tessdata, lang+".traineddata"), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Server.Auth.Enabled = false // Disable auth for tests
	cfg.Assets.WebRoot = root
	for _, m := range mutate {
		m(cfg)
	}

	engine := ocrtest.New("recognized text")
	resolver := platform.NewResolver(root, family)
	pipeline := processor.NewPipeline(cfg, engine, resolver)

	return &testServer{Server: NewServer(cfg, pipeline, resolver), engine: engine, root: root}
}

func uploadRequest(t *testing.T, path, filename, contentType string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *testServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func attachmentName(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse Content-Disposition %q: %v", w.Header().Get("Content-Disposition"), err)
	}
	if disposition != "attachment" {
		t.Fatalf("expected attachment, got %s", disposition)
	}
	return params["filename"]
}

func expectText(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, w.Code, w.Body.String())
	}
	if got := strings.TrimSpace(w.Body.String()); got != msg {
		t.Fatalf("expected body %q, got %q", msg, got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, platform.Linux)

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Status != "ok" {
		t.Fatalf("expected status 'ok', got %s", resp.Status)
	}
	if resp.Platform != "Linux" {
		t.Fatalf("expected platform Linux, got %s", resp.Platform)
	}
	if resp.Paths == nil || resp.Paths.LanguageData != filepath.Join(srv.root, "Data", "tessdata") {
		t.Fatalf("unexpected paths %+v", resp.Paths)
	}
	if strings.Join(resp.Installed, ",") != "eng,pol" {
		t.Fatalf("unexpected installed languages %v", resp.Installed)
	}
	if resp.OCRMode != "auto" || resp.OCRBackend == "" {
		t.Fatalf("expected auto mode with a resolved backend, got %q/%q", resp.OCRMode, resp.OCRBackend)
	}
}

func TestHealthReportsBackend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bundled binary name differs")
	}

	srv := newTestServer(t, platform.Linux)
	bin := filepath.Join(srv.root, "Data", "Tesseractbinaries", "Linux")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "ocrmypdf"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	var resp healthResponse
	w := serve(srv, httptest.NewRequest("GET", "/api/v1/health", nil))
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OCRBackend != "ocrmypdf" {
		t.Fatalf("expected bundled ocrmypdf in auto mode, got %q", resp.OCRBackend)
	}

	srv = newTestServer(t, platform.Linux, func(c *config.Config) { c.OCR.Mode = "tesseract" })
	resp = healthResponse{}
	w = serve(srv, httptest.NewRequest("GET", "/api/v1/health", nil))
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OCRBackend != "tesseract" {
		t.Fatalf("expected configured tesseract backend, got %q", resp.OCRBackend)
	}
}

func TestHealthEndpointDegraded(t *testing.T) {
	srv := newTestServer(t, platform.Unknown)

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/health", nil))
	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Error == "" {
		t.Fatalf("expected degraded status with error, got %+v", resp)
	}

	srv = newTestServer(t, platform.Windows, func(c *config.Config) { c.OCR.Languages = []string{"pol", "deu"} })
	w = serve(srv, httptest.NewRequest("GET", "/api/v1/health", nil))
	resp = healthResponse{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || strings.Join(resp.MissingLanguages, ",") != "deu" {
		t.Fatalf("expected missing deu, got %+v", resp)
	}
}

func TestAddTextLayerEndpoint(t *testing.T) {
	for _, path := range []string{"/Home/AddTextLayer", "/api/v1/text-layer"} {
		t.Run(path, func(t *testing.T) {
			srv := newTestServer(t, platform.Linux)
			input := pdftest.TextPDF("Already searchable")

			w := serve(srv, uploadRequest(t, path, "scan.pdf", "application/pdf", input))
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
				t.Fatalf("expected application/pdf, got %s", ct)
			}
			if name := attachmentName(t, w); name != "scan_WithTextLayer.pdf" {
				t.Fatalf("unexpected filename %s", name)
			}
			if !bytes.Equal(w.Body.Bytes(), input) {
				t.Fatal("searchable PDF must be returned unchanged")
			}
			if srv.engine.Opened() != 0 {
				t.Fatal("OCR must be skipped")
			}
		})
	}
}

func TestAddTextLayerRunsOCR(t *testing.T) {
	srv := newTestServer(t, platform.Linux)

	w := serve(srv, uploadRequest(t, "/Home/AddTextLayer", "blank.pdf", "application/pdf", pdftest.TextPDF("")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	if srv.engine.Runs() != 1 {
		t.Fatal("expected OCR to run")
	}

	doc, err := pdfdoc.Load(w.Body.Bytes())
	if err != nil {
		t.Fatalf("response is not a PDF: %v", err)
	}
	defer doc.Close()
	if has, _ := doc.HasTextLayer(); !has {
		t.Fatal("response must have a text layer")
	}
}

func TestAddTextLayerErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		msg    string
	}{
		{
			name: "empty file",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/Home/AddTextLayer", "a.pdf", "application/pdf", nil)
			},
			status: http.StatusBadRequest,
			msg:    processor.MsgNoFile,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest("POST", "/Home/AddTextLayer", strings.NewReader(`{"file":"x"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status: http.StatusBadRequest,
			msg:    processor.MsgNoFile,
		},
		{
			name: "wrong field",
			req: func(t *testing.T) *http.Request {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				fw, _ := mw.CreateFormFile("document", "a.pdf")
				fw.Write(pdftest.TextPDF("x"))
				mw.Close()
				req := httptest.NewRequest("POST", "/Home/AddTextLayer", &body)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
			status: http.StatusBadRequest,
			msg:    processor.MsgNoFile,
		},
		{
			name: "wrong type",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/Home/AddTextLayer", "notes.txt", "text/plain", []byte("hello"))
			},
			status: http.StatusBadRequest,
			msg:    processor.MsgNotPDF,
		},
		{
			name: "invalid pdf",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/Home/AddTextLayer", "fake.pdf", "application/pdf", []byte("not a pdf at all"))
			},
			status: http.StatusBadRequest,
			msg:    processor.MsgInvalidPDF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, platform.Linux)
			expectText(t, serve(srv, tt.req(t)), tt.status, tt.msg)
			if srv.engine.Opened() != 0 {
				t.Fatal("engine must not be opened")
			}
		})
	}
}

func TestProcessingFailureReturns500(t *testing.T) {
	srv := newTestServer(t, platform.Linux)
	srv.engine.OCRErr = errors.New("tesseract: cannot open /secret/path")

	w := serve(srv, uploadRequest(t, "/Home/AddTextLayer", "blank.pdf", "application/pdf", pdftest.TextPDF("")))
	expectText(t, w, http.StatusInternalServerError, processor.MsgProcessError)
	if srv.engine.Closed() != 1 {
		t.Fatal("session must be closed")
	}
}

func TestUnsupportedPlatformReturns500(t *testing.T) {
	srv := newTestServer(t, platform.Unknown)

	w := serve(srv, uploadRequest(t, "/Home/ProcessImageToOcrPdf", "photo.png", "image/png", pdftest.PNG(10, 10)))
	expectText(t, w, http.StatusInternalServerError, processor.MsgProcessError)
}

func TestProcessImageEndpoint(t *testing.T) {
	for _, path := range []string{"/Home/ProcessImageToOcrPdf", "/api/v1/image-to-pdf"} {
		t.Run(path, func(t *testing.T) {
			srv := newTestServer(t, platform.Linux)

			w := serve(srv, uploadRequest(t, path, "paragon.jpg", "image/jpeg", pdftest.JPEG(40, 60)))
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
			}
			if name := attachmentName(t, w); name != "paragon_OCR_PDF.pdf" {
				t.Fatalf("unexpected filename %s", name)
			}
			if srv.engine.Runs() != 1 {
				t.Fatal("OCR must always run for images")
			}
			if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
				t.Fatal("response is not a PDF")
			}
		})
	}
}

func TestProcessImageErrors(t *testing.T) {
	srv := newTestServer(t, platform.Linux)

	w := serve(srv, uploadRequest(t, "/Home/ProcessImageToOcrPdf", "scan.pdf", "application/pdf", pdftest.TextPDF("x")))
	expectText(t, w, http.StatusBadRequest, processor.MsgNotImage)

	w = serve(srv, uploadRequest(t, "/Home/ProcessImageToOcrPdf", "a.png", "image/png", nil))
	expectText(t, w, http.StatusBadRequest, processor.MsgNoFile)

	w = serve(srv, uploadRequest(t, "/Home/ProcessImageToOcrPdf", "a.png", "image/png", []byte("garbage")))
	expectText(t, w, http.StatusInternalServerError, processor.MsgProcessError)
}

func TestNonASCIIFilename(t *testing.T) {
	srv := newTestServer(t, platform.Linux)

	w := serve(srv, uploadRequest(t, "/Home/ProcessImageToOcrPdf", "zdjęcie.png", "image/png", pdftest.PNG(8, 8)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if name := attachmentName(t, w); name != "zdjęcie_OCR_PDF.pdf" {
		t.Fatalf("unexpected filename %q", name)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "filename=zdjcie_OCR_PDF.pdf;") {
		t.Fatalf("expected ASCII fallback filename, got %q", got)
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"scan_WithTextLayer.pdf", "attachment; filename=scan_WithTextLayer.pdf"},
		{"my scan_WithTextLayer.pdf", `attachment; filename="my scan_WithTextLayer.pdf"`},
		{"zdjęcie_OCR_PDF.pdf", "attachment; filename=zdjcie_OCR_PDF.pdf; filename*=utf-8''zdj%C4%99cie_OCR_PDF.pdf"},
		{"żółw_OCR_PDF.pdf", "attachment; filename=w_OCR_PDF.pdf; filename*=utf-8''%C5%BC%C3%B3%C5%82w_OCR_PDF.pdf"},
	}

	for _, tt := range tests {
		got := contentDisposition(tt.name)
		if got != tt.want {
			t.Errorf("contentDisposition(%q) = %q, want %q", tt.name, got, tt.want)
		}
		_, params, err := mime.ParseMediaType(got)
		if err != nil {
			t.Fatalf("parse %q: %v", got, err)
		}
		if params["filename"] != tt.name {
			t.Errorf("round trip of %q gave %q", tt.name, params["filename"])
		}
	}
}

func TestResubmissionGivesSameOutcome(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		filename    string
		contentType string
		data        []byte
		status      int
		suffix      string
	}{
		{"searchable pdf", "/api/v1/text-layer", "scan.pdf", "application/pdf", pdftest.TextPDF("Invoice"), http.StatusOK, "_WithTextLayer.pdf"},
		{"scanned pdf", "/Home/AddTextLayer", "scan.pdf", "application/pdf", pdftest.TextPDF(""), http.StatusOK, "_WithTextLayer.pdf"},
		{"image", "/api/v1/image-to-pdf", "photo.png", "image/png", pdftest.PNG(16, 16), http.StatusOK, "_OCR_PDF.pdf"},
		{"legacy image route", "/Home/ProcessImageToOcrPdf", "photo.jpg", "image/jpeg", pdftest.JPEG(16, 16), http.StatusOK, "_OCR_PDF.pdf"},
		{"invalid pdf", "/api/v1/text-layer", "bad.pdf", "application/pdf", []byte("not a pdf"), http.StatusBadRequest, ""},
		{"wrong image type", "/api/v1/image-to-pdf", "a.pdf", "application/pdf", pdftest.TextPDF("x"), http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, platform.Linux)

			first := serve(srv, uploadRequest(t, tt.path, tt.filename, tt.contentType, tt.data))
			second := serve(srv, uploadRequest(t, tt.path, tt.filename, tt.contentType, tt.data))

			if first.Code != tt.status || second.Code != tt.status {
				t.Fatalf("expected status %d twice, got %d and %d", tt.status, first.Code, second.Code)
			}
			if tt.status != http.StatusOK {
				if first.Body.String() != second.Body.String() {
					t.Fatalf("error messages differ: %q vs %q", first.Body.String(), second.Body.String())
				}
				return
			}

			a, b := attachmentName(t, first), attachmentName(t, second)
			if a != b || !strings.HasSuffix(a, tt.suffix) {
				t.Fatalf("expected matching names ending in %s, got %q and %q", tt.suffix, a, b)
			}
		})
	}
}

func TestProcessingSurvivesClientCancel(t *testing.T) {
	srv := newTestServer(t, platform.Linux)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := uploadRequest(t, "/Home/AddTextLayer", "blank.pdf", "application/pdf", pdftest.TextPDF("")).WithContext(ctx)

	w := serve(srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestIndexPage(t *testing.T) {
	srv := newTestServer(t, platform.Linux)

	w := serve(srv, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`action="/Home/AddTextLayer"`, `action="/Home/ProcessImageToOcrPdf"`, `name="file"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("index page missing %s", want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	srv := newTestServer(t, platform.Linux, func(c *config.Config) {
		c.Server.Auth.Enabled = true
		c.Server.Auth.APIKeys = []string{"test-key-123"}
		c.Server.Auth.BasicAuthUser = "office"
		c.Server.Auth.BasicAuthPassHash = string(hash)
	})

	// Without auth should fail
	w := serve(srv, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("WWW-Authenticate"), "Basic") {
		t.Fatal("expected basic auth challenge")
	}

	// With Bearer token should succeed
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer test-key-123")
	if w := serve(srv, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth, got %d", w.Code)
	}

	// With X-API-Key header should succeed
	req = uploadRequest(t, "/api/v1/text-layer", "a.pdf", "application/pdf", pdftest.TextPDF("x"))
	req.Header.Set("X-API-Key", "test-key-123")
	if w := serve(srv, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with X-API-Key, got %d", w.Code)
	}

	// Basic auth
	req = httptest.NewRequest("GET", "/", nil)
	req.SetBasicAuth("office", "s3cret")
	if w := serve(srv, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with basic auth, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.SetBasicAuth("office", "wrong")
	if w := serve(srv, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong password, got %d", w.Code)
	}

	// Health endpoint should work without auth
	if w := serve(srv, httptest.NewRequest("GET", "/api/v1/health", nil)); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for health without auth, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, platform.Linux)

	w := serve(srv, httptest.NewRequest("OPTIONS", "/api/v1/text-layer", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}
