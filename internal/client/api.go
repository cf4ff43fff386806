// Package client talks to the ocrpdf server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	pathTextLayer  = "/api/v1/text-layer"
	pathImageToPDF = "/api/v1/image-to-pdf"
	pathHealth     = "/api/v1/health"
)

// Client communicates with the ocrpdf server API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new API client. A zero timeout waits indefinitely.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the server address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Paths mirrors the OCR directories reported by the server.
type Paths struct {
	LanguageData   string `json:"language_data"`
	EngineBinaries string `json:"engine_binaries"`
}

// Health is the server health response.
type Health struct {
	Status           string   `json:"status"`
	Version          string   `json:"version"`
	Platform         string   `json:"platform"`
	Paths            *Paths   `json:"paths,omitempty"`
	OCRMode          string   `json:"ocr_mode"`
	OCRBackend       string   `json:"ocr_backend,omitempty"`
	Languages        []string `json:"languages"`
	Installed        []string `json:"installed_languages"`
	MissingLanguages []string `json:"missing_languages,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Document is a PDF returned by the server.
type Document struct {
	Filename string
	Data     []byte
}

// APIError is a non-2xx response. Message holds the server's plain text body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: %d", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathHealth, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &health, nil
}

// AddTextLayer uploads a PDF and returns it with a text layer.
func (c *Client) AddTextLayer(ctx context.Context, path, contentType string) (*Document, error) {
	return c.upload(ctx, pathTextLayer, path, contentType, "_WithTextLayer.pdf")
}

// ImageToPDF uploads an image and returns a searchable PDF.
func (c *Client) ImageToPDF(ctx context.Context, path, contentType string) (*Document, error) {
	return c.upload(ctx, pathImageToPDF, path, contentType, "_OCR_PDF.pdf")
}

func (c *Client) upload(ctx context.Context, endpoint, path, contentType, suffix string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if contentType == "" {
		contentType = DetectContentType(path, data)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": filepath.Base(path),
	}))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	filename := attachmentName(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		base := filepath.Base(path)
		filename = strings.TrimSuffix(base, filepath.Ext(base)) + suffix
	}

	return &Document{Filename: filename, Data: out}, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	return resp, nil
}

// attachmentName returns the filename parameter of a Content-Disposition
// header, stripped of any directory part.
func attachmentName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := filepath.Base(params["filename"])
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// extraTypes covers image formats missing from Go's builtin table.
var extraTypes = map[string]string{
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".webp": "image/webp",
}

// DetectContentType guesses the MIME type from the extension, falling back
// to content sniffing.
func DetectContentType(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := extraTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
	}
	if mt, _, err := mime.ParseMediaType(http.DetectContentType(data)); err == nil {
		return mt
	}
	return "application/octet-stream"
}
