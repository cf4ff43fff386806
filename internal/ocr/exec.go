package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/Wojt3kW/ocrpdf/internal/pdfdoc"
)

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// findBinary looks for name in dir first and falls back to PATH.
func findBinary(dir, name string) (string, error) {
	exe := name
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}

	if dir != "" {
		candidate := filepath.Join(dir, exe)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	path, err := lookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in %q or PATH: %w", name, dir, err)
	}
	return path, nil
}

func runOCRMyPDF(ctx context.Context, settings Settings, input, output string) error {
	bin, err := findBinary(settings.BinaryPath, "ocrmypdf")
	if err != nil {
		return err
	}
	return run(ctx, settings, bin, ocrmypdfArgs(settings, input, output)...)
}

func ocrmypdfArgs(settings Settings, input, output string) []string {
	return []string{
		"--language", settings.LanguageString(),
		"--skip-text",
		"--output-type", "pdf",
		"--optimize", "1",
		input,
		output,
	}
}

// runTesseract rasterizes every page, recognizes each one into a text-only
// page and stamps the merged text pages onto the input, so the original
// page content is kept as it was.
func runTesseract(ctx context.Context, settings Settings, dir, input, output string) error {
	pdftoppm, err := findBinary(settings.BinaryPath, "pdftoppm")
	if err != nil {
		return err
	}
	tesseract, err := findBinary(settings.BinaryPath, "tesseract")
	if err != nil {
		return err
	}

	prefix := filepath.Join(dir, "page")
	if err := run(ctx, settings, pdftoppm, "-r", strconv.Itoa(settings.DPI), "-png", input, prefix); err != nil {
		return err
	}

	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order.
	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return fmt.Errorf("list rasterized pages: %w", err)
	}
	if len(pages) == 0 {
		return fmt.Errorf("pdftoppm produced no pages")
	}
	sort.Strings(pages)

	parts := make([][]byte, 0, len(pages))
	for i, page := range pages {
		base := filepath.Join(dir, fmt.Sprintf("ocr-%04d", i+1))
		if err := run(ctx, settings, tesseract, tesseractArgs(settings, page, base)...); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		data, err := os.ReadFile(base + ".pdf")
		if err != nil {
			return fmt.Errorf("read page %d: %w", i+1, err)
		}
		parts = append(parts, data)
	}

	layer, err := pdfdoc.Merge(parts)
	if err != nil {
		return err
	}
	original, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read OCR input: %w", err)
	}
	merged, err := pdfdoc.Overlay(original, layer)
	if err != nil {
		return err
	}
	return os.WriteFile(output, merged, 0o600)
}

// tesseractArgs asks for a PDF holding only the invisible recognized text.
func tesseractArgs(settings Settings, image, outputBase string) []string {
	args := []string{image, outputBase}
	if settings.TessDataPath != "" {
		args = append(args, "--tessdata-dir", settings.TessDataPath)
	}
	return append(args,
		"-l", settings.LanguageString(),
		"--dpi", strconv.Itoa(settings.DPI),
		"-c", "textonly_pdf=1",
		"pdf",
	)
}

func run(ctx context.Context, settings Settings, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = engineEnv(os.Environ(), settings)

	out, err := cmd.CombinedOutput()
	name := filepath.Base(bin)
	if len(out) > 0 {
		slog.Debug("OCR tool output", "tool", name, "output", tail(out, 2048))
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, tail(out, 512))
	}
	return nil
}

// engineEnv points tesseract at the language models and puts the bundled
// binaries ahead of anything installed system-wide.
func engineEnv(env []string, settings Settings) []string {
	result := make([]string, 0, len(env)+2)
	pathSet := false

	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case strings.EqualFold(key, "TESSDATA_PREFIX") && settings.TessDataPath != "":
			continue
		case strings.EqualFold(key, "PATH") && settings.BinaryPath != "":
			kv = key + "=" + settings.BinaryPath + string(os.PathListSeparator) + value
			pathSet = true
		}
		result = append(result, kv)
	}

	if settings.BinaryPath != "" && !pathSet {
		result = append(result, "PATH="+settings.BinaryPath)
	}
	if settings.TessDataPath != "" {
		result = append(result, "TESSDATA_PREFIX="+settings.TessDataPath)
	}
	return result
}

func tail(out []byte, n int) string {
	s := strings.TrimSpace(string(out))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
