package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		input    string
		expected OS
	}{
		{"windows", Windows},
		{"linux", Linux},
		{"darwin", Mac},
		{"Mac", Mac},
		{" LINUX ", Linux},
		{"freebsd", Unknown},
		{"", Unknown},
	}

	for _, tt := range tests {
		if got := Detect(tt.input); got != tt.expected {
			t.Errorf("Detect(%q) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		os     OS
		binDir string
	}{
		{Windows, "Windows"},
		{Linux, "Linux"},
		{Mac, "Mac"},
	}

	for _, tt := range tests {
		paths, err := NewResolver(root, tt.os).Resolve()
		if err != nil {
			t.Fatalf("resolve %s: %v", tt.os, err)
		}

		wantData := filepath.Join(root, "Data", "tessdata")
		if paths.LanguageData != wantData {
			t.Errorf("%s: language data = %s, want %s", tt.os, paths.LanguageData, wantData)
		}

		wantBin := filepath.Join(root, "Data", "Tesseractbinaries", tt.binDir)
		if paths.EngineBinaries != wantBin {
			t.Errorf("%s: binaries = %s, want %s", tt.os, paths.EngineBinaries, wantBin)
		}
	}
}

func TestResolveUnknownPlatform(t *testing.T) {
	r := NewResolver(t.TempDir(), Unknown)

	if _, err := r.Resolve(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := r.LanguageDataPath(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for language data, got %v", err)
	}
}

func TestMissingBinaryDirectoryIsNotFatal(t *testing.T) {
	root := t.TempDir()

	dir, err := NewResolver(root, Linux).EngineBinaryPath()
	if err != nil {
		t.Fatalf("missing directory should only warn, got %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("resolver must not create %s", dir)
	}
}
