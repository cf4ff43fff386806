package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrUnsupported is returned when the host OS family has no bundled OCR binaries.
var ErrUnsupported = errors.New("unsupported platform")

// OS is an operating system family with its own OCR binary directory.
type OS int

const (
	Unknown OS = iota
	Windows
	Linux
	Mac
)

func (o OS) String() string {
	switch o {
	case Windows:
		return "Windows"
	case Linux:
		return "Linux"
	case Mac:
		return "Mac"
	default:
		return "unknown"
	}
}

// Detect maps a GOOS value or a configured platform name onto an OS family.
func Detect(name string) OS {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "windows":
		return Windows
	case "linux":
		return Linux
	case "darwin", "mac", "macos":
		return Mac
	default:
		return Unknown
	}
}

// Current returns the OS family of the running process.
func Current() OS {
	return Detect(runtime.GOOS)
}

// Paths holds the directories the OCR engine needs.
type Paths struct {
	LanguageData   string `json:"language_data"`
	EngineBinaries string `json:"engine_binaries"`
}

// Resolver maps the OS family onto directories below the static-assets root.
type Resolver struct {
	root string
	os   OS
	stat func(string) (fs.FileInfo, error)
}

// NewResolver creates a resolver rooted at the static-assets directory.
func NewResolver(root string, family OS) *Resolver {
	return &Resolver{
		root: root,
		os:   family,
		stat: os.Stat,
	}
}

// OS returns the OS family the resolver was created for.
func (r *Resolver) OS() OS {
	return r.os
}

// LanguageDataPath returns the tessdata directory shared by all OS families.
func (r *Resolver) LanguageDataPath() (string, error) {
	if r.os == Unknown {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
	}
	return filepath.Join(r.root, "Data", "tessdata"), nil
}

// EngineBinaryPath returns the OS-specific directory holding the OCR executables.
// A missing directory is logged but not treated as an error.
func (r *Resolver) EngineBinaryPath() (string, error) {
	if r.os == Unknown {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
	}

	dir := filepath.Join(r.root, "Data", "Tesseractbinaries", r.os.String())
	if info, err := r.stat(dir); err != nil || !info.IsDir() {
		slog.Warn("OCR binary directory does not exist", "path", dir, "platform", r.os.String())
	}
	return dir, nil
}

// Resolve returns both OCR directories.
func (r *Resolver) Resolve() (Paths, error) {
	data, err := r.LanguageDataPath()
	if err != nil {
		return Paths{}, err
	}
	bin, err := r.EngineBinaryPath()
	if err != nil {
		return Paths{}, err
	}
	return Paths{LanguageData: data, EngineBinaries: bin}, nil
}
