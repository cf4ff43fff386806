package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Wojt3kW/ocrpdf/internal/api"
	"github.com/Wojt3kW/ocrpdf/internal/config"
	"github.com/Wojt3kW/ocrpdf/internal/ocr"
	"github.com/Wojt3kW/ocrpdf/internal/platform"
	"github.com/Wojt3kW/ocrpdf/internal/processor"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (defaults are used when empty)")
	envFile := flag.String("env", ".env", "dotenv file with OCRPDF_* overrides, loaded when present")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("ocrpdf-server", version)
		os.Exit(0)
	}

	if err := loadEnvFile(*envFile); err != nil {
		slog.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		slog.Error("invalid environment override", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup logging
	closeLog, err := setupLogging(cfg.Logging)
	if err != nil {
		slog.Error("failed to open log file", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	api.Version = version
	slog.Info("starting ocrpdf-server", "version", version)

	if root, err := filepath.Abs(cfg.Assets.WebRoot); err == nil {
		cfg.Assets.WebRoot = root
	}

	family := detectPlatform(cfg.Assets.Platform)
	resolver := platform.NewResolver(cfg.Assets.WebRoot, family)

	if paths, err := resolver.Resolve(); err == nil {
		slog.Info("OCR paths resolved",
			"platform", family.String(),
			"tessdata", paths.LanguageData,
			"binaries", paths.EngineBinaries)
		if missing := ocr.MissingLanguages(paths.LanguageData, cfg.OCR.Languages); len(missing) > 0 {
			slog.Warn("language models missing", "languages", missing, "tessdata", paths.LanguageData)
		}
	}

	mode, _ := ocr.ParseMode(cfg.OCR.Mode)
	engine := ocr.NewExec(mode, cfg.OCR.TempDirectory)
	pipeline := processor.NewPipeline(cfg, engine, resolver)

	// Create and start API server
	srv := api.NewServer(cfg, pipeline, resolver)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// loadEnvFile loads a dotenv file without overriding variables that are
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func setupLogging(cfg config.LoggingConfig) (func(), error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closeFn, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}

// detectPlatform returns the configured OS family, or the running one when
// no override is set.
func detectPlatform(override string) platform.OS {
	family := platform.Current()
	if override != "" {
		family = platform.Detect(override)
	}
	if family == platform.Unknown {
		slog.Warn("unsupported platform, OCR requests will fail", "goos", runtime.GOOS, "override", override)
	}
	return family
}
