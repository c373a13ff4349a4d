// Command dashmaster renders adaptive-streaming rendition ladders and DASH
// manifests for a media library.
//
// It parses flags, validates configuration and paths, and either runs
// system diagnostics (--check) or the rendition pipeline, optionally
// staying up afterwards to process new files (--watch).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/backmassage/dashmaster/internal/check"
	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/display"
	"github.com/backmassage/dashmaster/internal/logging"
	"github.com/backmassage/dashmaster/internal/pipeline"
	"github.com/backmassage/dashmaster/internal/watch"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, version); err != nil {
		fmt.Fprintf(os.Stderr, "dashmaster: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "dashmaster: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dashmaster: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Logger available.
	display.PrintBanner(os.Stdout)

	if cfg.CheckOnly {
		check.RunCheck(&cfg, log)
		return 0
	}

	libAbs, err := absPath(cfg.LibraryDir)
	if err != nil {
		log.Error("Library not found: %s", cfg.LibraryDir)
		return 1
	}
	cfg.LibraryDir = libAbs
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			log.Error("Cannot create output directory: %s", cfg.OutputDir)
			return 1
		}
		outAbs, err := absPath(cfg.OutputDir)
		if err != nil {
			log.Error("Cannot resolve output path: %s", cfg.OutputDir)
			return 1
		}
		if err := cfg.ValidatePaths(libAbs, outAbs); err != nil {
			log.Error("%v", err)
			log.Error("Choose an output path outside: %s", cfg.LibraryDir)
			return 1
		}
		cfg.OutputDir = outAbs
	}

	log.Info("=== Dashmaster v%s (%s) ===", version, commit)
	log.Info("Library: %s", cfg.LibraryDir)
	if cfg.OutputDir != "" {
		log.Info("Out:     %s", cfg.OutputDir)
	} else {
		log.Info("Out:     beside each asset")
	}
	if cfg.DryRun {
		log.Warn("DRY RUN: no files will be written")
	}
	log.Info("")

	// Fail fast if ffmpeg, ffprobe, MP4Box or an encoder is unavailable.
	if err := check.CheckDeps(&cfg); err != nil {
		log.Error("%v", err)
		return 1
	}

	// Phase 3: Signal handling. Cancelling the context terminates running
	// transcoders and removes their temp outputs.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("Received interrupt, stopping transcoders…")
		cancel()
	}()

	// Phase 4: Batch run, then optionally watch.
	runner := pipeline.NewRunner(&cfg, log, pipeline.Deps{})
	stats := runner.RunBatch(ctx)
	failed := stats.Failed > 0

	if cfg.Watch && ctx.Err() == nil {
		err := watch.Run(ctx, cfg.LibraryDir, watch.Options{
			Settle: cfg.SettleTime,
			Accept: pipeline.IsMedia,
			Handle: func(ctx context.Context, path string) {
				log.Info("New file: %s", filepath.Base(path))
				if res := runner.ProcessAsset(ctx, path); res.Outcome == pipeline.OutcomeFailed {
					failed = true
				}
			},
			Log: log,
		})
		if err != nil && ctx.Err() == nil {
			log.Error("Watch failed: %v", err)
			return 1
		}
	}

	if failed {
		return 1
	}
	return 0
}

// absPath returns the absolute, symlink-resolved path for safe comparison
// of library vs output directory hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
