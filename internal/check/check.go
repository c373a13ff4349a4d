// Package check provides system diagnostics (--check mode) and pre-pipeline
// dependency validation (CheckDeps) for ffmpeg, ffprobe, MP4Box, and the
// encoders the configured rendition ladder needs.
package check

import (
	"os/exec"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/display"
	"github.com/backmassage/dashmaster/internal/ffmpeg"
)

// Sentinel errors returned by CheckDeps when a required tool or encoder is missing.
var (
	ErrFfmpegNotFound  = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound = errors.New("ffprobe not found on PATH")
	ErrMP4BoxNotFound  = errors.New("MP4Box not found on PATH")
	ErrEncoderMissing  = errors.New("required encoder missing from ffmpeg build")
)

// requiredEncoders returns the ffmpeg encoders cfg's ladder renders with:
// one per distinct video codec, then aac and libopus for the audio stream
// and the muxed small-rendition audio.
func requiredEncoders(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, r := range cfg.Renditions {
		add(ffmpeg.VideoEncoder(r.Codec))
	}
	add("aac")
	add("libopus")
	return names
}

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// RunCheck runs the interactive --check flow: prints availability of ffmpeg,
// ffprobe, MP4Box, the required encoders, and host capacity.
// This is informational only: it does not stop on failure.
func RunCheck(cfg *config.Config, log Logger) {
	log.Info("=== System Check ===")

	checkTool(log, cfg.FFmpegPath, "-version")
	checkTool(log, cfg.FFprobePath, "-version")
	checkTool(log, cfg.MP4BoxPath, "-version")
	checkEncoders(cfg, log)
	checkHost(cfg, log)
}

// checkTool verifies a binary is on PATH and logs the first line of its
// version output. MP4Box prints its version to stderr, so both are read.
func checkTool(log Logger, bin string, versionFlag string) {
	if _, err := exec.LookPath(bin); err != nil {
		log.Error("%s not found", bin)
		return
	}
	out, err := exec.Command(bin, versionFlag).CombinedOutput()
	if err != nil && len(out) == 0 {
		log.Warn("%s found but %s failed: %v", bin, versionFlag, err)
		return
	}
	log.Success("%s: %s", bin, firstLine(string(out)))
}

// checkEncoders lists which required encoders the ffmpeg build provides.
func checkEncoders(cfg *config.Config, log Logger) {
	log.Info("Encoders:")
	have, err := listEncoders(cfg.FFmpegPath)
	if err != nil {
		log.Warn("Could not list encoders: %v", err)
		return
	}
	for _, name := range requiredEncoders(cfg) {
		if have[name] {
			log.Success("  %s", name)
		} else {
			log.Error("  %s missing", name)
		}
	}
}

// checkHost reports CPU and memory so the operator can size --jobs.
func checkHost(cfg *config.Config, log Logger) {
	logical, err := cpu.Counts(true)
	if err != nil || logical == 0 {
		logical = runtime.NumCPU()
	}
	physical, _ := cpu.Counts(false)
	log.Info("CPU: %d logical, %d physical cores", logical, physical)

	if vm, err := mem.VirtualMemory(); err == nil {
		log.Info("Memory: %s total, %s available", display.FormatBytes(int64(vm.Total)), display.FormatBytes(int64(vm.Available)))
	} else {
		log.Debug("memory stats unavailable: %v", err)
	}

	if cfg.Concurrency > logical {
		log.Warn("--jobs %d exceeds %d logical cores", cfg.Concurrency, logical)
	}
}

// CheckDeps is the pre-pipeline validation: it verifies that ffmpeg, ffprobe
// and MP4Box are on PATH and that every required encoder is compiled in.
// Returns a sentinel error on failure.
func CheckDeps(cfg *config.Config) error {
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := exec.LookPath(cfg.FFprobePath); err != nil {
		return ErrFfprobeNotFound
	}
	if _, err := exec.LookPath(cfg.MP4BoxPath); err != nil {
		return ErrMP4BoxNotFound
	}

	have, err := listEncoders(cfg.FFmpegPath)
	if err != nil {
		return errors.Wrap(err, "list encoders")
	}
	for _, name := range requiredEncoders(cfg) {
		if !have[name] {
			return errors.Wrap(ErrEncoderMissing, name)
		}
	}
	return nil
}

// --- internal helpers ---

func listEncoders(ffmpeg string) (map[string]bool, error) {
	out, err := exec.Command(ffmpeg, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, err
	}
	return parseEncoders(string(out)), nil
}

// parseEncoders extracts encoder names from `ffmpeg -encoders` output. Rows
// look like " V....D libx264   libx264 H.264 ..."; the name is field two.
// The legend above the " ------" separator is ignored.
func parseEncoders(out string) map[string]bool {
	have := make(map[string]bool)
	pastHeader := false
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "------" {
			pastHeader = true
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if pastHeader {
			have[fields[1]] = true
		}
	}
	return have
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx > 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
