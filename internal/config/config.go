// Package config holds runtime configuration: defaults, CLI flag parsing, an
// optional YAML overlay, and validation.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// --- Enum types for validated string fields ---

// Codec is the codec family of a rendition.
type Codec string

const (
	CodecH264 Codec = "h264" // Large renditions (default).
	CodecHEVC Codec = "hevc" // Accepted as an equivalent-or-better large artifact.
	CodecVP9  Codec = "vp9"  // Small renditions (default).
	CodecAV1  Codec = "av1"  // Accepted as an equivalent-or-better small artifact.
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// RenditionConfig is one row of the candidate ladder.
type RenditionConfig struct {
	Height int   `yaml:"height"`
	Codec  Codec `yaml:"codec"`
	Small  bool  `yaml:"small"`
	CRF    int   `yaml:"crf"`
}

// Config holds all runtime settings. It is populated by [DefaultConfig],
// overlaid by [LoadFile] when --config is given, then mutated by
// [ParseFlags] before being passed (by pointer) to packages that need it.
type Config struct {
	// Paths (set from positional args). OutputDir may be empty, in which
	// case renditions are written beside each asset.
	LibraryDir string `yaml:"-"`
	OutputDir  string `yaml:"output_dir"`
	ConfigFile string `yaml:"-"`

	// Candidate ladder, ordered by dispatch preference.
	Renditions []RenditionConfig `yaml:"renditions"`

	// Planner caps and heuristics.
	TVMaxHeight      int     `yaml:"tv_max_height"`     // Default: 720.
	ExtraMaxHeight   int     `yaml:"extra_max_height"`  // Default: 480.
	UpscaleTolerance float64 `yaml:"upscale_tolerance"` // Default: 0.05.
	BurnSubtitles    bool    `yaml:"burn_subtitles"`    // Default: true (small renditions only).
	DetectCrop       bool    `yaml:"detect_crop"`       // Default: true.

	// Preview sample clip.
	Sample               bool          `yaml:"sample"`
	SampleOffsetFraction float64       `yaml:"sample_offset_fraction"` // Default: 0.10 of duration.
	SampleMaxOffset      time.Duration `yaml:"sample_max_offset"`      // Default: 10m.
	SampleLength         time.Duration `yaml:"sample_length"`          // Default: 30s.

	// Scheduler.
	Concurrency         int           `yaml:"concurrency"`           // Default: 6.
	MaxTries            int           `yaml:"max_tries"`             // Default: 6.
	EarlyFailurePercent float64       `yaml:"early_failure_percent"` // Default: 10.
	EarlyRetryFraction  float64       `yaml:"early_retry_fraction"`  // Default: 0.75.
	AnyRetryFraction    float64       `yaml:"any_retry_fraction"`    // Default: 0.5.
	StallTimeout        time.Duration `yaml:"stall_timeout"`         // Default: 20m. 0 disables.

	// Encoder settings.
	X264Preset        string `yaml:"x264_preset"`        // Default: "slow".
	KeyframeInterval  int    `yaml:"keyframe_interval"`  // Default: 48 frames.
	StereoBitrate     string `yaml:"stereo_bitrate"`     // Default: "192k".
	SurroundBitrate   string `yaml:"surround_bitrate"`   // Default: "384k".
	SmallAudioBitrate string `yaml:"small_audio_bitrate"` // Default: "96k".
	SegmentDurationMs int    `yaml:"segment_duration_ms"` // Default: 4000.

	// External tools.
	FFmpegPath  string `yaml:"ffmpeg"`
	FFprobePath string `yaml:"ffprobe"`
	MP4BoxPath  string `yaml:"mp4box"`

	// Behavior flags.
	DryRun     bool          `yaml:"-"`
	Watch      bool          `yaml:"watch"`
	SettleTime time.Duration `yaml:"settle_time"` // Default: 30s.

	// Display and logging.
	Verbose      bool      `yaml:"verbose"`
	ShowProgress bool      `yaml:"show_progress"` // Default: true.
	ColorMode    ColorMode `yaml:"color"`         // Default: "auto".
	LogFile      string    `yaml:"log_file"`
	CheckOnly    bool      `yaml:"-"`

	// ffprobe constants (not user-configurable).
	FFmpegProbesize       string `yaml:"-"`
	FFmpegAnalyzeDuration string `yaml:"-"`
}

// DefaultLadder returns the stock candidate table: three large H.264
// renditions for the adaptive manifest and two small VP9 renditions that
// carry their own audio.
func DefaultLadder() []RenditionConfig {
	return []RenditionConfig{
		{Height: 1080, Codec: CodecH264, CRF: 20},
		{Height: 720, Codec: CodecH264, CRF: 21},
		{Height: 480, Codec: CodecH264, CRF: 22},
		{Height: 360, Codec: CodecVP9, Small: true, CRF: 33},
		{Height: 320, Codec: CodecVP9, Small: true, CRF: 34},
	}
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// [LoadFile] and [ParseFlags] apply overrides.
func DefaultConfig() Config {
	return Config{
		Renditions:            DefaultLadder(),
		TVMaxHeight:           720,
		ExtraMaxHeight:        480,
		UpscaleTolerance:      0.05,
		BurnSubtitles:         true,
		DetectCrop:            true,
		Sample:                false,
		SampleOffsetFraction:  0.10,
		SampleMaxOffset:       10 * time.Minute,
		SampleLength:          30 * time.Second,
		Concurrency:           6,
		MaxTries:              6,
		EarlyFailurePercent:   10,
		EarlyRetryFraction:    0.75,
		AnyRetryFraction:      0.5,
		StallTimeout:          20 * time.Minute,
		X264Preset:            "slow",
		KeyframeInterval:      48,
		StereoBitrate:         "192k",
		SurroundBitrate:       "384k",
		SmallAudioBitrate:     "96k",
		SegmentDurationMs:     4000,
		FFmpegPath:            "ffmpeg",
		FFprobePath:           "ffprobe",
		MP4BoxPath:            "MP4Box",
		SettleTime:            30 * time.Second,
		ShowProgress:          true,
		ColorMode:             ColorAuto,
		FFmpegProbesize:       "100M",
		FFmpegAnalyzeDuration: "100M",
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks enum fields, scheduler bounds, and the rendition ladder.
// When not in CheckOnly mode, it also requires a library directory.
func (c *Config) Validate() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1 (got %d)", c.Concurrency)
	}
	if c.MaxTries < 1 {
		return fmt.Errorf("max tries must be at least 1 (got %d)", c.MaxTries)
	}
	if c.EarlyFailurePercent < 0 || c.EarlyFailurePercent > 100 {
		return fmt.Errorf("early failure percent must be within 0-100 (got %g)", c.EarlyFailurePercent)
	}
	if c.UpscaleTolerance < 0 {
		return fmt.Errorf("upscale tolerance must not be negative (got %g)", c.UpscaleTolerance)
	}
	if c.StallTimeout < 0 {
		return errors.New("stall timeout must not be negative")
	}
	if err := validateLadder(c.Renditions); err != nil {
		return err
	}

	if c.CheckOnly {
		return nil
	}
	if c.LibraryDir == "" {
		return errors.New("need a library_dir")
	}
	return nil
}

func validateLadder(ladder []RenditionConfig) error {
	if len(ladder) == 0 {
		return errors.New("rendition ladder is empty")
	}
	seen := make(map[string]bool, len(ladder))
	large := 0
	for _, r := range ladder {
		if r.Height <= 0 {
			return fmt.Errorf("rendition height must be positive (got %d)", r.Height)
		}
		switch r.Codec {
		case CodecH264, CodecHEVC:
			if r.Small {
				return fmt.Errorf("%dp: codec %s is only valid for large renditions", r.Height, r.Codec)
			}
		case CodecVP9, CodecAV1:
			if !r.Small {
				return fmt.Errorf("%dp: codec %s is only valid for small renditions", r.Height, r.Codec)
			}
		default:
			return fmt.Errorf("%dp: unknown codec %q", r.Height, r.Codec)
		}
		key := fmt.Sprintf("%d/%s", r.Height, r.Codec)
		if seen[key] {
			return fmt.Errorf("duplicate rendition %dp %s", r.Height, r.Codec)
		}
		seen[key] = true
		if !r.Small {
			large++
		}
	}
	if large == 0 {
		return errors.New("rendition ladder needs at least one large rendition")
	}
	return nil
}

// ValidatePaths ensures an explicit output directory is not inside (or equal
// to) the library directory, which would make the library sweep discover its
// own renditions. Both arguments must be absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(libraryAbs, outputAbs string) error {
	sep := string(filepath.Separator)
	if outputAbs == libraryAbs || strings.HasPrefix(outputAbs+sep, libraryAbs+sep) {
		return errors.New("output directory must not be inside library directory")
	}
	return nil
}
