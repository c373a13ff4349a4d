package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into planner, scheduler, tools, behavior, display, and utility.
// Negated flags (e.g. --no-progress) are applied after Parse so Config defaults hold unless set.
// A --config file is loaded before any flag is registered so that flag
// defaults reflect the file and explicit flags still win.

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses os.Args into cfg. On --help or --version it prints and exits.
// On error it returns non-nil (e.g. unknown flag, missing positional args).
func ParseFlags(cfg *Config, version string) error {
	showHelp, showVersion, err := ParseArgs(cfg, version, os.Args[1:])
	if err != nil {
		return err
	}
	if showHelp {
		printUsage(version)
		os.Exit(0)
	}
	if showVersion {
		fmt.Fprintln(os.Stdout, "dashmaster v"+version)
		os.Exit(0)
	}
	return nil
}

// ParseArgs is the testable core of [ParseFlags]: it never exits and reports
// whether help or version output was requested.
func ParseArgs(cfg *Config, version string, args []string) (showHelp, showVersion bool, err error) {
	if path := findConfigArg(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return false, false, err
		}
	}

	fs := flag.NewFlagSet("dashmaster", flag.ContinueOnError)
	fs.Usage = func() { printUsage(version) }

	var negated negatedFlags

	definePlannerFlags(fs, cfg, &negated)
	defineSchedulerFlags(fs, cfg)
	defineToolFlags(fs, cfg)
	defineBehaviorFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &negated)
	defineUtilityFlags(fs, &negated)

	if err := fs.Parse(args); err != nil {
		return false, false, err
	}

	applyNegatedFlags(cfg, &negated)

	if negated.showHelp || negated.showVersion {
		return negated.showHelp, negated.showVersion, nil
	}
	return false, false, parsePositionalArgs(fs, cfg)
}

// negatedFlags holds boolean flags that are applied after Parse.
// These either invert a default (e.g. noProgress -> ShowProgress=false) or trigger exit (showHelp, showVersion).
type negatedFlags struct {
	noBurnSubs  bool
	noCrop      bool
	noProgress  bool
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
	configFile  string
}

// findConfigArg returns the value of --config/-C without parsing anything else.
func findConfigArg(args []string) string {
	for i, a := range args {
		if a == "--" {
			return ""
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(name, "C="); ok {
			return v
		}
		if (name == "config" || name == "C") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// definePlannerFlags registers the caps, sample clip, and subtitle burn-in flags.
func definePlannerFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.IntVar(&cfg.TVMaxHeight, "tv-max-height", cfg.TVMaxHeight, "Highest rendition for TV content")
	fs.IntVar(&cfg.ExtraMaxHeight, "extra-max-height", cfg.ExtraMaxHeight, "Highest rendition for extras")
	fs.BoolVar(&cfg.Sample, "sample", cfg.Sample, "Also render a short preview sample clip")
	fs.DurationVar(&cfg.SampleLength, "sample-length", cfg.SampleLength, "Preview sample clip length")
	fs.BoolVar(&n.noBurnSubs, "no-burn-subs", false, "Never burn forced subtitles into small renditions")
	fs.BoolVar(&n.noCrop, "no-crop", false, "Skip black-bar detection")
}

// defineSchedulerFlags registers -j/--jobs, --max-tries, --stall-timeout.
func defineSchedulerFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.Concurrency, "jobs", cfg.Concurrency, "Parallel transcoder processes")
	fs.IntVar(&cfg.Concurrency, "j", cfg.Concurrency, "Same as --jobs")
	fs.IntVar(&cfg.MaxTries, "max-tries", cfg.MaxTries, "Attempts per rendition before the asset fails")
	fs.DurationVar(&cfg.StallTimeout, "stall-timeout", cfg.StallTimeout, "Kill a transcoder silent for this long (0 disables)")
	fs.StringVar(&cfg.X264Preset, "preset", cfg.X264Preset, "x264 preset (e.g. slow, medium)")
	fs.StringVar(&cfg.X264Preset, "p", cfg.X264Preset, "Same as --preset")
}

// defineToolFlags registers the external tool paths.
func defineToolFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "ffmpeg binary")
	fs.StringVar(&cfg.FFprobePath, "ffprobe", cfg.FFprobePath, "ffprobe binary")
	fs.StringVar(&cfg.MP4BoxPath, "mp4box", cfg.MP4BoxPath, "MP4Box binary")
}

// defineBehaviorFlags registers dry-run, watch, settle.
func defineBehaviorFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Plan only; do not spawn transcoders")
	fs.BoolVar(&cfg.DryRun, "d", false, "Same as --dry-run")
	fs.BoolVar(&cfg.Watch, "watch", cfg.Watch, "Keep running and process new files")
	fs.BoolVar(&cfg.Watch, "w", cfg.Watch, "Same as --watch")
	fs.DurationVar(&cfg.SettleTime, "settle", cfg.SettleTime, "Quiet period before a watched file is processed")
}

// defineDisplayFlags registers --color, --no-color, verbose, --no-progress, --check, --log.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Same as --verbose")
	fs.BoolVar(&n.noProgress, "no-progress", false, "Hide the live status line")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run system diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Append structured logs to file")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "Same as --log")
}

// defineUtilityFlags registers --config, --version and --help.
func defineUtilityFlags(fs *flag.FlagSet, n *negatedFlags) {
	fs.StringVar(&n.configFile, "config", "", "YAML config file")
	fs.StringVar(&n.configFile, "C", "", "Same as --config")
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated and override flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noBurnSubs {
		cfg.BurnSubtitles = false
	}
	if n.noCrop {
		cfg.DetectCrop = false
	}
	if n.noProgress {
		cfg.ShowProgress = false
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets LibraryDir and the optional OutputDir when not in CheckOnly mode.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	if cfg.CheckOnly {
		return nil
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("need library_dir and optional output_dir")
	}
	cfg.LibraryDir = NormalizeDirArg(args[0])
	if len(args) == 2 {
		cfg.OutputDir = NormalizeDirArg(args[1])
	}
	return nil
}

// printUsage writes the help text to stderr. Column-aligned for readability.
func printUsage(version string) {
	const col1 = 30
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "dashmaster v" + version + " - adaptive-streaming rendition builder"},
		{"", ""},
		{"  dashmaster [OPTIONS] <library_dir> [output_dir]", ""},
		{"", ""},
		{"Renditions", ""},
		{"  --tv-max-height <px>", "Highest rendition for TV content (default: 720)"},
		{"  --extra-max-height <px>", "Highest rendition for extras (default: 480)"},
		{"  --sample", "Also render a preview sample clip"},
		{"  --sample-length <dur>", "Sample clip length (default: 30s)"},
		{"  --no-burn-subs", "Do not burn forced subtitles into small renditions"},
		{"  --no-crop", "Skip black-bar detection"},
		{"", ""},
		{"Scheduling", ""},
		{"  -j, --jobs <n>", "Parallel transcoder processes (default: 6)"},
		{"  --max-tries <n>", "Attempts per rendition (default: 6)"},
		{"  --stall-timeout <dur>", "Kill silent transcoders (default: 20m, 0 disables)"},
		{"  -p, --preset <name>", "x264 preset (default: slow)"},
		{"", ""},
		{"Tools", ""},
		{"  --ffmpeg <path>", "ffmpeg binary (default: ffmpeg)"},
		{"  --ffprobe <path>", "ffprobe binary (default: ffprobe)"},
		{"  --mp4box <path>", "MP4Box binary (default: MP4Box)"},
		{"", ""},
		{"Behavior", ""},
		{"  -d, --dry-run", "Plan only; do not spawn transcoders"},
		{"  -w, --watch", "Keep running and process new files"},
		{"  --settle <dur>", "Quiet period for watched files (default: 30s)"},
		{"  -C, --config <file>", "YAML config file (flags override it)"},
		{"", ""},
		{"Display", ""},
		{"  --no-progress", "Hide the live status line"},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"", ""},
		{"Utility", ""},
		{"  -l, --log <path>", "Append structured logs to file"},
		{"  -c, --check", "System diagnostics (ffmpeg, MP4Box, encoders, host)"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(os.Stderr)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(os.Stderr, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(os.Stderr, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(os.Stderr, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}
