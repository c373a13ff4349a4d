// Package term provides ANSI color state, terminal detection, and the
// lipgloss styles used by the live status line.
//
// Colors are package-level variables because logging, display, and
// progress all format with them. [Configure] sets them once during startup;
// when colors are disabled the variables are empty strings and every style
// renders its input unchanged.
package term

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/backmassage/dashmaster/internal/config"
)

// ANSI color codes. Empty when colors are disabled.
var (
	Red     = ""
	Green   = ""
	Yellow  = ""
	Blue    = ""
	Cyan    = ""
	Magenta = ""
	NC      = "" // Reset sequence.
)

// Status line styles. Plain (no-op) styles when colors are disabled.
var (
	StyleActive = lipgloss.NewStyle()
	StyleDone   = lipgloss.NewStyle()
	StyleRedo   = lipgloss.NewStyle()
	StyleError  = lipgloss.NewStyle()
	StyleMuted  = lipgloss.NewStyle()
)

// Configure resolves the color mode and sets the package-level ANSI
// variables and styles. Call once during startup (from [logging.NewLogger]).
func Configure(mode config.ColorMode) {
	if resolve(mode) {
		Red = "\033[1;91m"
		Green = "\033[1;92m"
		Yellow = "\033[1;93m"
		Blue = "\033[1;94m"
		Cyan = "\033[1;96m"
		Magenta = "\033[1;95m"
		NC = "\033[0m"

		StyleActive = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
		StyleDone = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
		StyleRedo = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
		StyleError = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
		StyleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		return
	}

	Red, Green, Yellow, Blue, Cyan, Magenta, NC = "", "", "", "", "", "", ""
	plain := lipgloss.NewStyle()
	StyleActive, StyleDone, StyleRedo, StyleError, StyleMuted = plain, plain, plain, plain, plain
}

// Enabled reports whether ANSI colors are currently active.
func Enabled() bool { return NC != "" }

// resolve determines whether colors should be enabled based on the configured
// mode, TTY detection, and the NO_COLOR env var (https://no-color.org).
func resolve(mode config.ColorMode) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default: // ColorAuto
		return IsTerminal(os.Stdout) &&
			os.Getenv("NO_COLOR") == "" &&
			strings.ToLower(os.Getenv("TERM")) != "dumb"
	}
}

// IsTerminal reports whether f is attached to a TTY (character device).
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
