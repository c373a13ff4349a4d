// Package logging provides the leveled, colored console logger and its
// optional structured file sink.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/term"
)

// core is the state shared by a Logger and every child created by With.
type core struct {
	mu        sync.Mutex
	verbose   bool
	out       io.Writer
	errOut    io.Writer
	file      *os.File
	sink      hclog.Logger
	interrupt func()
}

// Logger provides leveled, optionally colored console logging. When a log
// file is configured every line is also written there as a JSON record
// carrying the logger's structured fields.
type Logger struct {
	c      *core
	fields []interface{}
}

// NewLogger configures terminal colors from cfg and optionally opens the
// log file. Call Close() when done.
func NewLogger(cfg *config.Config) (*Logger, error) {
	return NewLoggerTo(cfg, os.Stdout, os.Stderr)
}

// NewLoggerTo is NewLogger with explicit console writers.
func NewLoggerTo(cfg *config.Config, out, errOut io.Writer) (*Logger, error) {
	term.Configure(cfg.ColorMode)

	c := &core{verbose: cfg.Verbose, out: out, errOut: errOut}

	if cfg.LogFile != "" {
		dir := filepath.Dir(cfg.LogFile)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		c.file = f
		c.sink = hclog.New(&hclog.LoggerOptions{
			Name:       "dashmaster",
			Level:      hclog.Debug,
			Output:     f,
			JSONFormat: true,
		})
	}
	return &Logger{c: c}, nil
}

// Discard returns a logger that writes nowhere. Used by tests.
func Discard() *Logger {
	return &Logger{c: &core{out: io.Discard, errOut: io.Discard}}
}

// With returns a child logger whose file records carry the given key/value
// pairs in addition to the parent's.
func (l *Logger) With(kv ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &Logger{c: l.c, fields: fields}
}

// SetInterrupt registers a hook run before each console line, used by the
// live status line to clear itself so log output is not interleaved with it.
func (l *Logger) SetInterrupt(fn func()) {
	l.c.mu.Lock()
	l.c.interrupt = fn
	l.c.mu.Unlock()
}

// Verbose reports whether debug output is enabled.
func (l *Logger) Verbose() bool { return l.c.verbose }

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	if l.c.file != nil {
		err := l.c.file.Close()
		l.c.file = nil
		l.c.sink = nil
		return err
	}
	return nil
}

func (l *Logger) line(level, color string, hl hclog.Level, text string) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interrupt != nil {
		c.interrupt()
	}
	out := c.out
	if level == "ERROR" {
		out = c.errOut
	}
	if color != "" {
		_, _ = io.WriteString(out, ts+" "+color+"["+level+"]"+term.NC+" "+text+"\n")
	} else {
		_, _ = io.WriteString(out, ts+" ["+level+"] "+text+"\n")
	}
	if c.sink != nil {
		fields := l.fields
		if level != "INFO" && hl == hclog.Info {
			fields = append(append([]interface{}{}, fields...), "kind", level)
		}
		c.sink.Log(hl, text, fields...)
	}
}

// Info logs at INFO level (blue).
func (l *Logger) Info(format string, args ...interface{}) {
	l.line("INFO", term.Blue, hclog.Info, fmt.Sprintf(format, args...))
}

// Success logs at SUCCESS level (green).
func (l *Logger) Success(format string, args ...interface{}) {
	l.line("SUCCESS", term.Green, hclog.Info, fmt.Sprintf(format, args...))
}

// Warn logs at WARN level (yellow).
func (l *Logger) Warn(format string, args ...interface{}) {
	l.line("WARN", term.Yellow, hclog.Warn, fmt.Sprintf(format, args...))
}

// Error logs at ERROR level (red), to stderr.
func (l *Logger) Error(format string, args ...interface{}) {
	l.line("ERROR", term.Red, hclog.Error, fmt.Sprintf(format, args...))
}

// Render logs at RENDER level (magenta); used for finished artifacts.
func (l *Logger) Render(format string, args ...interface{}) {
	l.line("RENDER", term.Magenta, hclog.Info, fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level (cyan) only when verbose.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.c.verbose {
		return
	}
	l.line("DEBUG", term.Cyan, hclog.Debug, fmt.Sprintf(format, args...))
}
