package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"small bytes", 512, "512 B"},
		{"exactly 1 KiB", 1024, "1.0 KiB"},
		{"1.5 KiB", 1536, "1.5 KiB"},
		{"1 MiB", 1024 * 1024, "1.0 MiB"},
		{"1 GiB", 1024 * 1024 * 1024, "1.0 GiB"},
		{"typical file 700 MiB", 734003200, "700.0 MiB"},
		{"4.7 GiB", 5046586572, "4.7 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.bytes))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0:00:00"},
		{"negative clamps", -time.Second, "0:00:00"},
		{"seconds", 42 * time.Second, "0:00:42"},
		{"feature length", 2*time.Hour + 3*time.Minute + 4500*time.Millisecond, "2:03:04"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.d))
		})
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "-", FormatSpeed(0))
	assert.Equal(t, "1.35x", FormatSpeed(1.349))
	assert.Equal(t, "0.50x", FormatSpeed(0.5))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "0%", FormatPercent(-3))
	assert.Equal(t, "42%", FormatPercent(42.2))
	assert.Equal(t, "100%", FormatPercent(140))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.True(t, strings.Contains(buf.String(), "|____/"))
}
