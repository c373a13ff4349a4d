package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/dashmaster/internal/naming"
)

// Supported media file extensions (lowercase, with leading dot).
var mediaExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".m4v":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".ts":   true,
	".m2ts": true,
	".mpg":  true,
	".mpeg": true,
	".vob":  true,
	".ogv":  true,
}

// IsMedia reports whether path is a candidate asset: a media extension
// and not something dashmaster itself wrote.
func IsMedia(path string) bool {
	if !mediaExtensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	return !naming.IsArtifactName(path)
}

// Discover walks libraryDir, collects candidate assets, skips hidden
// directories, and returns the paths sorted lexicographically for
// deterministic processing order. Extras folders are kept; the planner
// caps them instead.
func Discover(libraryDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(libraryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != libraryDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsMedia(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
