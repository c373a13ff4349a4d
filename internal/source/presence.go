package source

import (
	"os"
	"sort"
	"strings"

	"github.com/backmassage/dashmaster/internal/naming"
)

// Presence is the set of finalized artifact file names (base names, not
// paths) that exist for one asset in its output directory.
type Presence map[string]bool

// Has reports whether the named artifact exists.
func (p Presence) Has(name string) bool { return p[name] }

// Videos returns the video renditions present, highest first.
func (p Presence) Videos() []naming.VideoInfo {
	var out []naming.VideoInfo
	for name := range p {
		if v, ok := naming.ParseVideoName(name); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return out[i].Codec < out[j].Codec
	})
	return out
}

// ScanPresence lists dir and records every finalized artifact belonging to
// base. Temp files are not presence. A missing directory is empty.
func ScanPresence(dir, base string) (Presence, error) {
	p := Presence{}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	prefix := base + "."
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if naming.IsTempName(name) || !naming.IsArtifactName(name) {
			continue
		}
		if v, ok := naming.ParseVideoName(name); ok && v.Base != base {
			continue
		}
		p[name] = true
	}
	return p, nil
}
