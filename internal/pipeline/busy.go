package pipeline

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/backmassage/dashmaster/internal/naming"
)

// ErrBusy means another run owns the output directory.
var ErrBusy = errors.New("output directory busy")

// busyOwner is the marker's content.
type busyOwner struct {
	PID     int       `json:"pid"`
	Host    string    `json:"host"`
	Run     string    `json:"run"`
	Created time.Time `json:"created"`
}

// AcquireBusy creates the busy marker in dir. It returns ErrBusy when the
// marker already exists, unless the marker was left by a process on this
// host that no longer runs, in which case it is replaced. release removes
// the marker.
func AcquireBusy(dir, runID string) (release func() error, err error) {
	path := filepath.Join(dir, naming.BusyMarker)
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			host, _ := os.Hostname()
			werr := json.NewEncoder(f).Encode(busyOwner{PID: os.Getpid(), Host: host, Run: runID, Created: time.Now()})
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				_ = os.Remove(path)
				return nil, werr
			}
			return func() error { return os.Remove(path) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
		if attempt > 0 || !staleMarker(path) {
			return nil, ErrBusy
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, ErrBusy
}

// staleMarker reports whether the marker at path names a dead process on
// this host. Unreadable markers and markers from other hosts are live.
func staleMarker(path string) bool {
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var o busyOwner
	if json.Unmarshal(b, &o) != nil || o.PID <= 0 {
		return false
	}
	if host, _ := os.Hostname(); o.Host != host {
		return false
	}
	alive, err := process.PidExists(int32(o.PID))
	return err == nil && !alive
}
