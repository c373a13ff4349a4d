package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/naming"
)

// ErrManifestFailed marks any failure to produce the manifest.
var ErrManifestFailed = errors.New("manifest assembly failed")

// Logger is the subset of the application logger the assembler uses.
type Logger interface {
	Render(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// Request names the inputs and output of one assembly.
type Request struct {
	AssetPath string
	Manifest  string   // final manifest path
	Videos    []string // final paths, highest first
	Audio     string   // empty when the asset has no audio
	RunID     string
}

// Assembler produces manifests with MP4Box.
type Assembler struct {
	bin       string
	segmentMs int
	run       RunFunc
	log       Logger
}

// New returns an Assembler using cfg's MP4Box path and segment duration.
// A nil run uses [ExecRun].
func New(cfg *config.Config, run RunFunc, log Logger) *Assembler {
	if run == nil {
		run = ExecRun
	}
	return &Assembler{bin: cfg.MP4BoxPath, segmentMs: cfg.SegmentDurationMs, run: run, log: log}
}

// Assemble builds req.Manifest. It must only be called once every input
// has been finalized. The muxer writes into a hidden staging directory;
// its stream files are renamed beside the manifest and the manifest is
// renamed last. On failure no manifest or stream file exists under a final
// name, an error report is written beside the asset, and the returned
// error wraps ErrManifestFailed. A cancelled assembly writes no report and
// returns the context's error.
func (a *Assembler) Assemble(ctx context.Context, req Request) error {
	dir := filepath.Dir(req.Manifest)
	stage := filepath.Join(dir, naming.StagingDirName(naming.Base(req.Manifest)))
	output, err := a.assemble(ctx, req, stage)
	_ = os.RemoveAll(stage)
	if err == nil {
		a.log.Render("%s", filepath.Base(req.Manifest))
		return nil
	}

	if ctx.Err() != nil {
		a.log.Debug("manifest %s cancelled", filepath.Base(req.Manifest))
		return errors.Wrap(ctx.Err(), "manifest")
	}
	err = errors.Wrap(ErrManifestFailed, err.Error())
	report := filepath.Join(filepath.Dir(req.AssetPath), naming.ErrorReportName(naming.Base(req.AssetPath)))
	if werr := WriteErrorReport(report, req, err, output); werr != nil {
		a.log.Error("could not write error report %s: %v", report, werr)
	} else {
		a.log.Error("manifest failed, see %s", report)
	}
	return err
}

func (a *Assembler) assemble(ctx context.Context, req Request, stage string) ([]byte, error) {
	if len(req.Videos) == 0 {
		return nil, errors.New("no video streams to mux")
	}
	inputs := append([]string{}, req.Videos...)
	if req.Audio != "" {
		inputs = append(inputs, req.Audio)
	}
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			return nil, errors.Wrap(err, "manifest input")
		}
	}

	if err := os.RemoveAll(stage); err != nil {
		return nil, errors.Wrap(err, "clear staging directory")
	}
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return nil, errors.Wrap(err, "create staging directory")
	}
	staged := filepath.Join(stage, filepath.Base(req.Manifest))

	args := BuildArgs(a.segmentMs, staged, req.Videos, req.Audio)
	a.log.Debug("%s %v", a.bin, args)
	output, err := a.run(ctx, a.bin, args...)
	if err != nil {
		return output, errors.Wrapf(err, "%s", a.bin)
	}
	if err := ctx.Err(); err != nil {
		return output, err
	}

	doc, err := os.ReadFile(staged)
	if err != nil {
		return output, errors.Wrap(err, "read muxed manifest")
	}
	if err := os.WriteFile(staged, RewriteBaseURLs(doc), 0o644); err != nil {
		return output, errors.Wrap(err, "rewrite manifest")
	}
	if err := publish(stage, filepath.Base(req.Manifest), filepath.Dir(req.Manifest)); err != nil {
		return output, err
	}
	return output, nil
}

// publish renames every file in stage into dir, the manifest last. If a
// rename fails, the files already moved are removed again.
func publish(stage, manifestName, dir string) error {
	entries, err := os.ReadDir(stage)
	if err != nil {
		return errors.Wrap(err, "read staging directory")
	}
	var moved []string
	undo := func() {
		for _, p := range moved {
			_ = os.Remove(p)
		}
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == manifestName {
			continue
		}
		dst := filepath.Join(dir, e.Name())
		if err := os.Rename(filepath.Join(stage, e.Name()), dst); err != nil {
			undo()
			return errors.Wrap(err, "finalize stream")
		}
		moved = append(moved, dst)
	}
	if err := os.Rename(filepath.Join(stage, manifestName), filepath.Join(dir, manifestName)); err != nil {
		undo()
		return errors.Wrap(err, "finalize manifest")
	}
	return nil
}

// WriteErrorReport records a failed assembly: the error with its stack and
// the muxer's captured output. The report appears under path only once
// complete.
func WriteErrorReport(path string, req Request, cause error, output []byte) error {
	body := fmt.Sprintf("dashmaster manifest failure\n"+
		"time:     %s\n"+
		"run:      %s\n"+
		"asset:    %s\n"+
		"manifest: %s\n"+
		"inputs:   %v %s\n\n"+
		"error:\n%+v\n\n"+
		"muxer output:\n%s\n",
		time.Now().Format(time.RFC3339), req.RunID, req.AssetPath, req.Manifest,
		req.Videos, req.Audio, cause, output)
	tmp := naming.TempName(path)
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
