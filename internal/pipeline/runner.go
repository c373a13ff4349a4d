package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/display"
	"github.com/backmassage/dashmaster/internal/ffmpeg"
	"github.com/backmassage/dashmaster/internal/logging"
	"github.com/backmassage/dashmaster/internal/manifest"
	"github.com/backmassage/dashmaster/internal/planner"
	"github.com/backmassage/dashmaster/internal/progress"
	"github.com/backmassage/dashmaster/internal/scheduler"
	"github.com/backmassage/dashmaster/internal/source"
	"github.com/backmassage/dashmaster/internal/term"
)

// ErrIneligible marks an asset the planner refuses to render.
var ErrIneligible = errors.New("asset not eligible for renditions")

// Outcome is the per-asset verdict.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "done"
	}
}

// Skip reasons reported in Result.Reason.
const (
	ReasonBusy       = "busy"
	ReasonIneligible = "ineligible"
	ReasonComplete   = "complete"
)

// Result describes what ProcessAsset did for one asset.
type Result struct {
	Asset    string
	Outcome  Outcome
	Reason   string // set for skips
	Err      error
	Plan     *planner.Plan
	Report   *scheduler.Report
	Produced []string // final paths written by this run
	Bytes    int64
	Elapsed  time.Duration
}

// DescribeFunc builds the source descriptor for an asset.
type DescribeFunc func(ctx context.Context, cfg *config.Config, assetPath, outputDir string) (*source.Descriptor, error)

// Assembler produces the manifest once every rendition exists.
type Assembler interface {
	Assemble(ctx context.Context, req manifest.Request) error
}

// Deps overrides the Runner's collaborators. Zero fields use the real
// ffprobe, ffmpeg and MP4Box implementations.
type Deps struct {
	Describe  DescribeFunc
	Launcher  scheduler.Launcher
	Assembler Assembler
	Finalize  func(r *planner.Rendition) error
	Status    io.Writer // live status line; nil draws none
	Out       io.Writer // dry-run table and spacing
}

// Runner processes assets one at a time. Every marker and error report it
// writes carries the same run id.
type Runner struct {
	cfg   *config.Config
	log   *logging.Logger
	runID string

	describe  DescribeFunc
	launcher  scheduler.Launcher
	assembler Assembler
	finalize  func(r *planner.Rendition) error
	status    io.Writer
	out       io.Writer
}

// NewRunner wires a Runner from cfg, filling unset deps with defaults.
func NewRunner(cfg *config.Config, log *logging.Logger, deps Deps) *Runner {
	id := uuid.NewString()
	log = log.With("run", id)
	r := &Runner{
		cfg:       cfg,
		log:       log,
		runID:     id,
		describe:  deps.Describe,
		launcher:  deps.Launcher,
		assembler: deps.Assembler,
		finalize:  deps.Finalize,
		status:    deps.Status,
		out:       deps.Out,
	}
	if r.describe == nil {
		r.describe = source.Describe
	}
	if r.launcher == nil {
		r.launcher = ffmpeg.NewLauncher(cfg, log)
	}
	if r.assembler == nil {
		r.assembler = manifest.New(cfg, nil, log)
	}
	if r.status == nil && cfg.ShowProgress && term.IsTerminal(os.Stdout) {
		r.status = os.Stdout
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	return r
}

// RunID identifies this Runner in markers, logs and error reports.
func (r *Runner) RunID() string { return r.runID }

// Run is the top-level batch entry point. It discovers assets, processes
// each sequentially, and returns aggregate stats.
func Run(ctx context.Context, cfg *config.Config, log *logging.Logger) RunStats {
	return NewRunner(cfg, log, Deps{}).RunBatch(ctx)
}

// RunBatch processes every asset under the library directory.
func (r *Runner) RunBatch(ctx context.Context) RunStats {
	var stats RunStats

	files, err := Discover(r.cfg.LibraryDir)
	if err != nil {
		r.log.Error("File discovery failed: %v", err)
		return stats
	}
	stats.Total = len(files)
	r.logBatchHeader(&stats)

	var results []Result
	for i, path := range files {
		stats.Current = i + 1
		if ctx.Err() != nil {
			r.log.Warn("Interrupted")
			break
		}
		r.log.Info("[%d/%d] %s", stats.Current, stats.Total, filepath.Base(path))
		res := r.ProcessAsset(ctx, path)
		stats.Add(res)
		results = append(results, res)
		fmt.Fprintln(r.out)
	}

	if r.cfg.DryRun {
		PrintPlanTable(r.out, results)
	}
	logSummary(r.cfg, r.log, &stats)
	return stats
}

// ProcessAsset runs the whole pipeline for one asset: busy marker,
// describe, plan, schedule, assemble. Skips are not errors.
func (r *Runner) ProcessAsset(ctx context.Context, path string) (res Result) {
	start := time.Now()
	res.Asset = path
	log := r.log.With("asset", filepath.Base(path))
	defer func() { res.Elapsed = time.Since(start) }()

	outDir := r.outputDirFor(path)
	if !r.cfg.DryRun {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return r.failed(log, res, errors.Wrap(err, "create output directory"))
		}
		release, err := AcquireBusy(outDir, r.runID)
		if errors.Is(err, ErrBusy) {
			log.Warn("Skip (busy): %s", outDir)
			res.Outcome, res.Reason, res.Err = OutcomeSkipped, ReasonBusy, ErrBusy
			return res
		}
		if err != nil {
			return r.failed(log, res, errors.Wrap(err, "busy marker"))
		}
		defer func() {
			if err := release(); err != nil && !os.IsNotExist(err) {
				log.Warn("Could not remove busy marker: %v", err)
			}
		}()
	}

	d, err := r.describe(ctx, r.cfg, path, outDir)
	if err != nil {
		return r.failed(log, res, errors.Wrap(err, "describe source"))
	}
	plan := planner.BuildPlan(r.cfg, d)
	res.Plan = plan

	switch plan.Skip {
	case planner.SkipIneligible:
		log.Warn("Skip (ineligible): %s", ineligibleWhy(d))
		res.Outcome, res.Reason, res.Err = OutcomeSkipped, ReasonIneligible, ErrIneligible
		return res
	case planner.SkipComplete:
		log.Info("Skip (complete): every rendition present")
		res.Outcome, res.Reason = OutcomeSkipped, ReasonComplete
		return res
	}

	r.logPlan(log, d, plan)
	if r.cfg.DryRun {
		log.Success("[DRY] Would render %d file(s)", len(plan.Renditions)+boolInt(r.needsAssembly(plan)))
		return res
	}

	if len(plan.Renditions) > 0 {
		report, err := r.schedule(ctx, log, plan)
		res.Report = report
		if err != nil {
			removeTemps(plan)
			return r.failed(log, res, err)
		}
		for _, rd := range plan.Renditions {
			res.Produced = append(res.Produced, rd.Output)
		}
	}

	if r.needsAssembly(plan) {
		err := r.assembler.Assemble(ctx, manifest.Request{
			AssetPath: path,
			Manifest:  plan.ManifestPath,
			Videos:    plan.ManifestVideos,
			Audio:     plan.ManifestAudio,
			RunID:     r.runID,
		})
		if err != nil {
			return r.failed(log, res, err)
		}
		res.Produced = append(res.Produced, plan.ManifestPath)
	}

	for _, p := range res.Produced {
		if fi, err := os.Stat(p); err == nil {
			res.Bytes += fi.Size()
		}
	}
	log.Success("Rendered %d file(s), %s in %s", len(res.Produced),
		display.FormatBytes(res.Bytes), display.FormatDuration(time.Since(start)))
	return res
}

func (r *Runner) schedule(ctx context.Context, log *logging.Logger, plan *planner.Plan) (*scheduler.Report, error) {
	agg := progress.New(r.status)
	defer agg.Close()
	r.log.SetInterrupt(agg.Clear)
	defer r.log.SetInterrupt(nil)

	outputs := make(map[string]string, len(plan.Renditions))
	for _, rd := range plan.Renditions {
		outputs[rd.Name] = rd.Output
	}

	s := scheduler.New(r.launcher, agg, log, scheduler.Options{
		Concurrency:  r.cfg.Concurrency,
		Policy:       scheduler.PolicyFromConfig(r.cfg),
		StallTimeout: r.cfg.StallTimeout,
		Finalize:     r.finalize,
		Observer: func(tr scheduler.Transition) {
			log.Debug("%s: %s -> %s (attempt %d, %.0f%%, %d running)",
				tr.Task, tr.From, tr.To, tr.Attempt, tr.Percent, tr.Running)
			if tr.To == scheduler.StateSucceeded {
				log.Render("%s", filepath.Base(outputs[tr.Task]))
			}
		},
	})
	report, err := s.Run(ctx, plan.Renditions)
	if err != nil {
		return report, errors.WithStack(err)
	}
	return report, nil
}

// needsAssembly reports whether the manifest must be (re)built: it is
// missing, or one of its inputs was rendered by this plan.
func (r *Runner) needsAssembly(plan *planner.Plan) bool {
	if !plan.NeedsManifest {
		return false
	}
	if !plan.ManifestPresent {
		return true
	}
	inputs := make(map[string]bool, len(plan.ManifestVideos)+1)
	for _, v := range plan.ManifestVideos {
		inputs[v] = true
	}
	if plan.ManifestAudio != "" {
		inputs[plan.ManifestAudio] = true
	}
	for _, rd := range plan.Renditions {
		if inputs[rd.Output] {
			return true
		}
	}
	return false
}

// outputDirFor mirrors the asset's library-relative directory under the
// configured output directory, or returns the asset's own directory.
func (r *Runner) outputDirFor(path string) string {
	dir := filepath.Dir(path)
	if r.cfg.OutputDir == "" {
		return dir
	}
	rel, err := filepath.Rel(r.cfg.LibraryDir, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return r.cfg.OutputDir
	}
	return filepath.Join(r.cfg.OutputDir, rel)
}

func (r *Runner) failed(log *logging.Logger, res Result, err error) Result {
	log.Error("Failed: %v", err)
	res.Outcome, res.Err = OutcomeFailed, err
	return res
}

// removeTemps deletes whatever temp outputs an aborted schedule left.
func removeTemps(plan *planner.Plan) {
	for _, rd := range plan.Renditions {
		_ = os.Remove(rd.TempOutput())
	}
}

func ineligibleWhy(d *source.Descriptor) string {
	switch {
	case d.Stereo3D:
		return "stereoscopic source"
	case !d.HasVideo && d.AudioChannels == 0:
		return "no video or audio stream"
	default:
		return "nothing to encode"
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Logging helpers ---

func (r *Runner) logBatchHeader(stats *RunStats) {
	r.log.Info("Found %d files", stats.Total)

	var ladder []string
	for _, rc := range r.cfg.Renditions {
		ladder = append(ladder, fmt.Sprintf("%dp %s", rc.Height, rc.Codec))
	}
	r.log.Info("Ladder: %s", strings.Join(ladder, ", "))
	r.log.Info("Caps: tv %dp, extras %dp", r.cfg.TVMaxHeight, r.cfg.ExtraMaxHeight)
	r.log.Info("Scheduler: %d jobs, %d tries per rendition", r.cfg.Concurrency, r.cfg.MaxTries)
	if r.cfg.StallTimeout > 0 {
		r.log.Info("Stall timeout: %s", r.cfg.StallTimeout)
	}
	if r.cfg.Sample {
		r.log.Info("Sample: %s clip", r.cfg.SampleLength)
	}
	if r.cfg.BurnSubtitles {
		r.log.Info("Subtitles: burn forced track into small renditions")
	}
	if r.cfg.DryRun {
		r.log.Info("Dry run: nothing will be written")
	}
	fmt.Fprintln(r.out)
}

func (r *Runner) logPlan(log *logging.Logger, d *source.Descriptor, plan *planner.Plan) {
	log.Info("Source: %dx%d %s, %s, audio %dch", d.Width, d.Height, d.Class,
		display.FormatDuration(d.Duration), d.AudioChannels)
	for _, rd := range plan.Renditions {
		log.Info("  -> %s", filepath.Base(rd.Output))
	}
	if r.needsAssembly(plan) {
		log.Info("  -> %s", filepath.Base(plan.ManifestPath))
	}
}

func logSummary(cfg *config.Config, log *logging.Logger, stats *RunStats) {
	log.Info("==============================")
	log.Info("Done: %d rendered, %d skipped (%d busy), %d failed",
		stats.Done, stats.Skipped, stats.Busy, stats.Failed)
	log.Info("Summary report:")
	log.Info("  Total assets processed: %d", stats.Current)

	if cfg.DryRun {
		log.Info("  Files written: n/a (dry run)")
		return
	}
	log.Info("  Transcoder attempts: %d", stats.Attempts)
	if stats.Failed > 0 {
		log.Warn("  Files written: %d (%s)", stats.Renditions, display.FormatBytes(stats.BytesWritten))
	} else {
		log.Success("  Files written: %d (%s)", stats.Renditions, display.FormatBytes(stats.BytesWritten))
	}
}
