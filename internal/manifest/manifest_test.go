package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/logging"
)

const muxedDoc = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011">
 <Period>
  <AdaptationSet>
   <Representation id="1"><BaseURL>%s/Tom & Jerry.1080p.h264_dashinit.mp4</BaseURL></Representation>
   <Representation id="2"><BaseURL>sub/Tom &amp; Jerry.720p.h264_dashinit.mp4</BaseURL></Representation>
  </AdaptationSet>
  <AdaptationSet>
   <Representation id="3"><BaseURL>Tom & Jerry.audio_dashinit.mp4</BaseURL></Representation>
  </AdaptationSet>
 </Period>
</MPD>
`

func TestBuildArgs(t *testing.T) {
	args := BuildArgs(4000, "/o/M.tmp.mpd", []string{"/o/M.1080p.h264.mp4", "/o/M.720p.h264.mp4"}, "/o/M.audio.m4a")
	assert.Equal(t, []string{
		"-dash", "4000", "-frag", "4000", "-rap", "-profile", "onDemand", "-out", "/o/M.tmp.mpd",
		"/o/M.1080p.h264.mp4#video", "/o/M.720p.h264.mp4#video", "/o/M.audio.m4a#audio",
	}, args)

	noAudio := BuildArgs(2000, "x.mpd", []string{"a.mp4"}, "")
	assert.Equal(t, "a.mp4#video", noAudio[len(noAudio)-1])
}

func TestRewriteBaseURLs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"absolute path", `<BaseURL>/media/out/M.1080p.h264.mp4</BaseURL>`, `<BaseURL>M.1080p.h264.mp4</BaseURL>`},
		{"bare name unchanged", `<BaseURL>M.mp4</BaseURL>`, `<BaseURL>M.mp4</BaseURL>`},
		{"ampersand escaped", `<BaseURL>a/Tom & Jerry.mp4</BaseURL>`, `<BaseURL>Tom &amp; Jerry.mp4</BaseURL>`},
		{"entity kept", `<BaseURL>Tom &amp; Jerry.mp4</BaseURL>`, `<BaseURL>Tom &amp; Jerry.mp4</BaseURL>`},
		{"windows path", `<BaseURL>C:\media\Bob's.mp4</BaseURL>`, `<BaseURL>Bob&#39;s.mp4</BaseURL>`},
		{"attributes and whitespace", "<BaseURL serviceLocation=\"a\">\n  /x/y.mp4 </BaseURL>", `<BaseURL serviceLocation="a">y.mp4</BaseURL>`},
		{"angle brackets", `<BaseURL>d/a&lt;b>.mp4</BaseURL>`, `<BaseURL>a&lt;b&gt;.mp4</BaseURL>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(RewriteBaseURLs([]byte(tt.in))))
		})
	}
}

// fixture lays out an asset with finished renditions and returns the request.
func fixture(t *testing.T) (Request, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	req := Request{
		AssetPath: filepath.Join(dir, "Tom & Jerry.mkv"),
		Manifest:  filepath.Join(dir, "Tom & Jerry.mpd"),
		Videos: []string{
			filepath.Join(dir, "Tom & Jerry.1080p.h264.mp4"),
			filepath.Join(dir, "Tom & Jerry.720p.h264.mp4"),
		},
		Audio: filepath.Join(dir, "Tom & Jerry.audio.m4a"),
		RunID: "run-1",
	}
	for _, p := range append(append([]string{req.AssetPath}, req.Videos...), req.Audio) {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	cfg := config.DefaultConfig()
	return req, &cfg
}

// fakeMP4Box writes doc to the -out path and one _dashinit stream per
// input beside it, the way MP4Box does.
func fakeMP4Box(doc string, seen *[]string) RunFunc {
	return func(_ context.Context, bin string, args ...string) ([]byte, error) {
		*seen = append([]string{bin}, args...)
		out := ""
		for i := 0; i+1 < len(args); i++ {
			if args[i] == "-out" {
				out = args[i+1]
			}
		}
		if out == "" {
			return nil, errors.New("no -out")
		}
		for _, arg := range args {
			if in, _, ok := strings.Cut(arg, "#"); ok {
				name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + "_dashinit.mp4"
				if err := os.WriteFile(filepath.Join(filepath.Dir(out), name), []byte("frag"), 0o644); err != nil {
					return nil, err
				}
			}
		}
		return []byte("DASHing done"), os.WriteFile(out, []byte(doc), 0o644)
	}
}

func stagePath(req Request) string {
	return filepath.Join(filepath.Dir(req.Manifest), ".Tom & Jerry.tmp.dash")
}

func segmentPaths(req Request) []string {
	dir := filepath.Dir(req.Manifest)
	return []string{
		filepath.Join(dir, "Tom & Jerry.1080p.h264_dashinit.mp4"),
		filepath.Join(dir, "Tom & Jerry.720p.h264_dashinit.mp4"),
		filepath.Join(dir, "Tom & Jerry.audio_dashinit.mp4"),
	}
}

func reportPath(req Request) string {
	return filepath.Join(filepath.Dir(req.AssetPath), "Tom & Jerry.dashmaster-error.txt")
}

func TestAssemble_Success(t *testing.T) {
	req, cfg := fixture(t)
	var seen []string
	a := New(cfg, fakeMP4Box(sprintfDoc(filepath.Dir(req.AssetPath)), &seen), logging.Discard())

	require.NoError(t, a.Assemble(context.Background(), req))

	assert.Equal(t, "MP4Box", seen[0])
	assert.Equal(t, req.Audio+"#audio", seen[len(seen)-1])
	assert.Equal(t, filepath.Join(stagePath(req), "Tom & Jerry.mpd"), seen[9])

	doc, err := os.ReadFile(req.Manifest)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<BaseURL>Tom &amp; Jerry.1080p.h264_dashinit.mp4</BaseURL>")
	assert.Contains(t, string(doc), "<BaseURL>Tom &amp; Jerry.720p.h264_dashinit.mp4</BaseURL>")
	assert.NotContains(t, string(doc), filepath.Dir(req.AssetPath))
	for _, seg := range segmentPaths(req) {
		assert.FileExists(t, seg)
	}
	assert.NoDirExists(t, stagePath(req))
	assert.NoFileExists(t, reportPath(req))
}

func TestAssemble_StaleStageReplaced(t *testing.T) {
	req, cfg := fixture(t)
	require.NoError(t, os.MkdirAll(stagePath(req), 0o755))
	leftover := filepath.Join(stagePath(req), "Tom & Jerry.480p.h264_dashinit.mp4")
	require.NoError(t, os.WriteFile(leftover, []byte("old"), 0o644))

	var seen []string
	a := New(cfg, fakeMP4Box(sprintfDoc(filepath.Dir(req.AssetPath)), &seen), logging.Discard())
	require.NoError(t, a.Assemble(context.Background(), req))

	assert.NoFileExists(t, filepath.Join(filepath.Dir(req.Manifest), filepath.Base(leftover)))
	assert.NoDirExists(t, stagePath(req))
}

func TestAssemble_MuxerFailure(t *testing.T) {
	req, cfg := fixture(t)
	run := func(_ context.Context, _ string, args ...string) ([]byte, error) {
		// A partial manifest and stream are left behind by the crash.
		_ = os.WriteFile(args[8], []byte("<MPD>"), 0o644)
		_ = os.WriteFile(filepath.Join(filepath.Dir(args[8]), "Tom & Jerry.1080p.h264_dashinit.mp4"), []byte("frag"), 0o644)
		return []byte("[Dasher] Error: track not found"), errors.New("exit status 1")
	}
	a := New(cfg, run, logging.Discard())

	err := a.Assemble(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrManifestFailed))

	assert.NoFileExists(t, req.Manifest)
	assert.NoDirExists(t, stagePath(req))
	for _, seg := range segmentPaths(req) {
		assert.NoFileExists(t, seg)
	}
	assert.NoFileExists(t, filepath.Join(filepath.Dir(req.AssetPath), "Tom & Jerry.dashmaster-error.tmp.txt"))

	report, rerr := os.ReadFile(reportPath(req))
	require.NoError(t, rerr)
	assert.Contains(t, string(report), "exit status 1")
	assert.Contains(t, string(report), "[Dasher] Error: track not found")
	assert.Contains(t, string(report), "run-1")
}

func TestAssemble_MissingInput(t *testing.T) {
	req, cfg := fixture(t)
	require.NoError(t, os.Remove(req.Videos[1]))
	called := false
	run := func(context.Context, string, ...string) ([]byte, error) {
		called = true
		return nil, nil
	}

	err := New(cfg, run, logging.Discard()).Assemble(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrManifestFailed))
	assert.False(t, called, "muxer not run with a missing input")
	assert.FileExists(t, reportPath(req))
}

func TestAssemble_NoOutputWritten(t *testing.T) {
	req, cfg := fixture(t)
	run := func(context.Context, string, ...string) ([]byte, error) { return []byte("ok"), nil }

	err := New(cfg, run, logging.Discard()).Assemble(context.Background(), req)
	require.Error(t, err)
	assert.NoFileExists(t, req.Manifest)
	assert.FileExists(t, reportPath(req))
}

func TestAssemble_Cancelled(t *testing.T) {
	req, cfg := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	run := func(_ context.Context, _ string, args ...string) ([]byte, error) {
		cancel()
		_ = os.WriteFile(args[8], []byte("<MPD>"), 0o644)
		return nil, errors.New("signal: killed")
	}

	err := New(cfg, run, logging.Discard()).Assemble(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrManifestFailed))
	assert.NoFileExists(t, req.Manifest)
	assert.NoDirExists(t, stagePath(req))
	assert.NoFileExists(t, reportPath(req), "an abort is not a manifest failure")
}

func TestWriteErrorReport_Replaces(t *testing.T) {
	req, _ := fixture(t)
	path := reportPath(req)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, WriteErrorReport(path, req, errors.New("boom"), []byte("muxer said no")))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "boom")
	assert.Contains(t, string(body), "muxer said no")
	assert.NotContains(t, string(body), "stale")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), "Tom & Jerry.dashmaster-error.tmp.txt"))
}

func sprintfDoc(dir string) string {
	return strings.Replace(muxedDoc, "%s", dir, 1)
}
