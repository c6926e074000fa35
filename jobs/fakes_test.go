package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"mediagen/core"
	"mediagen/device"
	"mediagen/jobcore"
	"mediagen/llm"
	"mediagen/logging"
	"mediagen/mediatool"
	"mediagen/sdruntime"
	"mediagen/storage"
)

// recorder collects lifecycle events in order.
type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// seededPNG returns a small PNG whose pixels depend only on seed and text.
func seededPNG(t testing.TB, seed int64, text string) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	h := uint64(seed)
	for _, c := range text {
		h = h*31 + uint64(c)
	}
	for i := 0; i < 64; i++ {
		img.Set(i%8, i/8, color.NRGBA{R: uint8(h >> 8), G: uint8(h >> 16), B: uint8(h + uint64(i)), A: 255})
	}
	data, err := sdruntime.EncodePNG(img)
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return data
}

type fakeImageModel struct {
	t      testing.TB
	name   string
	rec    *recorder
	genErr error
	last   *sdruntime.GenerateParams
}

func (m *fakeImageModel) Generate(ctx context.Context, p sdruntime.GenerateParams) (*sdruntime.GenerateResult, error) {
	m.rec.add("generate:%s", m.name)
	*m.last = p
	if m.genErr != nil {
		return nil, m.genErr
	}
	return &sdruntime.GenerateResult{ImageData: seededPNG(m.t, p.Seed, p.Prompt), Width: 8, Height: 8, Seed: p.Seed}, nil
}

func (m *fakeImageModel) Release() error {
	m.rec.add("release:%s", m.name)
	return nil
}

func (m *fakeImageModel) PurgeCache() error {
	m.rec.add("purge:%s", m.name)
	return nil
}

type fakeVideoModel struct {
	t      testing.TB
	rec    *recorder
	frames int
	last   *sdruntime.VideoParams
}

func (m *fakeVideoModel) GenerateFrames(ctx context.Context, p sdruntime.VideoParams) (*sdruntime.VideoResult, error) {
	m.rec.add("generate:%s", StageImageToVideo)
	*m.last = p
	out := &sdruntime.VideoResult{FPS: p.FPS, Seed: p.Seed}
	for i := 0; i < m.frames; i++ {
		out.Frames = append(out.Frames, seededPNG(m.t, p.Seed, fmt.Sprint(i)))
	}
	return out, nil
}

func (m *fakeVideoModel) Release() error {
	m.rec.add("release:%s", StageImageToVideo)
	return nil
}

func (m *fakeVideoModel) PurgeCache() error {
	m.rec.add("purge:%s", StageImageToVideo)
	return nil
}

// fakeEngine hands out fake models and records every load.
type fakeEngine struct {
	t       testing.TB
	rec     *recorder
	loadErr      error
	videoLoadErr error
	genErr       error
	frames       int
	devices      []device.Kind

	lastImage sdruntime.GenerateParams
	lastVideo sdruntime.VideoParams
}

func (e *fakeEngine) LoadImage(ctx context.Context, mode sdruntime.Mode, dev device.Kind) (ImageModel, error) {
	e.rec.add("load:%s", mode)
	e.devices = append(e.devices, dev)
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	return &fakeImageModel{t: e.t, name: mode.String(), rec: e.rec, genErr: e.genErr, last: &e.lastImage}, nil
}

func (e *fakeEngine) LoadVideo(ctx context.Context, dev device.Kind) (VideoModel, error) {
	e.rec.add("load:%s", sdruntime.ModeImageToVideo)
	e.devices = append(e.devices, dev)
	if e.videoLoadErr != nil {
		return nil, e.videoLoadErr
	}
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	return &fakeVideoModel{t: e.t, rec: e.rec, frames: e.frames, last: &e.lastVideo}, nil
}

func (e *fakeEngine) loads() int {
	n := 0
	for _, ev := range e.rec.events {
		if len(ev) > 5 && ev[:5] == "load:" {
			n++
		}
	}
	return n
}

// fakeEncoder checks the frames exist while it runs and writes a stub video.
type fakeEncoder struct {
	err     error
	seen    int
	onDisk  int
	missing []string
	called  bool
}

func (e *fakeEncoder) Encode(ctx context.Context, frames *mediatool.FrameSet, output string) error {
	e.called = true
	e.seen = frames.Len()
	if entries, err := os.ReadDir(frames.Dir()); err == nil {
		e.onDisk = len(entries)
	}
	for _, f := range frames.Frames() {
		if _, err := os.Stat(f.Path); err != nil {
			e.missing = append(e.missing, f.Path)
		}
	}
	if e.err != nil {
		return e.err
	}
	return os.WriteFile(output, []byte("mp4"), 0644)
}

// fakeRasterizer writes one frame per page.
type fakeRasterizer struct {
	t     testing.TB
	pages int
	err   error
}

func (r *fakeRasterizer) Rasterize(ctx context.Context, pdfPath string, frames *mediatool.FrameSet) error {
	for i := 0; i < r.pages; i++ {
		if _, err := frames.AddPNG(seededPNG(r.t, int64(i), pdfPath)); err != nil {
			return err
		}
	}
	return r.err
}

type fakeTextModel struct {
	rec        *recorder
	reply      string
	err        error
	lastPrompt string
	lastParams llm.TextParams
}

func (m *fakeTextModel) Complete(ctx context.Context, prompt string, p llm.TextParams) (string, error) {
	m.rec.add("generate:%s", StageTextGen)
	m.lastPrompt = prompt
	m.lastParams = p
	return m.reply, m.err
}

func (m *fakeTextModel) Release() error {
	m.rec.add("release:%s", StageTextGen)
	return nil
}

type fakeTextEngine struct {
	rec     *recorder
	model   *fakeTextModel
	loadErr error
}

func (e *fakeTextEngine) Load(ctx context.Context) (TextModel, error) {
	e.rec.add("load:%s", StageTextGen)
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	return e.model, nil
}

type fakeEnhancer struct {
	reply string
	err   error
}

func (e fakeEnhancer) Enhance(ctx context.Context, userPrompt, instruction string) (string, error) {
	return e.reply, e.err
}

type failingProbe struct{}

func (failingProbe) Probe(ctx context.Context) (device.Info, error) {
	return device.Info{}, errors.New("nvidia-smi: command not found")
}

type panickingProbe struct{}

func (panickingProbe) Probe(ctx context.Context) (device.Info, error) {
	panic("driver library missing")
}

type gpuProbe struct{}

func (gpuProbe) Probe(ctx context.Context) (device.Info, error) {
	return device.Info{Name: "Test GPU", MemoryTotal: 8 << 30}, nil
}

// harness runs a job through the driver against a temporary working root.
type harness struct {
	t     *testing.T
	cfg   *core.Config
	deps  *Deps
	probe device.Probe
	rec   *recorder

	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.BaseDir = t.TempDir()

	store, err := storage.New(cfg.BaseDir, cfg.StorageDir)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	return &harness{
		t:     t,
		cfg:   cfg,
		deps:  &Deps{Store: store},
		probe: failingProbe{},
		rec:   &recorder{},
	}
}

func (h *harness) engine(frames int) *fakeEngine {
	e := &fakeEngine{t: h.t, rec: h.rec, frames: frames}
	h.deps.Images = e
	return e
}

func (h *harness) run(kind jobcore.Kind, args ...string) int {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()

	job, err := New(kind, h.deps)
	if err != nil {
		h.t.Fatalf("New(%s) error = %v", kind, err)
	}
	driver := &jobcore.Driver{
		Config: h.cfg,
		Logger: logging.NewLoggerWithWriter(&h.stderr, logging.DebugLevel),
		Probe:  h.probe,
		Stdout: &h.stdout,
		Stderr: &h.stderr,
	}
	return driver.Run(context.Background(), job, args)
}

// path resolves a reported relative path against the working root.
func (h *harness) path(rel string) string {
	return filepath.Join(h.cfg.BaseDir, filepath.FromSlash(rel))
}

func (h *harness) assertFailed(code int, errorCode jobcore.Code) {
	h.t.Helper()
	if code != core.ExitCodeError {
		h.t.Fatalf("exit code = %d, want %d", code, core.ExitCodeError)
	}
	if h.stdout.Len() != 0 {
		h.t.Errorf("stdout = %q, want empty on failure", h.stdout.String())
	}
	if errorCode != "" && !bytes.Contains(h.stderr.Bytes(), []byte(`"error_code":"`+string(errorCode)+`"`)) {
		h.t.Errorf("stderr does not report %s:\n%s", errorCode, h.stderr.String())
	}
}

func equalEvents(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
