package vision

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeCapturer struct {
	mu     sync.Mutex
	frames int
	err    error
}

func (f *fakeCapturer) Capture(region Region) (Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Frame{}, f.err
	}
	f.frames++
	return Frame{Data: []byte{0xff}, Width: 640, Height: 480}, nil
}

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) Recognize(frame Frame, language string) (string, error) {
	return f.text, f.err
}

func enabledConfig() Config {
	return Config{
		Enabled:         true,
		CaptureInterval: 0.02,
		OCR:             OCRConfig{Enabled: true, Language: "eng"},
		MaxHistory:      3,
	}
}

func TestServiceCaptureLoopEmitsSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(enabledConfig(), &fakeCapturer{}, &fakeOCR{text: "screen text"}, nil)
	got := make(chan Snapshot, 16)
	svc.RegisterListener(func(s Snapshot) { got <- s })

	svc.Start()
	defer svc.Stop()

	select {
	case snap := <-got:
		assert.Equal(t, "screen text", snap.Text)
		assert.Equal(t, 640, snap.Width)
		assert.Equal(t, 480, snap.Height)
		assert.NotEmpty(t, snap.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot emitted")
	}
}

func TestServicePreviewsWrittenWhenEnabled(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(enabledConfig(), &fakeCapturer{}, nil, nil)
	svc.EnablePreviews(t.TempDir())
	got := make(chan Snapshot, 16)
	svc.RegisterListener(func(s Snapshot) { got <- s })

	svc.Start()
	defer svc.Stop()

	select {
	case snap := <-got:
		require.NotEmpty(t, snap.Preview)
		data, err := os.ReadFile(snap.Preview)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xff}, data)
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot emitted")
	}
}

func TestServiceDisabledDoesNotCapture(t *testing.T) {
	defer goleak.VerifyNone(t)

	capt := &fakeCapturer{}
	cfg := enabledConfig()
	cfg.Enabled = false
	svc := NewService(cfg, capt, nil, nil)

	svc.Start()
	time.Sleep(100 * time.Millisecond)
	svc.Stop()

	capt.mu.Lock()
	defer capt.mu.Unlock()
	assert.Zero(t, capt.frames)
}

func TestServiceHistoryCapped(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(enabledConfig(), &fakeCapturer{}, nil, nil)
	svc.Start()

	require.Eventually(t, func() bool {
		return len(svc.History()) == 3
	}, 3*time.Second, 10*time.Millisecond)
	svc.Stop()

	assert.Len(t, svc.History(), 3, "history must stay at max_history")
}

func TestServiceListenerPanicIsolated(t *testing.T) {
	svc := NewService(enabledConfig(), nil, nil, nil)

	var second int
	svc.RegisterListener(func(Snapshot) { panic("bad listener") })
	svc.RegisterListener(func(Snapshot) { second++ })

	svc.SimulateDetection("hello")
	assert.Equal(t, 1, second, "panic in one listener must not stop the next")
}

func TestServiceUnregisterListener(t *testing.T) {
	svc := NewService(enabledConfig(), nil, nil, nil)
	var count int
	id := svc.RegisterListener(func(Snapshot) { count++ })
	svc.SimulateDetection("a")
	svc.UnregisterListener(id)
	svc.SimulateDetection("b")
	assert.Equal(t, 1, count)
}

func TestServiceCaptureErrorSkipsEmit(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(enabledConfig(), &fakeCapturer{err: errors.New("no display")}, nil, nil)
	var notified bool
	svc.RegisterListener(func(Snapshot) { notified = true })

	svc.Start()
	time.Sleep(100 * time.Millisecond)
	svc.Stop()

	assert.False(t, notified)
}

func TestServiceOCRFailureYieldsEmptyText(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(enabledConfig(), &fakeCapturer{}, &fakeOCR{err: errors.New("ocr broken")}, nil)
	got := make(chan Snapshot, 4)
	svc.RegisterListener(func(s Snapshot) { got <- s })

	svc.Start()
	defer svc.Stop()

	select {
	case snap := <-got:
		assert.Empty(t, snap.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot emitted")
	}
}

func TestServiceStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	svc := NewService(enabledConfig(), &fakeCapturer{}, nil, nil)
	svc.Start()
	svc.Stop()
	svc.Stop()
	assert.False(t, svc.Running())
}

func TestConfigNormalization(t *testing.T) {
	cfg := Config{CaptureInterval: -1, MaxHistory: 0}.normalize()
	assert.Equal(t, 10.0, cfg.CaptureInterval)
	assert.Equal(t, 5, cfg.MaxHistory)
	assert.Equal(t, "eng", cfg.OCR.Language)
}

func TestLoadConfigSeedsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := LoadConfig(dir)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 10.0, cfg.CaptureInterval)

	// Second load reads the seeded file.
	again := LoadConfig(dir)
	assert.Equal(t, cfg, again)
}

func TestSaveAndLoadConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Enabled:         true,
		CaptureInterval: 2.5,
		Region:          &Region{Left: 10, Top: 20, Width: 300, Height: 200},
		OCR:             OCRConfig{Enabled: false, Language: "jpn"},
		MaxHistory:      9,
	}
	require.NoError(t, SaveConfig(dir, cfg))
	got := LoadConfig(dir)
	assert.Equal(t, cfg, got)
}
