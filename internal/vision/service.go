package vision

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snapshot is one captured observation.
type Snapshot struct {
	ID        string
	Timestamp time.Time
	Text      string
	Preview   string
	Width     int
	Height    int
}

// Listener receives snapshots. Panics in a listener are isolated.
type Listener func(Snapshot)

// ListenerID identifies a registered listener for removal.
type ListenerID int

// Capturer produces raw frames. The default implementation grabs the
// screen; tests substitute fakes.
type Capturer interface {
	Capture(region Region) (Frame, error)
}

// OCR extracts text from a frame.
type OCR interface {
	Recognize(frame Frame, language string) (string, error)
}

// Frame is one captured image plus its dimensions.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Service runs the periodic capture loop. Construction does not start
// capturing; Start launches the loop and Stop joins it.
type Service struct {
	mu        sync.Mutex
	cfg       Config
	capturer  Capturer
	ocr       OCR
	listeners []registeredListener
	nextID    ListenerID
	history   []Snapshot

	previewDir string

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	log *zap.Logger
}

type registeredListener struct {
	id ListenerID
	fn Listener
}

func NewService(cfg Config, capturer Capturer, ocr OCR, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:      cfg.normalize(),
		capturer: capturer,
		ocr:      ocr,
		log:      log.Named("vision"),
	}
}

// EnablePreviews stores a JPEG of each captured frame under dir and
// records its path on the snapshot. An empty dir disables previews.
func (s *Service) EnablePreviews(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewDir = dir
}

// RegisterListener adds a snapshot listener and returns its removal token.
func (s *Service) RegisterListener(fn Listener) ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, registeredListener{id: id, fn: fn})
	return id
}

// UnregisterListener removes a listener. Unknown IDs are a no-op.
func (s *Service) UnregisterListener(id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// UpdateConfig swaps the configuration; takes effect on the next cycle.
func (s *Service) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.normalize()
}

// Start launches the capture loop. Safe to call when already running.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.run(stopCh, doneCh)
}

// Stop halts the capture loop, waiting a bounded time for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(1500 * time.Millisecond):
		s.log.Warn("capture loop did not stop in time")
	}
}

// Running reports whether the capture loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		s.mu.Lock()
		cfg := s.cfg
		s.mu.Unlock()

		if cfg.Enabled {
			if snap, ok := s.captureOnce(cfg); ok {
				s.record(snap, cfg.MaxHistory)
				s.emit(snap)
			}
		}

		select {
		case <-stopCh:
			return
		case <-time.After(time.Duration(cfg.CaptureInterval * float64(time.Second))):
		}
	}
}

func (s *Service) captureOnce(cfg Config) (Snapshot, bool) {
	if s.capturer == nil {
		return Snapshot{}, false
	}
	var region Region
	if cfg.Region != nil {
		region = *cfg.Region
	}
	frame, err := s.capturer.Capture(region)
	if err != nil {
		s.log.Debug("capture failed", zap.Error(err))
		return Snapshot{}, false
	}

	text := ""
	if cfg.OCR.Enabled && s.ocr != nil {
		text, err = s.ocr.Recognize(frame, cfg.OCR.Language)
		if err != nil {
			s.log.Debug("ocr failed", zap.Error(err))
			text = ""
		}
	}

	snap := Snapshot{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Text:      text,
		Width:     frame.Width,
		Height:    frame.Height,
	}
	snap.Preview = s.savePreview(snap.ID, frame)
	return snap, true
}

func (s *Service) savePreview(id string, frame Frame) string {
	s.mu.Lock()
	dir := s.previewDir
	s.mu.Unlock()
	if dir == "" || len(frame.Data) == 0 {
		return ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Debug("preview dir unavailable", zap.Error(err))
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("snapshot_%s.jpg", id))
	if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
		s.log.Debug("preview write failed", zap.Error(err))
		return ""
	}
	return path
}

func (s *Service) record(snap Snapshot, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, snap)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}

// History returns a copy of the retained snapshots, oldest first.
func (s *Service) History() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, len(s.history))
	copy(out, s.history)
	return out
}

// SimulateDetection broadcasts a synthetic observation, for demos and
// integration tests that have no screen to capture.
func (s *Service) SimulateDetection(text string) {
	s.emit(Snapshot{ID: uuid.NewString(), Timestamp: time.Now(), Text: text})
}

func (s *Service) emit(snap Snapshot) {
	s.mu.Lock()
	listeners := make([]registeredListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		s.safeNotify(l.fn, snap)
	}
}

func (s *Service) safeNotify(fn Listener, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("vision listener panicked", zap.Any("panic", r))
		}
	}()
	fn(snap)
}
