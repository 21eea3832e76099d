// Package vision captures screen content on a fixed cadence, runs OCR over
// it and broadcasts the recognized text to listeners. It is a producer
// only: what consumers do with an observation (typically feed it into the
// conversation) is their business.
package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const configFile = "vision_config.json"

// Region limits capture to a sub-rectangle of the screen. A zero Region
// means the whole primary display.
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether no region was configured.
func (r Region) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// OCRConfig controls text recognition over captured frames.
type OCRConfig struct {
	Enabled  bool   `json:"enabled"`
	Language string `json:"language"`
}

// Config is the on-disk vision configuration.
type Config struct {
	Enabled         bool      `json:"enabled"`
	CaptureInterval float64   `json:"capture_interval"`
	Region          *Region   `json:"region,omitempty"`
	OCR             OCRConfig `json:"ocr"`
	MaxHistory      int       `json:"max_history"`
}

// DefaultConfig returns the configuration written on first run. Capture
// stays disabled until the user opts in.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		CaptureInterval: 10,
		OCR:             OCRConfig{Enabled: true, Language: "eng"},
		MaxHistory:      5,
	}
}

// normalize coerces out-of-range values back to usable ones.
func (c Config) normalize() Config {
	if c.CaptureInterval <= 0 {
		c.CaptureInterval = 10
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 5
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	return c
}

// LoadConfig reads the vision configuration from dataDir, seeding the file
// with defaults when absent. Unreadable files degrade to defaults.
func LoadConfig(dataDir string) Config {
	path := filepath.Join(dataDir, configFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		_ = SaveConfig(dataDir, cfg)
		return cfg
	}
	if err != nil {
		return DefaultConfig()
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig()
	}
	return cfg.normalize()
}

// SaveConfig persists the vision configuration into dataDir.
func SaveConfig(dataDir string, cfg Config) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create vision data dir: %w", err)
	}
	encoded, err := json.MarshalIndent(cfg.normalize(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, configFile), encoded, 0o644)
}
