// Package store persists user settings, prompt text and expression presets
// as plain key-value files, and archives conversation transcripts. Files
// are created with defaults on first access; on every load the defaults
// are merged underneath whatever the file holds, so missing keys always
// resolve and unknown keys written by other tools survive round trips.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	settingsFile    = "user_settings.json"
	promptsFile     = "ai_prompts.json"
	expressionsFile = "expressions.json"

	// Hand-edited preset files may be YAML instead.
	expressionsYAMLFile = "expressions.yaml"
)

// DefaultSettings seeds user_settings.json.
var DefaultSettings = map[string]interface{}{
	"display_name": "User",
	"api_url":      "",
	"api_key":      "",
	"model":        "gpt-4o-mini",
}

// DefaultPrompts seeds ai_prompts.json.
var DefaultPrompts = map[string]interface{}{
	"system_prompt": "You are a lively desktop companion. Keep replies short, warm and playful.",
	"greeting":      "Hey! I'm your desk buddy, ready to chat whenever you are.",
}

// DefaultExpressions seeds the expression preset table with a usable
// baseline set. Each preset maps standard parameter IDs to target values.
var DefaultExpressions = map[string]interface{}{
	"neutral": map[string]interface{}{
		"description": "Resting face, eyes open, mouth relaxed.",
		"parameters": map[string]interface{}{
			"ParamEyeLOpen":   1.0,
			"ParamEyeROpen":   1.0,
			"ParamEyeLSmile":  0.0,
			"ParamEyeRSmile":  0.0,
			"ParamCheek":      0.0,
			"ParamMouthForm":  0.0,
			"ParamMouthOpenY": 0.2,
		},
	},
	"happy": map[string]interface{}{
		"description": "Smiling, eyes curved, mouth corners up.",
		"parameters": map[string]interface{}{
			"ParamEyeLOpen":   0.9,
			"ParamEyeROpen":   0.9,
			"ParamEyeLSmile":  1.0,
			"ParamEyeRSmile":  1.0,
			"ParamCheek":      0.65,
			"ParamMouthForm":  0.7,
			"ParamMouthOpenY": 0.4,
		},
	},
	"sad": map[string]interface{}{
		"description": "Downcast, eyes half closed, mouth corners down.",
		"parameters": map[string]interface{}{
			"ParamEyeLOpen":   0.35,
			"ParamEyeROpen":   0.35,
			"ParamEyeLSmile":  -0.4,
			"ParamEyeRSmile":  -0.4,
			"ParamCheek":      -0.2,
			"ParamMouthForm":  -0.5,
			"ParamMouthOpenY": 0.15,
		},
	},
	"angry": map[string]interface{}{
		"description": "Brows pressed down, mouth tight.",
		"parameters": map[string]interface{}{
			"ParamEyeLOpen":   0.6,
			"ParamEyeROpen":   0.6,
			"ParamEyeLSmile":  -0.6,
			"ParamEyeRSmile":  -0.6,
			"ParamBrowLForm":  -0.7,
			"ParamBrowRForm":  -0.7,
			"ParamCheek":      0.2,
			"ParamMouthForm":  -0.3,
			"ParamMouthOpenY": 0.25,
		},
	},
	"excited": map[string]interface{}{
		"description": "Surprised delight, eyes wide, mouth open.",
		"parameters": map[string]interface{}{
			"ParamEyeLOpen":   1.0,
			"ParamEyeROpen":   1.0,
			"ParamEyeLSmile":  0.5,
			"ParamEyeRSmile":  0.5,
			"ParamCheek":      0.5,
			"ParamMouthForm":  0.9,
			"ParamMouthOpenY": 0.9,
		},
	},
}

// Store reads and writes the data directory's key-value files.
type Store struct {
	mu      sync.Mutex
	dataDir string
	log     *zap.Logger
}

func New(dataDir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dataDir: dataDir, log: log.Named("store")}
}

// DataDir returns the directory the store operates in.
func (s *Store) DataDir() string { return s.dataDir }

// SettingsPath returns the absolute path of the settings file, for change
// watchers.
func (s *Store) SettingsPath() string { return filepath.Join(s.dataDir, settingsFile) }

// PromptsPath returns the absolute path of the prompts file.
func (s *Store) PromptsPath() string { return filepath.Join(s.dataDir, promptsFile) }

// LoadSettings returns user settings merged over defaults.
func (s *Store) LoadSettings() map[string]interface{} {
	return s.loadMerged(settingsFile, DefaultSettings)
}

// SaveSettings merges data over defaults, persists the result and returns
// it.
func (s *Store) SaveSettings(data map[string]interface{}) (map[string]interface{}, error) {
	return s.saveMerged(settingsFile, data, DefaultSettings)
}

// LoadPrompts returns prompt texts merged over defaults.
func (s *Store) LoadPrompts() map[string]interface{} {
	return s.loadMerged(promptsFile, DefaultPrompts)
}

// SavePrompts merges and persists the prompt texts.
func (s *Store) SavePrompts(data map[string]interface{}) (map[string]interface{}, error) {
	return s.saveMerged(promptsFile, data, DefaultPrompts)
}

// LoadExpressions returns the expression presets merged over defaults. A
// hand-written expressions.yaml takes precedence over the JSON file when
// both exist.
func (s *Store) LoadExpressions() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	yamlPath := filepath.Join(s.dataDir, expressionsYAMLFile)
	if data, err := os.ReadFile(yamlPath); err == nil {
		var parsed map[string]interface{}
		if err := yaml.Unmarshal(data, &parsed); err == nil {
			return merge(DefaultExpressions, normalizeYAML(parsed))
		}
		s.log.Warn("ignoring unparseable expressions.yaml", zap.Error(err))
	}
	return s.loadMergedLocked(expressionsFile, DefaultExpressions)
}

// SaveExpressions merges and persists the expression presets as JSON.
func (s *Store) SaveExpressions(data map[string]interface{}) (map[string]interface{}, error) {
	return s.saveMerged(expressionsFile, data, DefaultExpressions)
}

func (s *Store) loadMerged(name string, defaults map[string]interface{}) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadMergedLocked(name, defaults)
}

func (s *Store) loadMergedLocked(name string, defaults map[string]interface{}) map[string]interface{} {
	path := filepath.Join(s.dataDir, name)
	if err := s.ensureFile(path, defaults); err != nil {
		s.log.Warn("cannot seed data file", zap.String("path", path), zap.Error(err))
		return merge(defaults, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn("cannot read data file", zap.String("path", path), zap.Error(err))
		return merge(defaults, nil)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		s.log.Warn("data file is not valid JSON, using defaults",
			zap.String("path", path), zap.Error(err))
		return merge(defaults, nil)
	}
	return merge(defaults, parsed)
}

func (s *Store) saveMerged(name string, data, defaults map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := merge(defaults, data)
	path := filepath.Join(s.dataDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	encoded, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return merged, nil
}

func (s *Store) ensureFile(path string, defaults map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	encoded, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}

// merge returns a new map with data layered over defaults. Shallow on
// purpose: a key present in data fully replaces the default value.
func merge(defaults, data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(defaults)+len(data))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

// normalizeYAML rewrites yaml.v3's map[string]interface{} values so nested
// maps look the same as JSON-decoded ones.
func normalizeYAML(v map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k, val := range v {
		out[k] = normalizeYAMLValue(val)
	}
	return out
}

func normalizeYAMLValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return normalizeYAML(t)
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeYAMLValue(val)
		}
		return out
	case int:
		return float64(t)
	default:
		return v
	}
}
