// Package config loads the orchestrator's configuration surface (A1)
// from layered sources: built-in defaults, an optional YAML file, then
// environment variable overrides, in increasing priority.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// Retry mirrors retryengine.Config's tunables at the configuration layer.
type Retry struct {
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	Exponential     bool          `yaml:"exponential"`
	Jitter          bool          `yaml:"jitter"`
	TimeoutSeconds  float64       `yaml:"timeout_seconds"`
}

// Config is the §6 "Configuration (enumerated)" surface.
type Config struct {
	PreferredApproach        *model.Approach `yaml:"preferred_approach"`
	EnableDOMAnalysis         bool           `yaml:"enable_dom_analysis"`
	EnableAIAssist            bool           `yaml:"enable_ai_assist"`
	EnableVision              bool           `yaml:"enable_vision"`
	MaxRetriesPerApproach     int            `yaml:"max_retries_per_approach"`
	TotalTimeoutSeconds       float64        `yaml:"total_timeout_seconds"`
	ShowBrowser               bool           `yaml:"show_browser"`
	DOMConfidenceThreshold    float64        `yaml:"dom_confidence_threshold"`
	AIConfidenceThreshold     float64        `yaml:"ai_confidence_threshold"`
	VisionConfidenceThreshold float64        `yaml:"vision_confidence_threshold"`
	Retry                     Retry          `yaml:"retry"`
}

// Defaults returns the built-in baseline configuration, the lowest
// priority layer.
func Defaults() Config {
	return Config{
		EnableDOMAnalysis:         true,
		EnableAIAssist:            true,
		EnableVision:              false,
		MaxRetriesPerApproach:     3,
		TotalTimeoutSeconds:       300,
		ShowBrowser:               false,
		DOMConfidenceThreshold:    0.7,
		AIConfidenceThreshold:     0.5,
		VisionConfidenceThreshold: 0.3,
		Retry: Retry{
			MaxRetries:     3,
			BaseDelay:      time.Second,
			MaxDelay:       60 * time.Second,
			Exponential:    true,
			Jitter:         true,
			TimeoutSeconds: 120,
		},
	}
}

// Load builds a Config from defaults, an optional YAML file at path
// (skipped entirely if empty or missing), then environment variable
// overrides, in that increasing-priority order. YAML decoding is strict:
// unknown keys are a load error rather than a silent no-op.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// no file to load; defaults stand
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			dec := yaml.NewDecoder(strings.NewReader(string(data)))
			dec.KnownFields(true)
			if err := dec.Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnv("PREFERRED_APPROACH"); ok {
		a := model.Approach(strings.ToLower(v))
		cfg.PreferredApproach = &a
	}
	setBoolEnv("ENABLE_DOM_ANALYSIS", &cfg.EnableDOMAnalysis)
	setBoolEnv("ENABLE_AI_ASSIST", &cfg.EnableAIAssist)
	setBoolEnv("ENABLE_VISION", &cfg.EnableVision)
	setBoolEnv("SHOW_BROWSER", &cfg.ShowBrowser)
	setIntEnv("MAX_RETRIES_PER_APPROACH", &cfg.MaxRetriesPerApproach)
	setFloatEnv("TOTAL_TIMEOUT_SECONDS", &cfg.TotalTimeoutSeconds)
	setFloatEnv("DOM_CONFIDENCE_THRESHOLD", &cfg.DOMConfidenceThreshold)
	setFloatEnv("AI_CONFIDENCE_THRESHOLD", &cfg.AIConfidenceThreshold)
	setFloatEnv("VISION_CONFIDENCE_THRESHOLD", &cfg.VisionConfidenceThreshold)

	setIntEnv("RETRY_MAX_RETRIES", &cfg.Retry.MaxRetries)
	setBoolEnv("RETRY_EXPONENTIAL", &cfg.Retry.Exponential)
	setBoolEnv("RETRY_JITTER", &cfg.Retry.Jitter)
	setFloatEnv("RETRY_TIMEOUT_SECONDS", &cfg.Retry.TimeoutSeconds)
	if v, ok := lookupEnv("RETRY_BASE_DELAY"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.BaseDelay = d
		}
	}
	if v, ok := lookupEnv("RETRY_MAX_DELAY"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.MaxDelay = d
		}
	}
}

const envPrefix = "ORCHESTRATOR_"

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func setBoolEnv(name string, dst *bool) {
	if v, ok := lookupEnv(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setIntEnv(name string, dst *int) {
	if v, ok := lookupEnv(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloatEnv(name string, dst *float64) {
	if v, ok := lookupEnv(name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
