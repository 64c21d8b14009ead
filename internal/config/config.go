package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/contexttype/contexttype/internal/detect"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds contexttype configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Detector    DetectorConfig    `yaml:"detector"`
	ML          MLConfig          `yaml:"ml"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Suggestions SuggestionsConfig `yaml:"suggestions"`
	Clients     []ClientConfig    `yaml:"clients"`
	Logging     LoggingConfig     `yaml:"logging"`
	Activation  ActivationConfig  `yaml:"activation"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr                string        `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	MaxRequestBodyBytes int64         `yaml:"max_request_body_bytes"`
	MaxTextChars        int           `yaml:"max_text_chars"`
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
}

type DetectorConfig struct {
	Weights    detect.Weights    `yaml:"weights"`
	Thresholds detect.Thresholds `yaml:"thresholds"`
	HotReload  bool              `yaml:"hot_reload"` // re-read this section when the file changes
}

type MLConfig struct {
	Enabled       bool    `yaml:"enabled"`
	BundleDir     string  `yaml:"bundle_dir"`     // holds context_model.onnx, label_map.json, thresholds.yaml
	LibraryPath   string  `yaml:"library_path"`   // onnxruntime shared library; empty means discover
	MinConfidence float64 `yaml:"min_confidence"` // overrides thresholds.yaml when > 0
	MaxTextChars  int     `yaml:"max_text_chars"`
}

type SessionsConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

type SuggestionsConfig struct {
	Provider             string        `yaml:"provider"` // openai | static
	BaseURL              string        `yaml:"base_url"` // e.g. "https://api.groq.com/openai/v1"
	Model                string        `yaml:"model"`
	APIKeyEnv            string        `yaml:"api_key_env"` // e.g. "GROQ_API_KEY"
	APIKey               string        `yaml:"api_key"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxRetries           int           `yaml:"max_retries"`
	MaxTokens            int           `yaml:"max_tokens"`
	Temperature          float32       `yaml:"temperature"`
	AllowPrivateNetworks bool          `yaml:"allow_private_networks"`
}

type ClientConfig struct {
	ID      string   `yaml:"id"`
	APIKeys []string `yaml:"api_keys"`
}

type LoggingConfig struct {
	PreviewLevel string `yaml:"preview_level"` // metadata | redacted | full
	Debug        bool   `yaml:"debug"`
}

type ActivationConfig struct {
	Enabled   bool                   `yaml:"enabled"`
	QueueSize int                    `yaml:"queue_size"`
	Workers   int                    `yaml:"workers"`
	Sinks     []ActivationSinkConfig `yaml:"sinks"`
}

type ActivationSinkConfig struct {
	Type    string            `yaml:"type"` // stdout | file_jsonl | webhook
	Path    string            `yaml:"path"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Protocol    string `yaml:"protocol"` // grpc | http
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies CONTEXTTYPE_*
// environment overrides. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":8080",
			MaxRequestBodyBytes: 1 << 20,
			MaxTextChars:        20000,
			ReadHeaderTimeout:   5 * time.Second,
			ReadTimeout:         15 * time.Second,
			WriteTimeout:        30 * time.Second,
			IdleTimeout:         60 * time.Second,
			ShutdownTimeout:     10 * time.Second,
		},
		Detector: DetectorConfig{
			Weights:    detect.DefaultWeights(),
			Thresholds: detect.DefaultThresholds(),
		},
		ML: MLConfig{
			MaxTextChars: 512,
		},
		Sessions: SessionsConfig{
			TTL:         30 * time.Minute,
			MaxSessions: 10000,
		},
		Suggestions: SuggestionsConfig{
			Provider:    "static",
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.1-8b-instant",
			APIKeyEnv:   "GROQ_API_KEY",
			Timeout:     5 * time.Second,
			MaxRetries:  2,
			MaxTokens:   80,
			Temperature: 0.1,
		},
		Clients: []ClientConfig{},
		Logging: LoggingConfig{
			PreviewLevel: "metadata",
		},
		Activation: ActivationConfig{
			QueueSize: 1000,
			Workers:   1,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "contexttype",
		},
	}
}

// applyDefaults fills values an explicit but partial file or env override left
// at zero.
func applyDefaults(cfg *Config) {
	def := defaultConfig()

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.MaxRequestBodyBytes <= 0 {
		cfg.Server.MaxRequestBodyBytes = def.Server.MaxRequestBodyBytes
	}
	if cfg.Server.MaxTextChars <= 0 {
		cfg.Server.MaxTextChars = def.Server.MaxTextChars
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = def.Server.ReadHeaderTimeout
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}

	if cfg.Detector.Thresholds.WindowChars <= 0 {
		cfg.Detector.Thresholds.WindowChars = def.Detector.Thresholds.WindowChars
	}

	if cfg.ML.MaxTextChars <= 0 {
		cfg.ML.MaxTextChars = def.ML.MaxTextChars
	}

	if cfg.Sessions.TTL <= 0 {
		cfg.Sessions.TTL = def.Sessions.TTL
	}

	if cfg.Suggestions.Provider == "" {
		cfg.Suggestions.Provider = def.Suggestions.Provider
	}
	if cfg.Suggestions.Timeout <= 0 {
		cfg.Suggestions.Timeout = def.Suggestions.Timeout
	}
	if cfg.Suggestions.MaxTokens <= 0 {
		cfg.Suggestions.MaxTokens = def.Suggestions.MaxTokens
	}

	if cfg.Logging.PreviewLevel == "" {
		cfg.Logging.PreviewLevel = def.Logging.PreviewLevel
	}

	if cfg.Activation.QueueSize <= 0 {
		cfg.Activation.QueueSize = def.Activation.QueueSize
	}
	if cfg.Activation.Workers <= 0 {
		cfg.Activation.Workers = def.Activation.Workers
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = def.Telemetry.Protocol
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
}

// ResolveAPIKey returns the suggestion provider key, preferring the inline value.
func (s SuggestionsConfig) ResolveAPIKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	if s.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.APIKeyEnv)
}
