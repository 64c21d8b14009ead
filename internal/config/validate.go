package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values. All
// problems are reported together, wrapped in ErrInvalid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}

	var errs []error
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr must be set"))
	}
	if cfg.Server.MaxRequestBodyBytes < 0 {
		errs = append(errs, errors.New("server.max_request_body_bytes must be >= 0"))
	}

	if err := cfg.Detector.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detector.weights: %w", err))
	}
	if err := cfg.Detector.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detector.thresholds: %w", err))
	}

	if cfg.ML.Enabled && strings.TrimSpace(cfg.ML.BundleDir) == "" {
		errs = append(errs, errors.New("ml.bundle_dir must be set when ml is enabled"))
	}
	if cfg.ML.MinConfidence < 0 || cfg.ML.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("ml.min_confidence must be within [0,1], got %v", cfg.ML.MinConfidence))
	}

	if cfg.Sessions.MaxSessions < 0 {
		errs = append(errs, errors.New("sessions.max_sessions must be >= 0"))
	}

	errs = append(errs, validateSuggestionsConfig(cfg.Suggestions)...)
	errs = append(errs, validateClients(cfg.Clients)...)

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.PreviewLevel)) {
	case "", "metadata", "redacted", "full":
	default:
		errs = append(errs, fmt.Errorf("logging.preview_level must be metadata, redacted or full, got %q", cfg.Logging.PreviewLevel))
	}

	errs = append(errs, validateActivationConfig(cfg.Activation)...)
	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func validateSuggestionsConfig(s SuggestionsConfig) []error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "", "static":
		return nil
	case "openai":
	default:
		return []error{fmt.Errorf("suggestions.provider must be openai or static, got %q", s.Provider)}
	}

	if strings.TrimSpace(s.Model) == "" {
		errs = append(errs, errors.New("suggestions.model must be set for the openai provider"))
	}
	if strings.TrimSpace(s.APIKeyEnv) == "" && strings.TrimSpace(s.APIKey) == "" {
		errs = append(errs, errors.New("suggestions provider missing api key (api_key_env or api_key)"))
	}
	if s.MaxRetries < 0 {
		errs = append(errs, errors.New("suggestions.max_retries must be >= 0"))
	}
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		switch {
		case err != nil || u.Scheme == "" || u.Host == "":
			errs = append(errs, errors.New("suggestions.base_url is invalid"))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, errors.New("suggestions.base_url must be http or https"))
		default:
			if err := blockPrivateHost(u.Host, s.AllowPrivateNetworks); err != nil {
				errs = append(errs, fmt.Errorf("suggestions.base_url blocked: %w", err))
			}
		}
	}
	return errs
}

func validateClients(clients []ClientConfig) []error {
	var errs []error
	seen := make(map[string]string)
	for i, c := range clients {
		if strings.TrimSpace(c.ID) == "" {
			errs = append(errs, fmt.Errorf("client %d: id must be set", i))
			continue
		}
		if len(c.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("client %q must define at least one api_keys entry", c.ID))
		}
		for _, k := range c.APIKeys {
			if owner, ok := seen[k]; ok && owner != c.ID {
				errs = append(errs, fmt.Errorf("client %q reuses an api key of client %q", c.ID, owner))
			}
			seen[k] = c.ID
		}
	}
	return errs
}

func validateActivationConfig(a ActivationConfig) []error {
	var errs []error
	for i, s := range a.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "stdout":
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fmt.Errorf("activation sink %d (file_jsonl) missing path", i))
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				errs = append(errs, fmt.Errorf("activation sink %d (webhook) missing url", i))
				continue
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Errorf("activation sink %d (webhook) has invalid url", i))
				continue
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				errs = append(errs, fmt.Errorf("activation sink %d (webhook) url must be http or https", i))
			}
		default:
			errs = append(errs, fmt.Errorf("activation sink %d has unknown type %q", i, s.Type))
		}
	}
	return errs
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
		return nil
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
	}
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if strings.Contains(hostport, "]") || strings.Contains(hostport, ":") {
		h, _, err := net.SplitHostPort(hostport)
		if err == nil {
			host = h
		}
	}
	if strings.EqualFold(strings.TrimSpace(host), "localhost") {
		return errors.New("private network host localhost blocked for SSRF safety")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private network IP %s blocked for SSRF safety", ip.String())
	}
	return nil
}

var privateBlocks = []*net.IPNet{
	{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("169.254.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("::1"), Mask: net.CIDRMask(128, 128)},
	{IP: net.ParseIP("fc00::"), Mask: net.CIDRMask(7, 128)},
	{IP: net.ParseIP("fe80::"), Mask: net.CIDRMask(10, 128)},
}

func isPrivateIP(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
