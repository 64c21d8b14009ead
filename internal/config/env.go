package config

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file settings.
const EnvPrefix = "CONTEXTTYPE_"

// envKey maps an environment variable to a config path:
// CONTEXTTYPE_SERVER_ADDR -> server.addr and
// CONTEXTTYPE_DETECTOR__THRESHOLDS__COOLDOWN -> detector.thresholds.cooldown.
// A single underscore after the section name separates the section; deeper
// levels need a double underscore.
func envKey(name string) string {
	s := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if strings.Contains(s, "__") {
		return strings.ReplaceAll(s, "__", ".")
	}
	return strings.Replace(s, "_", ".", 1)
}

// applyEnv overlays CONTEXTTYPE_* variables onto cfg. Fields without a
// variable keep their current value.
func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return err
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	return k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"})
}
