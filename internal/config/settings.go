// Package config loads the widget host settings from a YAML or JSON file.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/pkg/bridge"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Settings configures one widget host process.
type Settings struct {
	Listen         string        `mapstructure:"listen" json:"listen"`
	FrameURL       string        `mapstructure:"frame_url" json:"frame_url"`
	TrustedOrigins []string      `mapstructure:"trusted_origins" json:"trusted_origins"`
	Study          string        `mapstructure:"study" json:"study"`
	Watch          bool          `mapstructure:"watch" json:"watch"`
	Store          StoreSettings `mapstructure:"store" json:"store"`
	Log            LogSettings   `mapstructure:"log" json:"log"`
}

// StoreSettings selects and configures the model state backend.
type StoreSettings struct {
	Backend string        `mapstructure:"backend" json:"backend"`
	Redis   RedisSettings `mapstructure:"redis" json:"redis"`
	// EncryptionKey (base64, 32 bytes) encrypts participant exports at rest.
	EncryptionKey string `mapstructure:"encryption_key" json:"encryption_key"`
	// FallbackKeys decrypt exports written under earlier keys.
	FallbackKeys []string `mapstructure:"fallback_keys" json:"fallback_keys"`
	// MaskPatterns are regular expressions; matching export columns and keys are masked.
	MaskPatterns []string `mapstructure:"mask_patterns" json:"mask_patterns"`
}

// Keys decodes the active and fallback encryption keys. The active key is nil when unset.
func (s StoreSettings) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		if len(s.FallbackKeys) > 0 {
			return nil, nil, fmt.Errorf("fallback_keys require encryption_key")
		}
		return nil, nil, nil
	}
	decode := func(k string) ([]byte, error) {
		b, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 key: %w", err)
		}
		if len(b) != 32 {
			return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(b))
		}
		return b, nil
	}
	if active, err = decode(s.EncryptionKey); err != nil {
		return nil, nil, err
	}
	for _, k := range s.FallbackKeys {
		b, err := decode(k)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}

// RedisSettings configures the Redis model store.
type RedisSettings struct {
	Addr     string        `mapstructure:"addr" json:"addr"`
	Password string        `mapstructure:"password" json:"password"`
	DB       int           `mapstructure:"db" json:"db"`
	Prefix   string        `mapstructure:"prefix" json:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" json:"ttl"`
}

// LogSettings configures the application logger.
type LogSettings struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Default returns the settings used when no file is given.
func Default() Settings {
	return Settings{
		Listen:   ":8765",
		FrameURL: revisit.DefaultFrameURL,
		Store: StoreSettings{
			Backend: BackendMemory,
			Redis: RedisSettings{
				Addr:   "localhost:6379",
				Prefix: "revisit:widget:",
			},
		},
		Log: LogSettings{Level: "info", Format: "text"},
	}
}

// Load reads settings from path, layered over Default. A missing file is an error.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var raw map[string]any
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return Settings{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Settings{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	settings := Default()
	if err := Decode(raw, &settings); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Decode layers a generic map (from YAML, JSON or flags) onto settings.
func Decode(raw map[string]any, settings *Settings) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           settings,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	if _, err := s.Destination(); err != nil {
		return fmt.Errorf("frame_url: %w", err)
	}
	for _, o := range s.TrustedOrigins {
		if o == "*" {
			continue
		}
		if _, err := bridge.NormalizeOrigin(o); err != nil {
			return fmt.Errorf("trusted_origins: %w", err)
		}
	}
	if _, _, err := s.Store.Keys(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	for _, p := range s.Store.MaskPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("store.mask_patterns: %w", err)
		}
	}
	switch s.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", s.Store.Backend)
	}
	return nil
}

// Destination is the origin every outbound message is addressed to.
func (s Settings) Destination() (string, error) {
	return bridge.NormalizeOrigin(s.FrameURL)
}

// OriginPolicy builds the inbound policy: the configured trusted origins, or the
// destination alone when none are configured.
func (s Settings) OriginPolicy() (bridge.OriginPolicy, error) {
	if len(s.TrustedOrigins) == 0 {
		dest, err := s.Destination()
		if err != nil {
			return bridge.OriginPolicy{}, err
		}
		return bridge.NewOriginPolicy(dest)
	}
	return bridge.NewOriginPolicy(s.TrustedOrigins...)
}
