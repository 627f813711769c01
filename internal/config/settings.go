package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Config struct {
	Decay struct {
		Interval Timer `json:"interval"`
	} `json:"decay"`

	Import struct {
		Sources        []string `json:"sources"`
		Directory      string   `json:"directory"`
		RefreshTimer   Timer    `json:"refresh_timer"`
		UseDoH         bool     `json:"use_doh"`
		TimeoutSeconds uint32   `json:"timeout_seconds"`
		MaxRetries     uint32   `json:"max_retries"`
	} `json:"import"`

	Export struct {
		Path     string `json:"path"`
		OnImport bool   `json:"on_import"`
	} `json:"export"`

	DoH DoHConfig `json:"doh"`
}

type DoHConfig struct {
	Providers      []string `json:"providers"`
	TimeoutSeconds uint32   `json:"timeout_seconds"`
	CloudflareURL  string   `json:"cloudflare_url"`
	GoogleURL      string   `json:"google_url"`
	SOCKS5         string   `json:"socks5"`

	Google struct {
		CheckingDisabled bool   `json:"cd"`
		ClientSubnet     string `json:"edns_client_subnet"`
		RandomPadding    bool   `json:"random_padding"`
	} `json:"google"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const (
	minDoHTimeout     = 1 * time.Second
	maxDoHTimeout     = 30 * time.Second
	defaultDoHTimeout = 8 * time.Second

	defaultImportTimeout = 30 * time.Second
)

var (
	//go:embed default_settings.json
	defaultConfig []byte

	settingsFilePath = "data/settings.json"

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		panic("config: embedded default settings are invalid: " + err.Error())
	}
	configValue.Store(cfg)
}

// SetSettingsPath changes where ReadSettings and SetConfig keep the settings file.
func SetSettingsPath(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	settingsFilePath = path
}

func settingsPath() string {
	configMu.Lock()
	defer configMu.Unlock()
	return settingsFilePath
}

func ReadSettings() {
	path := settingsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration", "path", path)

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				log.Error("Error creating directory for settings file", "error", err)
				return
			}

			if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
				log.Error("Error writing default settings file", "error", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file", "error", err)
			return
		}
	}

	// start from the defaults so keys missing in an older file keep sane values
	var newConfig Config
	_ = json.Unmarshal(defaultConfig, &newConfig)
	if err := json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file", "error", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file", "error", err)
		return
	}

	log.Debug("Settings file loaded successfully", "path", path)
}

// SetConfig validates, stores, persists and broadcasts newConfig.
func SetConfig(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update", "error", err)
		return err
	}

	log.Debug("Configuration updated and written to file successfully")
	return nil
}

var (
	ErrUnknownProvider = errors.New("config: unknown doh provider")
	ErrNoProviders     = errors.New("config: at least one doh provider is required")
)

// Validate rejects settings the resolver or importer cannot work with.
func (c Config) Validate() error {
	if len(c.DoH.Providers) == 0 {
		return ErrNoProviders
	}
	for _, p := range c.DoH.Providers {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "cloudflare", "google":
		default:
			return fmt.Errorf("%w: %q", ErrUnknownProvider, p)
		}
	}
	if invalid := InvalidSources(c.Import.Sources); len(invalid) > 0 {
		return fmt.Errorf("%w: %q", ErrInvalidSource, invalid[0])
	}
	return nil
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	newConfig.Import.Sources = NormalizeSources(newConfig.Import.Sources)
	configValue.Store(newConfig)
	SetBetweenTime()

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			log.Error("Error marshalling new configuration", "error", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath, data, 0o644); err != nil {
			log.Error("Error writing new configuration to file", "error", err)
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		payload, err := json.Marshal(newConfig)
		if err != nil {
			log.Error("Error serializing configuration for broadcast", "error", err)
			errs = append(errs, err)
		} else if err := broadcastConfigUpdate(payload); err != nil {
			log.Error("Error broadcasting configuration update", "error", err)
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	} else {
		log.Debug("Configuration applied")
	}

	return errors.Join(errs...)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// DoHTimeout is the per-request DoH timeout, clamped to 1..30 seconds.
func (c Config) DoHTimeout() time.Duration {
	if c.DoH.TimeoutSeconds == 0 {
		return defaultDoHTimeout
	}
	timeout := time.Duration(c.DoH.TimeoutSeconds) * time.Second
	if timeout < minDoHTimeout {
		return minDoHTimeout
	}
	if timeout > maxDoHTimeout {
		return maxDoHTimeout
	}
	return timeout
}

// ImportTimeout bounds a single hosts source download.
func (c Config) ImportTimeout() time.Duration {
	if c.Import.TimeoutSeconds == 0 {
		return defaultImportTimeout
	}
	return time.Duration(c.Import.TimeoutSeconds) * time.Second
}
