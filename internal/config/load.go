package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/leonardotrapani/medscribe/internal/patient"
	"github.com/rs/zerolog/log"
)

var ErrConfigNotFound = errors.New("config not found")

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configDir, "medscribe")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file, creating it with defaults on first run.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Info().Str("path", configPath).Msg("Config: no config file found, creating with defaults")
		if err := SaveTo(configPath, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	return LoadFrom(configPath)
}

// LoadFrom parses path on top of the defaults, so omitted keys keep their
// default values.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	log.Debug().Str("path", path).Msg("Config: loading configuration")
	config := DefaultConfig()
	defaultPatients := config.Patients
	// decoding into a populated slice would merge fields across entries
	config.Patients = nil
	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if meta.IsDefined("patients") {
		config.Patients = trimPatients(config.Patients)
	} else {
		config.Patients = defaultPatients
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		log.Warn().Strs("keys", keys).Msg("Config: ignoring unknown keys")
	}

	return config, nil
}

// trimPatients drops duplicate-ID entries keeping the first.
func trimPatients(in []patient.Patient) []patient.Patient {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, p := range in {
		id := strings.TrimSpace(p.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		p.ID = id
		out = append(out, p)
	}
	return out
}

// Save writes c to the default config path.
func Save(c *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(configPath, c)
}

func SaveTo(path string, c *Config) error {
	var buf bytes.Buffer
	buf.WriteString("# MedScribe Configuration\n")
	buf.WriteString("# Changes are applied without restarting the daemon.\n\n")
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
