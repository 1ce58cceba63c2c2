package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
	onReload []func(*Config)
}

// NewManager loads the config from the default path.
func NewManager() (*Manager, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := Load(); err != nil {
		return nil, err
	}
	return NewManagerAt(path)
}

// NewManagerAt loads and manages the config file at path.
func NewManagerAt(path string) (*Manager, error) {
	config, err := LoadFrom(path)
	if err != nil {
		log.Error().Err(err).Msg("Config manager: failed to load initial configuration")
		return nil, err
	}

	if err := config.Validate(); err != nil {
		log.Warn().Err(err).Msg("Config manager: validation warning")
	}

	return &Manager{config: config, path: path}, nil
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modification
	configCopy := *m.config
	configCopy.Patients = append(configCopy.Patients[:0:0], m.config.Patients...)
	return &configCopy
}

// OnReload registers fn to run with every successfully reloaded config.
// Must be called before StartWatching.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	m.onReload = append(m.onReload, fn)
	m.mu.Unlock()
}

func (m *Manager) StartWatching(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	m.watcher = watcher

	// watch the directory so editors that replace the file are seen
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}

	m.wg.Add(1)
	go m.watchLoop(ctx)

	log.Info().Str("path", m.path).Msg("Config manager: watching for changes")
	return nil
}

func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()
	configFileName := filepath.Base(m.path)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != configFileName {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				log.Info().Str("file", event.Name).Msg("Config manager: file change detected, reloading")
				m.Reload()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config manager: watcher error")

		case <-ctx.Done():
			return
		}
	}
}

// Reload re-reads the file. Invalid configs are rejected and the previous
// one stays active.
func (m *Manager) Reload() bool {
	newConfig, err := LoadFrom(m.path)
	if err != nil {
		log.Error().Err(err).Msg("Config manager: failed to reload config")
		return false
	}

	if err := newConfig.Validate(); err != nil {
		log.Error().Err(err).Msg("Config manager: invalid config after reload")
		return false
	}

	m.mu.Lock()
	m.config = newConfig
	hooks := append(([]func(*Config))(nil), m.onReload...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(m.GetConfig())
	}

	log.Info().Msg("Config manager: configuration successfully reloaded")
	return true
}
