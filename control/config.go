// control/config.go
// Author: momentics <momentics@gmail.com>
//
// YAML configuration loading and the thread-safe config store with
// reload propagation.

package control

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/momentics/wscore/api"
)

// LoadConfig reads a YAML file over the engine defaults, so absent
// keys keep their default values. Durations use Go syntax ("30s").
func LoadConfig(path string) (api.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.Config{}, fmt.Errorf("config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes over the engine defaults.
func ParseConfig(data []byte) (api.Config, error) {
	cfg := api.DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return api.Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// ConfigStore holds the current session config and tells listeners
// when it changes. Reads return a snapshot; sessions created after an
// update pick up the new values, running sessions keep theirs.
type ConfigStore struct {
	mu        sync.RWMutex
	config    api.Config
	listeners []func()
}

// NewConfigStore starts from the given config, normalized.
func NewConfigStore(cfg api.Config) *ConfigStore {
	cfg.Normalize()
	return &ConfigStore{config: cfg}
}

// Get returns the current config snapshot.
func (cs *ConfigStore) Get() api.Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// Set replaces the config and notifies listeners synchronously, in
// registration order, outside the lock.
func (cs *ConfigStore) Set(cfg api.Config) {
	cfg.Normalize()
	cs.mu.Lock()
	cs.config = cfg
	fns := make([]func(), len(cs.listeners))
	copy(fns, cs.listeners)
	cs.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// OnReload registers a listener called after every Set.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	cs.listeners = append(cs.listeners, fn)
	cs.mu.Unlock()
}

// Reload reads the file again and applies it. The previous config
// stays when the file fails to load.
func (cs *ConfigStore) Reload(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	cs.Set(cfg)
	return nil
}
