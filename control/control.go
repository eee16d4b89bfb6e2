// control/control.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"github.com/momentics/wscore/api"
)

// Control binds a config store and a metrics registry into the
// api.Control contract for management surfaces.
type Control struct {
	store   *ConfigStore
	metrics *Metrics
}

// New builds a control plane seeded with cfg.
func New(cfg api.Config) *Control {
	return &Control{
		store:   NewConfigStore(cfg),
		metrics: NewMetrics(),
	}
}

// GetConfig implements api.Control.
func (c *Control) GetConfig() api.Config { return c.store.Get() }

// SetConfig implements api.Control. Values are normalized on the way
// in, so an unusable field falls back to its default.
func (c *Control) SetConfig(cfg api.Config) error {
	c.store.Set(cfg)
	return nil
}

// Stats implements api.Control.
func (c *Control) Stats() map[string]int64 { return c.metrics.Snapshot() }

// OnReload implements api.Control.
func (c *Control) OnReload(fn func()) { c.store.OnReload(fn) }

// Recorder returns the api.StatsRecorder sessions should report to.
func (c *Control) Recorder() api.StatsRecorder { return c.metrics }

// Store exposes the underlying config store.
func (c *Control) Store() *ConfigStore { return c.store }

var _ api.Control = (*Control)(nil)
var _ api.StatsRecorder = (*Metrics)(nil)
