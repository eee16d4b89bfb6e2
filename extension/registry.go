// File: extension/registry.go
// Package extension implements the extension registry and negotiation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The registry is an explicit object owned by whoever performs the
// handshake. Nothing registers itself at init time; a registry built
// by NewRegistry knows the bundled extensions and callers add their
// own with Register.

package extension

import (
	"fmt"
	"sync"

	"github.com/momentics/wscore/api"
)

// Constructor builds a per-connection extension instance from an
// accepted config. Constructors validate parameters and fail fast.
type Constructor func(cfg Config) (api.Extension, error)

// Negotiator is implemented by extensions whose handshake response
// differs from the offer, typically to confirm or drop parameters.
type Negotiator interface {
	NegotiatedConfig() Config
}

// Registry maps extension tokens to constructors for one endpoint
// role. Safe for concurrent use.
type Registry struct {
	behavior api.Behavior

	mu        sync.RWMutex
	factories map[string]Constructor
}

// NewRegistry returns a registry for the given role with the bundled
// extensions pre-registered: identity and permessage-deflate.
func NewRegistry(behavior api.Behavior) *Registry {
	r := &Registry{
		behavior:  behavior,
		factories: make(map[string]Constructor),
	}
	r.Register("identity", func(cfg Config) (api.Extension, error) {
		return NewIdentity(cfg)
	})
	r.Register("permessage-deflate", func(cfg Config) (api.Extension, error) {
		return NewDeflate(behavior, cfg)
	})
	return r
}

// Register binds a token to a constructor, replacing any previous
// binding.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = ctor
}

// Known reports whether a token has a constructor.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New instantiates one extension from an accepted config. Unknown
// tokens fail.
func (r *Registry) New(cfg Config) (api.Extension, error) {
	r.mu.RLock()
	ctor, ok := r.factories[cfg.Name()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("extension %q is not registered", cfg.Name())
	}
	return ctor(cfg)
}

// Negotiate walks the peer's offers in order and instantiates every
// acceptable one. An offer is skipped when its token is unknown, its
// token was already accepted, its constructor rejects the parameters,
// or it claims an RSV bit an earlier acceptance already holds.
// The returned configs are the handshake response entries, in chain
// order.
func (r *Registry) Negotiate(offers []Config) ([]api.Extension, []Config) {
	var (
		exts     []api.Extension
		accepted []Config
		taken    = map[string]bool{}
		rsv1     bool
		rsv2     bool
		rsv3     bool
	)
	for _, offer := range offers {
		if !r.Known(offer.Name()) || taken[offer.Name()] {
			continue
		}
		ext, err := r.New(offer)
		if err != nil {
			continue
		}
		if (ext.UsesRSV1() && rsv1) || (ext.UsesRSV2() && rsv2) || (ext.UsesRSV3() && rsv3) {
			ext.Close()
			continue
		}
		rsv1 = rsv1 || ext.UsesRSV1()
		rsv2 = rsv2 || ext.UsesRSV2()
		rsv3 = rsv3 || ext.UsesRSV3()
		taken[offer.Name()] = true
		exts = append(exts, ext)
		accepted = append(accepted, responseConfig(ext, offer))
	}
	return exts, accepted
}

// Build instantiates a chain from the configs a server accepted. The
// client side uses it on the handshake response, where an unknown or
// rejected entry is fatal rather than skippable.
func (r *Registry) Build(accepted []Config) ([]api.Extension, error) {
	var exts []api.Extension
	rsvTaken := [3]bool{}
	for _, cfg := range accepted {
		ext, err := r.New(cfg)
		if err != nil {
			closeAll(exts)
			return nil, err
		}
		claims := [3]bool{ext.UsesRSV1(), ext.UsesRSV2(), ext.UsesRSV3()}
		for i := range claims {
			if claims[i] && rsvTaken[i] {
				closeAll(append(exts, ext))
				return nil, fmt.Errorf("extension %q claims an RSV bit already in use", cfg.Name())
			}
			rsvTaken[i] = rsvTaken[i] || claims[i]
		}
		exts = append(exts, ext)
	}
	return exts, nil
}

func closeAll(exts []api.Extension) {
	for _, e := range exts {
		e.Close()
	}
}

func responseConfig(ext api.Extension, offer Config) Config {
	if n, ok := ext.(Negotiator); ok {
		return n.NegotiatedConfig()
	}
	return offer
}
