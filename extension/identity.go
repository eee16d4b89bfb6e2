// File: extension/identity.go
// Author: momentics <momentics@gmail.com>
//
// The identity extension forwards frames untouched. It exists to
// exercise the negotiation path end to end without changing traffic.

package extension

import (
	"fmt"

	"github.com/momentics/wscore/api"
)

// Identity is the no-op transform.
type Identity struct{}

// NewIdentity builds the identity extension. It accepts no parameters.
func NewIdentity(cfg Config) (*Identity, error) {
	if len(cfg.Params()) != 0 {
		return nil, fmt.Errorf("identity: unexpected parameters")
	}
	return &Identity{}, nil
}

func (*Identity) Name() string   { return "identity" }
func (*Identity) UsesRSV1() bool { return false }
func (*Identity) UsesRSV2() bool { return false }
func (*Identity) UsesRSV3() bool { return false }

func (*Identity) Decode(f *api.Frame, emit func(*api.Frame) error) error {
	return emit(f)
}

func (*Identity) Encode(f *api.Frame) (*api.Frame, error) {
	return f, nil
}

func (*Identity) Close() error { return nil }
