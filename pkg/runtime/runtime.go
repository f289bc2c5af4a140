// Copyright 2025 Shadow Atlas Project
//
// AtlasRuntime is the boot-time handle every long-lived Atlas component
// shares: the verified Poseidon hasher, the loaded config, and a
// component logger. Constructing it is the one place the "fatal at
// startup, no graceful fallback" rule from pkg/hash is enforced — every
// other package assumes a *hash.Hasher already passed that check and
// never calls hash.NewHasher itself.

package runtime

import (
	"fmt"
	"log"

	"github.com/shadowatlas/atlas/pkg/config"
	"github.com/shadowatlas/atlas/pkg/hash"
)

// AtlasRuntime bundles the handles that must exist before any request
// can be served or any build can run.
type AtlasRuntime struct {
	Config *config.Config
	Hasher *hash.Hasher
	Logger *log.Logger
}

// New verifies the build's Poseidon domain-separation parameters and
// assembles the runtime handle. A non-nil error here is unrecoverable:
// callers should log and exit rather than attempt to serve traffic or
// build a snapshot with unverified hash constants.
func New(cfg *config.Config) (*AtlasRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("runtime: config cannot be nil")
	}

	hasher, err := hash.NewHasher()
	if err != nil {
		return nil, fmt.Errorf("runtime: hash constant-table integrity check failed: %w", err)
	}

	return &AtlasRuntime{
		Config: cfg,
		Hasher: hasher,
		Logger: log.New(log.Writer(), "[AtlasRuntime] ", log.LstdFlags),
	}, nil
}

// MustNew is New, panicking instead of returning an error. Entrypoints
// that want the "fatal at startup" behavior expressed as a crash rather
// than a propagated error use this.
func MustNew(cfg *config.Config) *AtlasRuntime {
	rt, err := New(cfg)
	if err != nil {
		log.Fatalf("[AtlasRuntime] %v", err)
	}
	return rt
}
