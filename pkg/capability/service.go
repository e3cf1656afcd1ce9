// Package capability resolves what a device can do, used by the issuer to
// bound generated schedules.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownDevice = errors.New("unknown device")

type Capabilities struct {
	MaxPowerKW float64 `json:"max_power_kw"`
	Model      string  `json:"model,omitempty"`
}

type Provider interface {
	GetCapabilities(ctx context.Context, deviceID string) (Capabilities, error)
}

// Registry is a Provider over a fixed set of devices, usually loaded from
// the issuer configuration.
type Registry struct {
	mu           sync.RWMutex
	devices      map[string]Capabilities
	defaultLimit float64
}

// NewRegistry creates an empty registry. Devices registered without a
// positive MaxPowerKW get defaultLimitKW.
func NewRegistry(defaultLimitKW float64) *Registry {
	return &Registry{
		devices:      make(map[string]Capabilities),
		defaultLimit: defaultLimitKW,
	}
}

func (r *Registry) Register(deviceID string, caps Capabilities) {
	if caps.MaxPowerKW <= 0 {
		caps.MaxPowerKW = r.defaultLimit
	}
	r.mu.Lock()
	r.devices[deviceID] = caps
	r.mu.Unlock()
}

func (r *Registry) GetCapabilities(ctx context.Context, deviceID string) (Capabilities, error) {
	if err := ctx.Err(); err != nil {
		return Capabilities{}, err
	}
	r.mu.RLock()
	caps, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok {
		return Capabilities{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return caps, nil
}

// DeviceIDs returns the registered ids in sorted order.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
