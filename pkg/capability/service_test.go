package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(50)
	r.Register("pi-2", Capabilities{MaxPowerKW: 25, Model: "small"})
	r.Register("pi-1", Capabilities{})

	caps, err := r.GetCapabilities(context.Background(), "pi-2")
	require.NoError(t, err)
	assert.Equal(t, Capabilities{MaxPowerKW: 25, Model: "small"}, caps)

	caps, err = r.GetCapabilities(context.Background(), "pi-1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, caps.MaxPowerKW)

	assert.Equal(t, []string{"pi-1", "pi-2"}, r.DeviceIDs())
}

func TestRegistryUnknownDevice(t *testing.T) {
	_, err := NewRegistry(50).GetCapabilities(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownDevice)
	assert.Contains(t, err.Error(), "ghost")
}
