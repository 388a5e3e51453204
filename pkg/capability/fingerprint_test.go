package capability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"location_name": "HQ-Dallas", "format": "table"}
	b := map[string]any{"format": "table", "location_name": "HQ-Dallas"}

	assert.Equal(t, Fingerprint("get_prefixes_by_location", a), Fingerprint("get_prefixes_by_location", b))
}

func TestFingerprintNestedPermutation(t *testing.T) {
	a := map[string]any{
		"filter": map[string]any{"role": "WAN Router", "status": "active"},
		"limit":  10,
	}
	b := map[string]any{
		"limit":  10,
		"filter": map[string]any{"status": "active", "role": "WAN Router"},
	}

	assert.Equal(t, Fingerprint("get_devices_by_location", a), Fingerprint("get_devices_by_location", b))
}

func TestFingerprintScalarNormalization(t *testing.T) {
	// A JSON-decoded payload carries float64 where hand-built args carry int.
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"limit": 25, "offset": 0}`), &decoded))

	built := map[string]any{"limit": 25, "offset": 0}

	assert.Equal(t, Fingerprint("get_locations", decoded), Fingerprint("get_locations", built))
}

func TestFingerprintDistinguishes(t *testing.T) {
	args := map[string]any{"device_name": "BRCN-SW-01"}

	assert.NotEqual(t, Fingerprint("get_interfaces_by_device", args), Fingerprint("get_devices_by_location", args),
		"same args under different capability names must not collide")

	other := map[string]any{"device_name": "BRCN-SW-02"}
	assert.NotEqual(t, Fingerprint("get_interfaces_by_device", args), Fingerprint("get_interfaces_by_device", other),
		"different args must not collide")
}

func TestFingerprintStable(t *testing.T) {
	args := map[string]any{"location_name": "Branch Office 3", "format": "json"}

	first := Fingerprint("get_prefixes_by_location", args)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Fingerprint("get_prefixes_by_location", args))
	}
}

func TestFingerprintEmptyAndNilArgs(t *testing.T) {
	assert.Equal(t, Fingerprint("get_locations", nil), Fingerprint("get_locations", nil))
	assert.Equal(t, Fingerprint("get_locations", map[string]any{}), Fingerprint("get_locations", map[string]any{}))
}
