package capability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prefixCapability() *Capability {
	return &Capability{
		Name:        "get_prefixes_by_location",
		Description: "Query network prefixes by location name.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"location_name": {Type: "string", Description: "Location name, e.g. 'Branch Office 3'"},
				"format":        {Type: "string", Enum: []string{"json", "table", "dataframe", "csv"}},
				"limit":         {Type: "integer"},
			},
			Required: []string{"location_name"},
		},
	}
}

func TestValidateArgsAccepts(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"required only", map[string]any{"location_name": "HQ-Dallas"}},
		{"with enum value", map[string]any{"location_name": "HQ-Dallas", "format": "table"}},
		{"integer as float64", map[string]any{"location_name": "HQ-Dallas", "limit": float64(5)}},
		{"integer as int", map[string]any{"location_name": "HQ-Dallas", "limit": 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, ValidateArgs(prefixCapability(), tt.args))
		})
	}
}

func TestValidateArgsRejects(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{"format": "json"}},
		{"wrong type", map[string]any{"location_name": 42}},
		{"enum violation", map[string]any{"location_name": "HQ-Dallas", "format": "xml"}},
		{"non-integral integer", map[string]any{"location_name": "HQ-Dallas", "limit": 2.5}},
		{"undeclared argument", map[string]any{"location_name": "HQ-Dallas", "verbose": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgs(prefixCapability(), tt.args)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
			assert.Equal(t, "get_prefixes_by_location", verr.Capability)
		})
	}
}

func TestValidateArgsNestedObject(t *testing.T) {
	cap := &Capability{
		Name: "bulk_lookup",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"devices": {
					Type:  "array",
					Items: &Property{Type: "string"},
				},
				"options": {
					Type: "object",
					Properties: map[string]*Property{
						"depth": {Type: "integer"},
					},
					Required: []string{"depth"},
				},
			},
			Required: []string{"devices"},
		},
	}

	ok := map[string]any{
		"devices": []any{"BRCN-SW-01", "BRCN-SW-02"},
		"options": map[string]any{"depth": float64(2)},
	}
	assert.NoError(t, ValidateArgs(cap, ok))

	badItem := map[string]any{"devices": []any{"BRCN-SW-01", 7}}
	assert.Error(t, ValidateArgs(cap, badItem))

	missingNested := map[string]any{"devices": []any{"x"}, "options": map[string]any{}}
	assert.Error(t, ValidateArgs(cap, missingNested))
}

func TestResultEnvelopeHelpers(t *testing.T) {
	success := NewSuccess(map[string]any{
		"success": true,
		"message": "Found 3 devices at location 'Campus A'",
		"count":   float64(3),
		"data":    []any{},
	}, 0)
	assert.True(t, success.OK())
	assert.Equal(t, 3, success.ResultCount())
	assert.Equal(t, "Found 3 devices at location 'Campus A'", success.ResultSummary())

	failure := NewFailure(FailureBackend, "connection refused", 0)
	assert.False(t, failure.OK())
	assert.Equal(t, 0, failure.ResultCount())
	assert.Equal(t, "connection refused", failure.ResultSummary())

	hit := NewCacheHit(success.Payload, 0)
	assert.True(t, hit.OK())
	assert.Equal(t, ResultCacheHit, hit.Kind)
	assert.Equal(t, 3, hit.ResultCount())
}
