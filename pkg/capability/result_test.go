package capability

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallResultJSON(t *testing.T) {
	failure := NewFailure(FailureTimeout, "deadline exceeded", 2*time.Second)

	data, err := json.Marshal(failure)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"failure"`)
	assert.Contains(t, string(data), `"failure_kind":"timeout"`)

	var back CallResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ResultFailure, back.Kind)
	assert.Equal(t, FailureTimeout, back.FailureKind)
	assert.Equal(t, failure.Message, back.Message)
	assert.Equal(t, failure.Elapsed, back.Elapsed)
}

func TestCallResultJSONCacheHit(t *testing.T) {
	hit := NewCacheHit(map[string]any{"success": true}, 2)

	data, err := json.Marshal(hit)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"cache_hit"`)
	assert.Contains(t, string(data), `"original_round":2`)

	var back CallResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ResultCacheHit, back.Kind)
	assert.Equal(t, 2, back.OriginalRound)
}

func TestResultKindJSONRejectsUnknown(t *testing.T) {
	var k ResultKind
	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &k))
}
