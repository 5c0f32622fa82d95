package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelStateJSONConversions(t *testing.T) {
	type testJson struct {
		State CancelState `json:"state"`
	}
	typedCases := []testJson{
		{
			State: CancelRunning,
		},
		{
			State: CancelRequested,
		},
		{
			State: CancelCancelled,
		},
	}
	strCases := []string{
		`{"state": "RUNNING"}`,
		`{"state": "CANCEL_REQUESTED"}`,
		`{"state": "CANCELLED"}`,
	}

	for n, c := range strCases {
		var inputStringAsStruct *testJson
		err := json.Unmarshal([]byte(c), &inputStringAsStruct)
		assert.NoErrorf(t, err, "Failed to unmarshal: %#v", err)
		assert.Equal(t, inputStringAsStruct, &typedCases[n])
	}

	var invalid testJson
	err := json.Unmarshal([]byte(`{"state": "PAUSED"}`), &invalid)
	assert.Error(t, err)
}
