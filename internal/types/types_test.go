package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	assert.True(t, Success().OK())
	assert.Equal(t, "success", Success().String())

	f := Failure("connection refused")
	assert.False(t, f.OK())
	assert.Equal(t, "failure", f.String())
	assert.Equal(t, "connection refused", f.Reason)

	assert.False(t, Status{}.OK(), "zero value is a failure")
}

func TestStatus_JSON(t *testing.T) {
	for _, s := range []Status{Success(), Failure("timeout")} {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var back Status
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, s, back)
	}

	var s Status
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"maybe"}`), &s))
}

func TestPollerRun_Elapsed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Zero(t, PollerRun{StartTime: start}.Elapsed())
	assert.Equal(t, time.Minute, PollerRun{StartTime: start, EndTime: start.Add(time.Minute)}.Elapsed())
}
