package incrementer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "batchadmin/pkg/batch/job/core"
)

func TestRunIDIncrementer_GetNext(t *testing.T) {
	inc := NewRunIDIncrementer("")

	params := core.NewJobParameters()
	params.PutString("fail", "false")

	first := inc.GetNext(params)
	runID, ok := first.GetLong("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), runID)
	assert.Equal(t, core.ParameterTypeLong, first.Params["run.id"].Type)
	v, _ := first.GetString("fail")
	assert.Equal(t, "false", v)
	_, ok = params.Get("run.id")
	assert.False(t, ok, "元のパラメータは変更されない")

	second := inc.GetNext(first)
	runID, _ = second.GetLong("run.id")
	assert.Equal(t, int64(2), runID)
	assert.NotEqual(t, first.ToJobKey(), second.ToJobKey())
}

func TestRunIDIncrementer_StringValue(t *testing.T) {
	params := core.NewJobParameters()
	params.PutString("run.id", "41")
	next := NewRunIDIncrementer("run.id").GetNext(params)
	runID, _ := next.GetLong("run.id")
	assert.Equal(t, int64(42), runID)
}

func TestTimestampIncrementer_GetNext(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	inc := NewTimestampIncrementer("")
	inc.now = func() time.Time { return fixed }

	first := inc.GetNext(core.NewJobParameters())
	ts, ok := first.GetDate("timestamp")
	require.True(t, ok)
	assert.Equal(t, fixed, ts)

	second := inc.GetNext(first)
	ts2, _ := second.GetDate("timestamp")
	assert.True(t, ts2.After(ts))
	assert.NotEqual(t, first.ToJobKey(), second.ToJobKey())
}

func TestNew(t *testing.T) {
	inc, err := New("run-id")
	require.NoError(t, err)
	assert.IsType(t, &RunIDIncrementer{}, inc)

	inc, err = New("timestamp")
	require.NoError(t, err)
	assert.IsType(t, &TimestampIncrementer{}, inc)

	inc, err = New("")
	require.NoError(t, err)
	assert.Nil(t, inc)

	_, err = New("daily")
	assert.Error(t, err)
}
