package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobParameters_PutInfersType(t *testing.T) {
	params := NewJobParameters()
	params.Put("fail", "false")
	params.Put("run.id", 1)
	params.Put("rate", 0.5)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	params.Put("date", date)

	assert.Equal(t, ParameterTypeString, params.Params["fail"].Type)
	assert.Equal(t, ParameterTypeLong, params.Params["run.id"].Type)
	assert.Equal(t, ParameterTypeDouble, params.Params["rate"].Type)
	assert.Equal(t, ParameterTypeDate, params.Params["date"].Type)

	runID, ok := params.GetLong("run.id")
	assert.True(t, ok)
	assert.Equal(t, int64(1), runID)

	fail, ok := params.GetBool("fail")
	assert.True(t, ok)
	assert.False(t, fail)

	got, ok := params.GetDate("date")
	assert.True(t, ok)
	assert.True(t, date.Equal(got))

	_, ok = params.GetLong("missing")
	assert.False(t, ok)
}

func TestJobParameters_ZeroValuePut(t *testing.T) {
	var params JobParameters
	params.PutString("name", "x")
	assert.Equal(t, 1, params.Len())
	assert.False(t, params.IsEmpty())
}

func TestJobParameters_ToJobKey(t *testing.T) {
	a := NewJobParameters()
	a.PutString("fail", "false")
	a.PutLong("run.id", 0)

	b := NewJobParameters()
	b.PutLong("run.id", 0)
	b.PutString("fail", "false")

	c := a.Copy()
	c.PutLong("run.id", 1)

	assert.Equal(t, a.ToJobKey(), b.ToJobKey(), "キーの順序に依存しない")
	assert.NotEqual(t, a.ToJobKey(), c.ToJobKey())
	assert.Len(t, a.ToJobKey(), 32)

	nonIdentifying := a.Copy()
	nonIdentifying.PutParameter("timestamp", JobParameter{Value: "now", Type: ParameterTypeString, Identifying: false})
	assert.Equal(t, a.ToJobKey(), nonIdentifying.ToJobKey(), "非識別パラメータは JobKey に影響しない")

	assert.Equal(t, NewJobParameters().ToJobKey(), JobParameters{}.ToJobKey())
}

func TestJobParameters_EqualAndIdentifying(t *testing.T) {
	a := NewJobParameters()
	a.PutString("x", "1")
	a.PutParameter("y", JobParameter{Value: "2", Type: ParameterTypeString})

	b := a.Copy()
	assert.True(t, a.Equal(b))

	b.PutLong("x", 1)
	assert.False(t, a.Equal(b), "型が異なれば不一致")

	ident := a.Identifying()
	assert.Equal(t, []string{"x"}, ident.Keys())
	assert.Equal(t, "{x=1, y=2}", a.String())
}

func TestParseJobParameter(t *testing.T) {
	tests := []struct {
		expr        string
		key         string
		typ         ParameterType
		value       interface{}
		identifying bool
		wantErr     bool
	}{
		{expr: "fail=true", key: "fail", typ: ParameterTypeString, value: "true", identifying: true},
		{expr: "run.id(long)=5", key: "run.id", typ: ParameterTypeLong, value: int64(5), identifying: true},
		{expr: "rate(double)=0.25", key: "rate", typ: ParameterTypeDouble, value: 0.25, identifying: true},
		{expr: "-name=x=y", key: "name", typ: ParameterTypeString, value: "x=y", identifying: false},
		{expr: "date(date)=2024-01-02", key: "date", typ: ParameterTypeDate, value: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), identifying: true},
		{expr: "novalue", wantErr: true},
		{expr: "n(long)=abc", wantErr: true},
		{expr: "n(bytes)=abc", wantErr: true},
		{expr: "=x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			key, param, err := ParseJobParameter(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.typ, param.Type)
			assert.Equal(t, tt.value, param.Value)
			assert.Equal(t, tt.identifying, param.Identifying)
		})
	}
}
