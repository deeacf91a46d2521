package snapshot

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modbusmon/modbusmon/internal/modbus"
)

func TestStoreUpdateReplacesAtomically(t *testing.T) {
	s := NewStore()
	first := time.Now()
	s.Update(Entry{TagID: 1, Value: Numeric(10), Raw: 10, Timestamp: first, Status: modbus.StatusOK})
	second := first.Add(5 * time.Second)
	s.Update(Entry{TagID: 1, Value: Numeric(20), Raw: 20, Timestamp: second, Status: modbus.StatusOK})

	e, ok := s.Get(1)
	require.True(t, ok)
	f, isNum := e.Value.Float()
	require.True(t, isNum)
	assert.Equal(t, 20.0, f)
	assert.Equal(t, second, e.Timestamp)
}

func TestStoreFailRetainsLastValue(t *testing.T) {
	s := NewStore()
	readAt := time.Now()
	s.Update(Entry{TagID: 1, Value: Numeric(42.5), Raw: 425, Timestamp: readAt, Status: modbus.StatusOK})

	failedAt := readAt.Add(5 * time.Second)
	s.Fail(1, modbus.StatusTimeout, failedAt)

	e, ok := s.Get(1)
	require.True(t, ok)
	f, isNum := e.Value.Float()
	require.True(t, isNum)
	assert.Equal(t, 42.5, f)
	assert.Equal(t, modbus.StatusTimeout, e.Status)
	assert.Equal(t, failedAt, e.Timestamp)
}

func TestStoreFailWithoutPriorValue(t *testing.T) {
	s := NewStore()
	s.Fail(7, modbus.StatusUnreachable, time.Now())

	e, ok := s.Get(7)
	require.True(t, ok)
	_, isNum := e.Value.Float()
	assert.False(t, isNum)
	assert.Equal(t, "--", e.Value.String())
	assert.Equal(t, modbus.StatusUnreachable, e.Status)
}

func TestStoreListAndCollect(t *testing.T) {
	s := NewStore()
	for _, id := range []int64{3, 1, 2} {
		s.Update(Entry{TagID: id, Value: Numeric(float64(id)), Status: modbus.StatusOK})
	}

	all := s.List()
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].TagID)
	assert.Equal(t, int64(3), all[2].TagID)

	some := s.Collect([]int64{3, 99, 1})
	require.Len(t, some, 2)
	assert.Equal(t, int64(1), some[0].TagID)
	assert.Equal(t, int64(3), some[1].TagID)
}

func TestStorePrune(t *testing.T) {
	s := NewStore()
	s.Update(Entry{TagID: 1, Value: Numeric(1), Status: modbus.StatusOK})
	s.Update(Entry{TagID: 2, Value: Numeric(2), Status: modbus.StatusOK})

	s.Prune(map[int64]struct{}{2: {}})

	assert.Equal(t, 1, s.Len())
	_, ok := s.Get(1)
	assert.False(t, ok)
	_, ok = s.Get(2)
	assert.True(t, ok)
}

func TestValueMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"finite number", Numeric(12.5), "12.5"},
		{"integer-valued", Numeric(3), "3"},
		{"text", Text("--"), `"--"`},
		{"nan as string", Numeric(math.NaN()), `"NaN"`},
		{"positive infinity as string", Numeric(math.Inf(1)), `"+Inf"`},
		{"negative infinity as string", Numeric(math.Inf(-1)), `"-Inf"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestEntryMarshalJSON(t *testing.T) {
	e := Entry{TagID: 5, Value: Numeric(1.5), Raw: 15, Timestamp: time.Now(), Status: modbus.StatusOK}
	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5,"value":1.5,"raw":15,"status":"ok"}`, string(b))
}
