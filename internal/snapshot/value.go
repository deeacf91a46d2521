package snapshot

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is the tagged variant behind the dashboard's loosely-typed "numeric
// or string" wire field. Internally a value is always one of the two kinds;
// only JSON serialization collapses it to the wire shape.
type Value struct {
	text    string
	num     float64
	numeric bool
}

func Numeric(f float64) Value {
	return Value{num: f, numeric: true}
}

func Text(s string) Value {
	return Value{text: s}
}

// Float returns the numeric payload, reporting false for text values.
func (v Value) Float() (float64, bool) {
	return v.num, v.numeric
}

func (v Value) String() string {
	if !v.numeric {
		return v.text
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// MarshalJSON emits numbers for finite numeric values. Non-finite values
// cannot be represented in JSON and pass through as their string forms, as
// the dashboard expects.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.numeric {
		return json.Marshal(v.text)
	}
	if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return json.Marshal(strconv.FormatFloat(v.num, 'g', -1, 64))
	}
	return json.Marshal(v.num)
}
