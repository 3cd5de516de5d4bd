// Package normalize turns raw graph record values into plain scalars.
//
// Graph drivers disagree on how they hand back integers. The Go Neo4j driver
// returns int64, JSON decoders return float64, and exports produced through
// the JavaScript driver carry 64-bit integers as {"low": n, "high": m} pairs.
// Everything is folded into a Value at the record boundary so nothing past
// this package has to care.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is the sum of the shapes a numeric record field can take.
// The concrete types are Absent, Int, Float and WrappedInt.
type Value interface {
	// Scalar returns the plain spreadsheet-ready value: int64, float64, or ""
	// for Absent.
	Scalar() any
	isValue()
}

// Absent is a missing or null field.
type Absent struct{}

// Int is a plain integer.
type Int int64

// Float is a non-integral number.
type Float float64

// WrappedInt is a 64-bit integer split into signed 32-bit halves.
type WrappedInt struct {
	Low  int32
	High int32
}

func (Absent) Scalar() any { return "" }

func (v Int) Scalar() any { return int64(v) }

func (v Float) Scalar() any { return float64(v) }

func (w WrappedInt) Scalar() any { return w.Int64() }

// Int64 recombines the halves. For values in the normal range High is zero
// and the result equals Low.
func (w WrappedInt) Int64() int64 {
	return int64(w.High)<<32 | int64(uint32(w.Low))
}

func (Absent) isValue()     {}
func (Int) isValue()        {}
func (Float) isValue()      {}
func (WrappedInt) isValue() {}

// Parse classifies v. Anything that is not a number, a wrapped pair or nil
// is reported as Absent with ok=false so callers can pass it through as-is.
func Parse(v any) (val Value, ok bool) {
	switch n := v.(type) {
	case nil:
		return Absent{}, true
	case Value:
		return n, true
	case int:
		return Int(n), true
	case int8:
		return Int(n), true
	case int16:
		return Int(n), true
	case int32:
		return Int(n), true
	case int64:
		return Int(n), true
	case uint:
		return Int(n), true
	case uint8:
		return Int(n), true
	case uint16:
		return Int(n), true
	case uint32:
		return Int(n), true
	case uint64:
		if n > math.MaxInt64 {
			return Float(n), true
		}
		return Int(n), true
	case float32:
		return fromFloat(float64(n)), true
	case float64:
		return fromFloat(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return Int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return fromFloat(f), true
		}
		return Absent{}, false
	case map[string]any:
		return parseWrapped(n)
	}
	return Absent{}, false
}

func fromFloat(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return Int(int64(f))
	}
	return Float(f)
}

func parseWrapped(m map[string]any) (Value, bool) {
	lowRaw, hasLow := m["low"]
	highRaw, hasHigh := m["high"]
	if !hasLow || !hasHigh {
		return Absent{}, false
	}
	low, ok := Parse(lowRaw)
	if !ok {
		return Absent{}, false
	}
	high, ok := Parse(highRaw)
	if !ok {
		return Absent{}, false
	}
	return WrappedInt{Low: int32(Int64(low)), High: int32(Int64(high))}, true
}

// Scalar normalizes v to a plain scalar. Numbers and wrapped pairs become
// int64/float64, nil becomes "", and any other value is returned unchanged.
func Scalar(v any) any {
	if val, ok := Parse(v); ok {
		return val.Scalar()
	}
	return v
}

// Int64 returns v as an integer, treating absent and non-numeric values as 0.
func Int64(v any) int64 {
	val, ok := Parse(v)
	if !ok {
		return 0
	}
	switch n := val.(type) {
	case Int:
		return int64(n)
	case Float:
		return int64(n)
	case WrappedInt:
		return n.Int64()
	}
	return 0
}

// String renders v as a grouping key. Absent values render as "".
func String(v any) string {
	switch s := Scalar(v).(type) {
	case string:
		return s
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

// List normalizes a child list. nil yields nil, a single scalar yields a
// one-element list, and every element is passed through Scalar.
func List(v any) []any {
	switch l := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(l))
		for i, e := range l {
			out[i] = Scalar(e)
		}
		return out
	case []string:
		out := make([]any, len(l))
		for i, e := range l {
			out[i] = e
		}
		return out
	}
	return []any{Scalar(v)}
}

// Strings is List rendered through String, for DTO fields typed []string.
func Strings(v any) []string {
	l := List(v)
	if l == nil {
		return nil
	}
	out := make([]string, len(l))
	for i, e := range l {
		out[i] = String(e)
	}
	return out
}
