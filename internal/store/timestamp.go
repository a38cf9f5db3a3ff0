package store

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Timestamp is the store-native creation time representation.
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int64 `json:"nanoseconds"`
}

// TimestampOf converts t to a store timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanoseconds: int64(t.Nanosecond())}
}

// Time converts the timestamp back to UTC time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, ts.Nanoseconds).UTC()
}

// Millis returns epoch milliseconds.
func (ts Timestamp) Millis() int64 {
	return ts.Seconds*1000 + ts.Nanoseconds/int64(time.Millisecond)
}

// SortKey normalises a createdAt value to epoch milliseconds. Numeric values
// are taken as epoch millis, objects carrying a "seconds" field as store
// timestamps. Missing or unrecognised values map to math.MinInt64 so undated
// records sort last in descending order.
func SortKey(v any) int64 {
	switch value := v.(type) {
	case nil:
		return math.MinInt64
	case Timestamp:
		return value.Millis()
	case *Timestamp:
		if value == nil {
			return math.MinInt64
		}
		return value.Millis()
	case time.Time:
		if value.IsZero() {
			return math.MinInt64
		}
		return value.UnixMilli()
	case map[string]any:
		return mapSortKey(value)
	case Document:
		return mapSortKey(value)
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return parsed.UnixMilli()
		}
		if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
			return millis
		}
		return math.MinInt64
	default:
		if n, ok := number(v); ok {
			return int64(n)
		}
		return math.MinInt64
	}
}

func mapSortKey(m map[string]any) int64 {
	secondsRaw, ok := m["seconds"]
	if !ok {
		return math.MinInt64
	}
	seconds, ok := number(secondsRaw)
	if !ok {
		return math.MinInt64
	}
	nanos, _ := number(m["nanoseconds"])
	return int64(seconds)*1000 + int64(nanos)/int64(time.Millisecond)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return float64(i), true
		}
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
