package incremental

import (
	"fmt"
	"strings"
	"time"
)

// compareWatermarks orders two watermark values. It returns a negative value
// when a < b, zero when equal and a positive value when a > b.
//
// Numeric values compare numerically regardless of concrete type (JSON
// round-trips turn ints into float64). time.Time values compare as instants.
// Everything else compares as strings, which orders ISO-8601 timestamps
// correctly. Mixing a numeric with a non-numeric value is an error.
func compareWatermarks(a, b interface{}) (int, error) {
	aNum, aIsNum := asFloat(a)
	bNum, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		switch {
		case aNum < bNum:
			return -1, nil
		case aNum > bNum:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if aIsNum != bIsNum {
		return 0, fmt.Errorf("incomparable watermark values %T and %T", a, b)
	}

	if aTime, ok := a.(time.Time); ok {
		if bTime, ok := b.(time.Time); ok {
			switch {
			case aTime.Before(bTime):
				return -1, nil
			case aTime.After(bTime):
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), nil
}

// asFloat widens any numeric value to float64.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
