package sensor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field readers fall back to def when a key is absent or holds a value of the wrong shape.

func boolField(payload map[string]interface{}, key string, def bool) bool {
	switch v := payload[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func stringField(payload map[string]interface{}, key, def string) string {
	switch v := payload[key].(type) {
	case nil:
		return def
	case string:
		if v == "" {
			return def
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

func floatField(payload map[string]interface{}, key string, def float64) float64 {
	if f, ok := toFloat64(payload[key]); ok {
		return f
	}
	return def
}

// toFloat64 accepts finite numbers only.
func toFloat64(v interface{}) (float64, bool) {
	f, ok := rawFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func rawFloat64(v interface{}) (float64, bool) {
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
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
