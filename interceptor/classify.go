package interceptor

import "reflect"

type queryKind int

const (
	kindPassThrough queryKind = iota
	kindKeysQuery
	kindRangeQuery
)

// classify sorts a raw params map, the shape a native view() call already
// takes, into one of three handling paths.
func classify(params map[string]interface{}) queryKind {
	if keys, ok := params["keys"].([]interface{}); ok && len(keys) > 0 {
		if first, ok := keys[0].([]interface{}); ok && len(first) > 0 {
			if marker, ok := first[0].(string); ok && marker == ssetMarker {
				return kindKeysQuery
			}
		}
	}

	start := firstKeyParam(params, "start_key", "startkey")
	end := firstKeyParam(params, "end_key", "endkey")
	if start != nil && end != nil && isRangeQuery(start, end) {
		return kindRangeQuery
	}
	return kindPassThrough
}

func isRangeQuery(start, end []interface{}) bool {
	if len(start) != len(end) || len(start) < 2 {
		return false
	}
	startMarker, ok1 := start[0].(string)
	endMarker, ok2 := end[0].(string)
	if !ok1 || !ok2 || startMarker != ssetMarker || endMarker != ssetMarker {
		return false
	}
	if !isNumber(start[len(start)-1]) || !isNumber(end[len(end)-1]) {
		return false
	}
	for i := 0; i < len(start)-1; i++ {
		if !reflect.DeepEqual(start[i], end[i]) {
			return false
		}
	}
	return true
}

func firstKeyParam(params map[string]interface{}, names ...string) []interface{} {
	for _, n := range names {
		if v, ok := params[n]; ok {
			if arr, ok := v.([]interface{}); ok {
				return arr
			}
		}
	}
	return nil
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, float32, int, int64:
		return true
	default:
		return false
	}
}
