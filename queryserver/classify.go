package queryserver

import (
	"encoding/json"
	"fmt"

	"supercouch/sset"
)

// ssetMarker is the literal first key element that diverts an emission
// into the sorted-set service instead of the normal view index.
const ssetMarker = "$SSET"

// classify inspects one captured emission and reports whether it names a
// diverted sorted-set write. When isSSet is true but err is non-nil, the
// emission carried the marker but had an invalid shape, which fails the
// whole document's batch rather than being silently dropped.
func classify(em emission) (op sset.Operation, isSSet bool, err error) {
	key, ok := em.Key.([]interface{})
	if !ok || len(key) == 0 {
		return sset.Operation{}, false, nil
	}
	marker, ok := key[0].(string)
	if !ok || marker != ssetMarker {
		return sset.Operation{}, false, nil
	}

	if len(key) < 3 {
		return sset.Operation{}, true, fmt.Errorf("$SSET key needs a database and at least one id segment, got %d elements", len(key))
	}
	database, ok := key[1].(string)
	if !ok {
		return sset.Operation{}, true, fmt.Errorf("$SSET key database must be a string")
	}
	idPath := make([]string, 0, len(key)-2)
	for _, seg := range key[2:] {
		s, ok := seg.(string)
		if !ok {
			return sset.Operation{}, true, fmt.Errorf("$SSET key id-path segments must be strings")
		}
		idPath = append(idPath, s)
	}

	valMap, ok := em.Value.(map[string]interface{})
	if !ok {
		return sset.Operation{}, true, fmt.Errorf("$SSET value must be an object")
	}
	var score float64
	switch n := valMap["score"].(type) {
	case float64:
		score = n
	case int64:
		score = float64(n)
	default:
		return sset.Operation{}, true, fmt.Errorf("$SSET value.score must be a number")
	}
	keep := sset.AllValues
	if raw, present := valMap["keep"]; present {
		keepStr, ok := raw.(string)
		if !ok {
			return sset.Operation{}, true, fmt.Errorf("$SSET value.keep must be a string")
		}
		keep = sset.Keep(keepStr)
	}

	encodedValue, err := json.Marshal(valMap["value"])
	if err != nil {
		return sset.Operation{}, true, fmt.Errorf("$SSET value.value must be JSON-encodable: %w", err)
	}

	op = sset.Operation{Database: database, IDPath: idPath, Score: score, Value: encodedValue, Keep: keep}
	if err := op.Validate(); err != nil {
		return sset.Operation{}, true, err
	}
	return op, true, nil
}
