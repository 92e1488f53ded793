// Package interceptor wraps a native database view handle so that requests
// targeting a $SSET-backed index are rewritten into sorted-set range
// lookups, while every other request passes through unchanged.
package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
)

// ssetMarker is the literal first key element identifying a diverted
// query, mirroring the emission-side marker the query-server engine reacts
// to.
const ssetMarker = "$SSET"

// ViewResponse is the shape produced for both rewritten and pass-through
// queries — close enough to a native CouchDB view response that callers
// don't need to special-case the sorted-set path.
type ViewResponse struct {
	Offset    int   `json:"offset"`
	TotalRows int   `json:"total_rows"`
	Rows      []Row `json:"rows"`
}

// Row is one row of a ViewResponse. Value and Score are omitted on the
// wire when a keys-query lookup found nothing for that key.
type Row struct {
	ID    string          `json:"id"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
	Score *float64        `json:"score,omitempty"`
}

// NativeViewer is the external collaborator a pass-through query is
// delegated to — the real database client. interceptor/couchdb supplies a
// concrete implementation; tests supply doubles.
type NativeViewer interface {
	View(ctx context.Context, ddoc, view string, params map[string]interface{}) (ViewResponse, error)
}

// ViewError wraps a sorted-set service failure surfaced from a rewritten
// query as a "supercouch_error" the caller can classify without string
// matching.
type ViewError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Name, e.Reason, e.Err)
}

func (e *ViewError) Unwrap() error { return e.Err }

func keysQueryFailed(err error) error {
	return &ViewError{Name: "supercouch_error", Reason: "keys_query_failed", Err: err}
}

func rangeQueryFailed(err error) error {
	return &ViewError{Name: "supercouch_error", Reason: "range_query_failed", Err: err}
}
