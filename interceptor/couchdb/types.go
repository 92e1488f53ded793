// Package couchdb implements interceptor.NativeViewer over
// github.com/go-kivik/kivik/v4, the real database client the interceptor
// wraps. It also carries the design-document bootstrap operations an
// operator needs to install a diverting map function in the first place.
package couchdb

import "fmt"

// DesignDoc is a view design document: named views holding diverting map
// functions, no reduce.
type DesignDoc struct {
	ID       string
	Rev      string
	Language string
	Views    map[string]View
}

// View is one view definition within a DesignDoc.
type View struct {
	Map string
}

// Error reports a CouchDB-classified failure: a typed, introspectable
// error rather than a bare string.
type Error struct {
	StatusCode int
	ErrorType  string
	Reason     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("couchdb: %s (status %d): %s", e.ErrorType, e.StatusCode, e.Reason)
}

func (e *Error) IsNotFound() bool { return e.StatusCode == 404 }
func (e *Error) IsConflict() bool { return e.StatusCode == 409 }
