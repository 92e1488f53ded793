package couchdb

import (
	"context"
	"fmt"
	"strings"

	kivik "github.com/go-kivik/kivik/v4"
)

// CreateDesignDoc installs or updates a design document holding a
// diverting map function. An operator runs this once per view to wire the
// query-server binary in as the view's language runtime.
func (d *DB) CreateDesignDoc(ctx context.Context, doc DesignDoc) error {
	doc.ID = normalizeDesignID(doc.ID)
	if doc.Language == "" {
		doc.Language = "supercouch"
	}

	if row := d.db.Get(ctx, doc.ID); row.Err() == nil {
		var existing map[string]interface{}
		if err := row.ScanDoc(&existing); err == nil {
			if rev, ok := existing["_rev"].(string); ok {
				doc.Rev = rev
			}
		}
	}

	views := make(map[string]interface{}, len(doc.Views))
	for name, view := range doc.Views {
		views[name] = map[string]string{"map": view.Map}
	}

	body := map[string]interface{}{
		"_id":      doc.ID,
		"language": doc.Language,
		"views":    views,
	}
	if doc.Rev != "" {
		body["_rev"] = doc.Rev
	}

	if _, err := d.db.Put(ctx, doc.ID, body); err != nil {
		if status := kivik.HTTPStatus(err); status != 0 {
			return &Error{StatusCode: status, ErrorType: "create_design_doc_failed", Reason: err.Error()}
		}
		return fmt.Errorf("couchdb: create design document: %w", err)
	}
	return nil
}

// GetDesignDoc retrieves a design document by name (with or without the
// "_design/" prefix).
func (d *DB) GetDesignDoc(ctx context.Context, name string) (*DesignDoc, error) {
	name = normalizeDesignID(name)

	row := d.db.Get(ctx, name)
	if row.Err() != nil {
		status := kivik.HTTPStatus(row.Err())
		if status == 404 {
			return nil, &Error{StatusCode: 404, ErrorType: "not_found", Reason: fmt.Sprintf("design document %s not found", name)}
		}
		return nil, &Error{StatusCode: status, ErrorType: "get_design_doc_failed", Reason: row.Err().Error()}
	}

	var raw map[string]interface{}
	if err := row.ScanDoc(&raw); err != nil {
		return nil, fmt.Errorf("couchdb: scan design document: %w", err)
	}

	doc := &DesignDoc{ID: name, Views: make(map[string]View), Language: "supercouch"}
	if rev, ok := raw["_rev"].(string); ok {
		doc.Rev = rev
	}
	if lang, ok := raw["language"].(string); ok {
		doc.Language = lang
	}
	if viewsRaw, ok := raw["views"].(map[string]interface{}); ok {
		for name, v := range viewsRaw {
			viewMap, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			view := View{}
			if m, ok := viewMap["map"].(string); ok {
				view.Map = m
			}
			doc.Views[name] = view
		}
	}
	return doc, nil
}

// DeleteDesignDoc removes a design document, looking up its current
// revision first since CouchDB requires one for deletion.
func (d *DB) DeleteDesignDoc(ctx context.Context, name string) error {
	name = normalizeDesignID(name)

	row := d.db.Get(ctx, name)
	if row.Err() != nil {
		if kivik.HTTPStatus(row.Err()) == 404 {
			return nil
		}
		return fmt.Errorf("couchdb: lookup design document for delete: %w", row.Err())
	}
	var existing map[string]interface{}
	if err := row.ScanDoc(&existing); err != nil {
		return fmt.Errorf("couchdb: scan design document for delete: %w", err)
	}
	rev, _ := existing["_rev"].(string)

	if _, err := d.db.Delete(ctx, name, rev); err != nil {
		if status := kivik.HTTPStatus(err); status != 0 {
			return &Error{StatusCode: status, ErrorType: "delete_design_doc_failed", Reason: err.Error()}
		}
		return fmt.Errorf("couchdb: delete design document: %w", err)
	}
	return nil
}

// ListDesignDocs returns the names (with "_design/" prefix) of every
// design document in the database.
func (d *DB) ListDesignDocs(ctx context.Context) ([]string, error) {
	rows := d.db.AllDocs(ctx, kivik.Params(map[string]interface{}{
		"startkey":     "_design/",
		"endkey":       "_design0",
		"include_docs": false,
	}))
	defer rows.Close()

	var names []string
	for rows.Next() {
		id, err := rows.ID()
		if err != nil {
			continue
		}
		names = append(names, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("couchdb: list design documents: %w", err)
	}
	return names, nil
}

// normalizeDesignID ensures a design document identifier carries the
// "_design/" prefix CouchDB requires, so callers can pass either form.
func normalizeDesignID(name string) string {
	if strings.HasPrefix(name, "_design/") {
		return name
	}
	return "_design/" + name
}
