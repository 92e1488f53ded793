package sset

import (
	"context"
	"net/url"
	"strings"
)

// Service is the backend-agnostic sorted-set capability: add-with-score
// (via Process), and paged retrieval by rank or by score. Implementations
// live in sibling packages (sset/redis today); future backends plug in
// behind this same interface.
type Service interface {
	// Process writes a batch of operations. Operations sharing a database
	// commit atomically together; groups for different databases may
	// commit independently. The call resolves only once every group has
	// committed, or returns an error; failed group commits are reported as a
	// *BatchError describing what failed.
	Process(ctx context.Context, ops []Operation) error

	// RangeByIndex returns a page of a sorted set addressed by inclusive
	// rank bounds (negative counts from the end).
	RangeByIndex(ctx context.Context, database string, idPath []string, q RangeQuery) (RangeResponse, error)

	// RangeByScore returns a page of a sorted set addressed by inclusive
	// score bounds.
	RangeByScore(ctx context.Context, database string, idPath []string, q RangeQuery) (RangeResponse, error)
}

// KeyOf renders the backend-agnostic shape of a sorted set's storage key:
// a cluster hash-tagged database segment followed by percent-encoded
// id-path segments. Redis-flavored backends use this directly; it is
// exported so other backends and tests can reproduce the same addressing.
//
//	"{SSET:" + database + "}/" + percentEncode(idPath[0]) + ":" + percentEncode(idPath[1]) + ...
func KeyOf(database string, idPath []string) string {
	var b strings.Builder
	b.WriteString("{SSET:")
	b.WriteString(database)
	b.WriteString("}/")
	for i, seg := range idPath {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(url.QueryEscape(seg))
	}
	return b.String()
}

// GroupByDatabase partitions a batch of operations into per-database
// groups, preserving emit-order within each group, so each group can be
// submitted as one per-database transaction.
func GroupByDatabase(ops []Operation) map[string][]Operation {
	groups := make(map[string][]Operation)
	for _, op := range ops {
		groups[op.Database] = append(groups[op.Database], op)
	}
	return groups
}
