package interceptor

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"supercouch/sset"
)

// Interceptor classifies view() calls and routes sorted-set queries to svc,
// leaving everything else to native.
type Interceptor struct {
	svc    sset.Service
	native NativeViewer
}

// New builds an Interceptor over a sorted-set service and the native
// viewer it wraps.
func New(svc sset.Service, native NativeViewer) *Interceptor {
	return &Interceptor{svc: svc, native: native}
}

// View dispatches a request by classification, rewriting sorted-set
// queries and delegating everything else verbatim to the native viewer.
func (i *Interceptor) View(ctx context.Context, ddoc, view string, params map[string]interface{}) (ViewResponse, error) {
	switch classify(params) {
	case kindKeysQuery:
		return i.viewKeys(ctx, params)
	case kindRangeQuery:
		return i.viewRange(ctx, params)
	default:
		return i.native.View(ctx, ddoc, view, params)
	}
}

// viewKeys answers a keys query by fanning out one rangeByIndex(-1,-1)
// lookup per key in parallel.
func (i *Interceptor) viewKeys(ctx context.Context, params map[string]interface{}) (ViewResponse, error) {
	keysRaw, _ := params["keys"].([]interface{})
	rows := make([]Row, len(keysRaw))

	g, gctx := errgroup.WithContext(ctx)
	for idx, raw := range keysRaw {
		idx, raw := idx, raw
		g.Go(func() error {
			key, ok := raw.([]interface{})
			if !ok {
				return keysQueryFailed(fmt.Errorf("key %d is not an array", idx))
			}
			database, idPath, err := splitSSetKey(key)
			if err != nil {
				return keysQueryFailed(err)
			}

			resp, err := i.svc.RangeByIndex(gctx, database, idPath, sset.RangeQuery{
				Min: -1, Max: -1, IncludeScores: true,
			})
			if err != nil {
				return keysQueryFailed(err)
			}

			row := Row{ID: "#SSET", Key: joinKey(key)}
			if len(resp.Rows) > 0 {
				row.Value = resp.Rows[0].Value
				if resp.Rows[0].HasScore {
					score := resp.Rows[0].Score
					row.Score = &score
				}
			}
			rows[idx] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ViewResponse{}, err
	}
	return ViewResponse{Offset: 0, TotalRows: len(keysRaw), Rows: rows}, nil
}

// viewRange answers a range query by delegating to rangeByScore.
func (i *Interceptor) viewRange(ctx context.Context, params map[string]interface{}) (ViewResponse, error) {
	start := firstKeyParam(params, "start_key", "startkey")
	end := firstKeyParam(params, "end_key", "endkey")

	prefix := start[:len(start)-1]
	database, idPath, err := splitSSetKey(prefix)
	if err != nil {
		return ViewResponse{}, rangeQueryFailed(err)
	}

	min := toFloat(start[len(start)-1])
	max := toFloat(end[len(end)-1])

	order := sset.Ascending
	if descending, _ := params["descending"].(bool); descending {
		order = sset.Descending
	}

	skip, hasSkip := intParam(params, "skip")
	limit, hasLimit := intParam(params, "limit")
	if !hasLimit {
		limit = -1
	}

	q := sset.RangeQuery{
		Min:           min,
		Max:           max,
		HasPaging:     hasSkip || hasLimit,
		Offset:        skip,
		Count:         limit,
		Order:         order,
		IncludeTotal:  boolOption(params, "include_total_rows", true),
		IncludeScores: boolOption(params, "include_scores", true),
	}

	resp, err := i.svc.RangeByScore(ctx, database, idPath, q)
	if err != nil {
		return ViewResponse{}, rangeQueryFailed(err)
	}

	key := joinKey(append([]interface{}{ssetMarker, database}, toInterfaceSlice(idPath)...))
	rows := make([]Row, len(resp.Rows))
	for idx, r := range resp.Rows {
		row := Row{ID: "#SSET", Key: key, Value: r.Value}
		if r.HasScore {
			score := r.Score
			row.Score = &score
		}
		rows[idx] = row
	}

	return ViewResponse{Offset: resp.Paging.Offset, TotalRows: resp.Paging.Total, Rows: rows}, nil
}

func splitSSetKey(key []interface{}) (database string, idPath []string, err error) {
	if len(key) < 3 {
		return "", nil, fmt.Errorf("$SSET key needs a database and at least one id segment")
	}
	database, ok := key[1].(string)
	if !ok {
		return "", nil, fmt.Errorf("$SSET key database must be a string")
	}
	idPath = make([]string, 0, len(key)-2)
	for _, seg := range key[2:] {
		s, ok := seg.(string)
		if !ok {
			return "", nil, fmt.Errorf("$SSET key id-path segments must be strings")
		}
		idPath = append(idPath, s)
	}
	return database, idPath, nil
}

func joinKey(key []interface{}) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, ",")
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func intParam(params map[string]interface{}, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	return int(toFloat(v)), true
}

func boolOption(params map[string]interface{}, key string, def bool) bool {
	v, ok := params[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}
