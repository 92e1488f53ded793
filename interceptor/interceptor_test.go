package interceptor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supercouch/sset"
)

type fakeService struct {
	rangeByIndex func(database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error)
	rangeByScore func(database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error)
	calls        []string
}

func (f *fakeService) Process(ctx context.Context, ops []sset.Operation) error { return nil }

func (f *fakeService) RangeByIndex(ctx context.Context, database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error) {
	f.calls = append(f.calls, "index:"+database)
	return f.rangeByIndex(database, idPath, q)
}

func (f *fakeService) RangeByScore(ctx context.Context, database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error) {
	f.calls = append(f.calls, "score:"+database)
	return f.rangeByScore(database, idPath, q)
}

type fakeNative struct {
	called bool
	resp   ViewResponse
	err    error
}

func (f *fakeNative) View(ctx context.Context, ddoc, view string, params map[string]interface{}) (ViewResponse, error) {
	f.called = true
	return f.resp, f.err
}

func TestClassify_KeysQuery(t *testing.T) {
	params := map[string]interface{}{
		"keys": []interface{}{
			[]interface{}{"$SSET", "Users", "u7"},
		},
	}
	assert.Equal(t, kindKeysQuery, classify(params))
}

func TestClassify_RangeQuery(t *testing.T) {
	params := map[string]interface{}{
		"start_key": []interface{}{"$SSET", "UsersIndex", "ByDate", 100.0},
		"end_key":   []interface{}{"$SSET", "UsersIndex", "ByDate", 200.0},
	}
	assert.Equal(t, kindRangeQuery, classify(params))
}

func TestClassify_PassThroughWhenMarkerAbsent(t *testing.T) {
	params := map[string]interface{}{
		"start_key": []interface{}{"NOTSSET", "x", 1.0},
		"end_key":   []interface{}{"NOTSSET", "x", 9.0},
	}
	assert.Equal(t, kindPassThrough, classify(params))
}

func TestClassify_RejectsDifferingPrefixes(t *testing.T) {
	params := map[string]interface{}{
		"start_key": []interface{}{"$SSET", "UsersIndex", "ByDate", 100.0},
		"end_key":   []interface{}{"$SSET", "OtherIndex", "ByDate", 200.0},
	}
	assert.Equal(t, kindPassThrough, classify(params))
}

// S3 — interceptor keys query.
func TestView_KeysQuery_ParallelInInputOrder(t *testing.T) {
	svc := &fakeService{
		rangeByIndex: func(database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error) {
			assert.Equal(t, "Users", database)
			assert.Equal(t, float64(-1), q.Min)
			assert.Equal(t, float64(-1), q.Max)
			return sset.RangeResponse{Rows: []sset.Row{{Value: []byte(`{"n":"x"}`), Score: 1, HasScore: true}}}, nil
		},
	}
	ic := New(svc, &fakeNative{})

	resp, err := ic.View(context.Background(), "_design/x", "v", map[string]interface{}{
		"keys": []interface{}{
			[]interface{}{"$SSET", "Users", "u7"},
			[]interface{}{"$SSET", "Users", "u8"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "#SSET", resp.Rows[0].ID)
	assert.Equal(t, "$SSET,Users,u7", resp.Rows[0].Key)
	assert.Equal(t, "$SSET,Users,u8", resp.Rows[1].Key)
	assert.Equal(t, 2, resp.TotalRows)
}

func TestView_KeysQuery_MissingRowDegradesGracefully(t *testing.T) {
	svc := &fakeService{
		rangeByIndex: func(database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error) {
			return sset.RangeResponse{Rows: nil}, nil
		},
	}
	ic := New(svc, &fakeNative{})

	resp, err := ic.View(context.Background(), "_design/x", "v", map[string]interface{}{
		"keys": []interface{}{[]interface{}{"$SSET", "Users", "ghost"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Nil(t, resp.Rows[0].Value)
	assert.Nil(t, resp.Rows[0].Score)
}

func TestView_KeysQuery_WrapsBackendError(t *testing.T) {
	svc := &fakeService{
		rangeByIndex: func(database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error) {
			return sset.RangeResponse{}, assertErr{}
		},
	}
	ic := New(svc, &fakeNative{})

	_, err := ic.View(context.Background(), "_design/x", "v", map[string]interface{}{
		"keys": []interface{}{[]interface{}{"$SSET", "Users", "u7"}},
	})
	require.Error(t, err)
	var verr *ViewError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "supercouch_error", verr.Name)
	assert.Equal(t, "keys_query_failed", verr.Reason)
}

// S4 — interceptor range query.
func TestView_RangeQuery_MapsParamsAndPaging(t *testing.T) {
	svc := &fakeService{
		rangeByScore: func(database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error) {
			assert.Equal(t, "UsersIndex", database)
			assert.Equal(t, []string{"ByDate"}, idPath)
			assert.Equal(t, 100.0, q.Min)
			assert.Equal(t, 200.0, q.Max)
			assert.Equal(t, 0, q.Offset)
			assert.Equal(t, 10, q.Count)
			assert.Equal(t, sset.Ascending, q.Order)
			return sset.RangeResponse{
				Paging: sset.Paging{Offset: 0, Total: 2},
				Rows:   []sset.Row{{Value: []byte(`"a"`)}},
			}, nil
		},
	}
	ic := New(svc, &fakeNative{})

	resp, err := ic.View(context.Background(), "_design/x", "v", map[string]interface{}{
		"start_key":  []interface{}{"$SSET", "UsersIndex", "ByDate", 100.0},
		"end_key":    []interface{}{"$SSET", "UsersIndex", "ByDate", 200.0},
		"descending": false,
		"skip":       0.0,
		"limit":      10.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Offset)
	assert.Equal(t, 2, resp.TotalRows)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "$SSET,UsersIndex,ByDate", resp.Rows[0].Key)
}

// S5 — pass-through.
func TestView_PassThrough_DelegatesVerbatim(t *testing.T) {
	native := &fakeNative{resp: ViewResponse{Offset: 3, TotalRows: 9}}
	ic := New(&fakeService{}, native)

	resp, err := ic.View(context.Background(), "_design/x", "v", map[string]interface{}{
		"start_key": []interface{}{"NOTSSET", "x", 1.0},
		"end_key":   []interface{}{"NOTSSET", "x", 9.0},
	})
	require.NoError(t, err)
	assert.True(t, native.called)
	assert.Equal(t, 3, resp.Offset)
	assert.Equal(t, 9, resp.TotalRows)
}

type assertErr struct{}

func (assertErr) Error() string { return "backend unavailable" }
