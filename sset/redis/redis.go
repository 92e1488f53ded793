// Package redis realizes sset.Service over github.com/redis/go-redis/v9,
// against either a single node or a Redis Cluster.
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"supercouch/sset"
)

// cmdable is the subset of redis.Cmdable plus transaction support that both
// *redis.Client and *redis.ClusterClient satisfy. Code in this package is
// written once against this interface so a single node and a cluster behave
// identically from the Service's point of view.
type cmdable interface {
	redis.Cmdable
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// Service implements sset.Service over a Redis (or Redis Cluster) backend.
type Service struct {
	cmd cmdable
}

var _ sset.Service = (*Service)(nil)

// New connects to the backend named by rawURL. A "redis-cluster://" scheme
// is parsed as described in cluster.go; any other URL is handed to
// redis.ParseURL and opened as a single-node client.
func New(rawURL string) (*Service, error) {
	if IsClusterURL(rawURL) {
		nodes, addrMap, err := ParseClusterURL(rawURL)
		if err != nil {
			return nil, err
		}
		opts := &redis.ClusterOptions{Addrs: nodes}
		if len(addrMap) > 0 {
			opts.Dialer = remapDialer(addrMap)
		}
		return &Service{cmd: redis.NewClusterClient(opts)}, nil
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("sset/redis: parse url: %w", err)
	}
	return &Service{cmd: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an already-constructed client (a *redis.Client or
// *redis.ClusterClient), chiefly for tests that dial a miniredis instance.
func NewFromClient(c cmdable) *Service {
	return &Service{cmd: c}
}

// Process writes ops, grouped and committed as one atomic transaction per
// database. Groups commit concurrently; a failure in one does not abort the
// others, but the call as a whole returns a *sset.BatchError when any group
// fails.
func (s *Service) Process(ctx context.Context, ops []sset.Operation) error {
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}

	groups := sset.GroupByDatabase(ops)

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures = make(map[string]error)
	)
	for database, groupOps := range groups {
		database, groupOps := database, groupOps
		g.Go(func() error {
			if err := s.commitGroup(ctx, groupOps); err != nil {
				mu.Lock()
				failures[database] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		return &sset.BatchError{Failures: failures}
	}
	return nil
}

func (s *Service) commitGroup(ctx context.Context, ops []sset.Operation) error {
	_, err := s.cmd.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			key := sset.KeyOf(op.Database, op.IDPath)
			pipe.ZAddArgs(ctx, key, redis.ZAddArgs{
				GT:      true,
				Members: []redis.Z{{Score: op.Score, Member: string(op.Value)}},
			})
			if op.Keep == sset.LastValue {
				pipe.ZRemRangeByRank(ctx, key, 0, -2)
			}
		}
		return nil
	})
	return err
}

// RangeByIndex returns a page of the set addressed by (database, idPath),
// selected by inclusive rank bounds.
func (s *Service) RangeByIndex(ctx context.Context, database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error) {
	key := sset.KeyOf(database, idPath)

	var (
		members []redis.Z
		total   int64
		g       errgroup.Group
	)
	g.Go(func() error {
		var err error
		if q.Order == sset.Descending {
			members, err = s.cmd.ZRevRangeWithScores(ctx, key, int64(q.Min), int64(q.Max)).Result()
		} else {
			members, err = s.cmd.ZRangeWithScores(ctx, key, int64(q.Min), int64(q.Max)).Result()
		}
		return err
	})
	if q.IncludeTotal && q.HasPaging {
		g.Go(func() error {
			var err error
			total, err = s.cmd.ZCard(ctx, key).Result()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return sset.RangeResponse{}, fmt.Errorf("sset/redis: range by index: %w", err)
	}

	if q.HasPaging {
		members = paginate(members, q.Offset, q.Count)
	}

	resp := sset.RangeResponse{Paging: sset.Paging{Count: sset.NoPaging, Total: sset.NoPaging}}
	if q.HasPaging {
		resp.Paging.Offset = q.Offset
		resp.Paging.Count = q.Count
	}
	if q.IncludeTotal {
		if q.HasPaging {
			resp.Paging.Total = int(total)
		} else {
			resp.Paging.Total = len(members)
		}
	}
	resp.Rows = toRows(members, q.IncludeScores)
	return resp, nil
}

// RangeByScore returns a page of the set addressed by (database, idPath),
// selected by inclusive score bounds. For Order == Descending the reverse
// query form is used; go-redis itself swaps Start/Stop on the wire for a
// reversed score range, so the bounds are always given as min, max here.
func (s *Service) RangeByScore(ctx context.Context, database string, idPath []string, q sset.RangeQuery) (sset.RangeResponse, error) {
	key := sset.KeyOf(database, idPath)

	args := redis.ZRangeArgs{
		Key:     key,
		ByScore: true,
		Start:   fmt.Sprintf("%v", q.Min),
		Stop:    fmt.Sprintf("%v", q.Max),
		Rev:     q.Order == sset.Descending,
	}
	if q.HasPaging {
		args.Offset = int64(q.Offset)
		args.Count = int64(q.Count)
	}

	var (
		members []redis.Z
		total   int64
		g       errgroup.Group
	)
	g.Go(func() error {
		var err error
		members, err = s.cmd.ZRangeArgsWithScores(ctx, args).Result()
		return err
	})
	if q.IncludeTotal {
		g.Go(func() error {
			var err error
			total, err = s.cmd.ZCount(ctx, key, fmt.Sprintf("%v", q.Min), fmt.Sprintf("%v", q.Max)).Result()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return sset.RangeResponse{}, fmt.Errorf("sset/redis: range by score: %w", err)
	}

	resp := sset.RangeResponse{Paging: sset.Paging{Count: sset.NoPaging, Total: sset.NoPaging}}
	if q.HasPaging {
		resp.Paging.Offset = q.Offset
		resp.Paging.Count = q.Count
	}
	if q.IncludeTotal {
		resp.Paging.Total = int(total)
	}
	resp.Rows = toRows(members, q.IncludeScores)
	return resp, nil
}

func paginate(members []redis.Z, offset, count int) []redis.Z {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(members) {
		return nil
	}
	end := len(members)
	if count >= 0 && offset+count < end {
		end = offset + count
	}
	return members[offset:end]
}

func toRows(members []redis.Z, includeScores bool) []sset.Row {
	rows := make([]sset.Row, 0, len(members))
	for _, m := range members {
		row := sset.Row{Value: []byte(m.Member.(string))}
		if includeScores {
			row.Score = m.Score
			row.HasScore = true
		}
		rows = append(rows, row)
	}
	return rows
}
