package redis

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// clusterURLPrefix is the scheme this package recognizes as a cluster URL;
// any other URL is treated as a single-node URL and handed to
// redis.ParseURL unchanged.
const clusterURLPrefix = "redis-cluster://"

// IsClusterURL reports whether raw names a redis-cluster:// URL.
func IsClusterURL(raw string) bool {
	return strings.HasPrefix(raw, clusterURLPrefix)
}

// ParseClusterURL parses a "redis-cluster://node1,node2[,…][+addr=internal=external,…]"
// URL into its root node address list and an optional internal→external
// address remap, used when a cluster's internally-announced addresses
// (from CLUSTER SLOTS/SHARDS) differ from the addresses reachable by this
// process — a common situation when Redis Cluster runs behind NAT or a
// container network.
//
// The remap segment, if present, is separated from the node list by a
// literal "+" and begins with "addr=" followed by comma-separated
// "internalHost:port=externalHost:port" pairs.
func ParseClusterURL(raw string) (nodes []string, addrMap map[string]string, err error) {
	rest := strings.TrimPrefix(raw, clusterURLPrefix)

	nodePart := rest
	if idx := strings.Index(rest, "+"); idx >= 0 {
		nodePart = rest[:idx]
		remapPart := rest[idx+1:]
		addrMap, err = parseAddrRemap(remapPart)
		if err != nil {
			return nil, nil, err
		}
	}

	for _, n := range strings.Split(nodePart, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return nil, nil, fmt.Errorf("redis-cluster url %q names no nodes", raw)
	}
	return nodes, addrMap, nil
}

func parseAddrRemap(segment string) (map[string]string, error) {
	const prefix = "addr="
	if !strings.HasPrefix(segment, prefix) {
		return nil, fmt.Errorf("redis-cluster url: expected %q remap segment, got %q", prefix, segment)
	}
	segment = strings.TrimPrefix(segment, prefix)

	remap := make(map[string]string)
	for _, pair := range strings.Split(segment, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("redis-cluster url: malformed addr remap pair %q", pair)
		}
		remap[parts[0]] = parts[1]
	}
	return remap, nil
}

// remapDialer returns a dial function that rewrites addr through remap
// before connecting, falling back to the unmodified address when no
// mapping exists. This mirrors the custom-dialer pattern used for
// zero-trust networking elsewhere in the ambient stack, applied here to
// the narrower problem of internal/external cluster address translation.
func remapDialer(remap map[string]string) func(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if mapped, ok := remap[addr]; ok {
			addr = mapped
		}
		return d.DialContext(ctx, network, addr)
	}
}
