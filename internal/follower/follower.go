// Package follower provides the modulo-hash sharding rule a multi-host
// deployment would use to decide which host owns a given dataset index,
// plus a Forwarder seam for handing an index off to its owner. Neither
// is wired into the default single-host server; they exist so a future
// multi-host build has a tested place to start from.
package follower

import "context"

// ShardOwner returns which of hostCount hosts owns idx, using the same
// modulo-hash rule as the original's distributed joader.
func ShardOwner(idx uint32, hostCount uint32) uint32 {
	if hostCount == 0 {
		return 0
	}
	return idx % hostCount
}

// IsLocal reports whether idx is owned by this host, given its own
// 0-indexed position among hostCount hosts.
func IsLocal(idx uint32, hostCount, selfHost uint32) bool {
	return ShardOwner(idx, hostCount) == selfHost
}

// Forwarder hands a dataset index off to whichever host owns it, for a
// deployment that shards one dataset's indices across multiple joaderd
// processes. The default single-host server has no implementation of
// this interface wired in; IsLocal always holds when hostCount is 1.
type Forwarder interface {
	Forward(ctx context.Context, ownerHost uint32, datasetID uint32, idx uint32) error
}
