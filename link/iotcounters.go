package link

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/rigado/l2cap"
)

// discCounters is the in-cache tally for one peer's disconnect counters.
type discCounters struct {
	DiscCount            int `json:"disc_count"`
	DiscConnTimeoutCount int `json:"disc_conn_timeout_count"`
}

// iotCounterCache sits in front of an l2cap.IotConfigStore. Every
// increment is forwarded to the store immediately; the bounded LRU only
// keeps a per-peer tally for Snapshot, and nothing is batched or
// coalesced. A nil store makes the increment methods no-ops, so a Core
// can be built and exercised without one.
type iotCounterCache struct {
	real *lru.Cache
	sink l2cap.IotConfigStore
}

func newIotCounterCache(sink l2cap.IotConfigStore, size int) *iotCounterCache {
	c, err := lru.New(size)
	if err != nil {
		// size is always a positive compile-time constant from this
		// package; lru.New only fails for size <= 0.
		panic(err)
	}
	return &iotCounterCache{real: c, sink: sink}
}

func (ic *iotCounterCache) get(peer l2cap.Address) *discCounters {
	if v, ok := ic.real.Get(peer); ok {
		return v.(*discCounters)
	}
	dc := &discCounters{}
	ic.real.Add(peer, dc)
	return dc
}

// IncrementDiscCount bumps the IOT disconnect counter for a peer.
func (ic *iotCounterCache) IncrementDiscCount(peer l2cap.Address) {
	if ic.sink == nil {
		return
	}
	ic.get(peer).DiscCount++
	ic.sink.IncrementDiscCount(peer)
}

// IncrementDiscConnTimeoutCount implements the connection-timeout-specific
// bucket of the same step, consulted only when the disconnect reason is
// l2cap.HCIConnectionTimeout.
func (ic *iotCounterCache) IncrementDiscConnTimeoutCount(peer l2cap.Address) {
	if ic.sink == nil {
		return
	}
	ic.get(peer).DiscConnTimeoutCount++
	ic.sink.IncrementDiscConnTimeoutCount(peer)
}

// Snapshot returns the cached counts for diagnostics (link/snapshot.go)
// without touching the backing store.
func (ic *iotCounterCache) Snapshot() map[l2cap.Address]discCounters {
	out := make(map[l2cap.Address]discCounters)
	for _, key := range ic.real.Keys() {
		peer := key.(l2cap.Address)
		if v, ok := ic.real.Peek(peer); ok {
			out[peer] = *(v.(*discCounters))
		}
	}
	return out
}
