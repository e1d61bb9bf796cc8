package tensor

import (
	"sort"
	"sync"
)

// registry is the process-global address-range map described in §3 "SHM
// region": `(start_addr, end_addr) -> region`. It is consulted only on
// region allocate/free, never on every tensor access (§5).
type registry struct {
	mu      sync.RWMutex
	ranges  []uintptr // start addresses, sorted, parallel to regions
	regions []*Region
}

var shmRegistry = &registry{}

func (r *registry) register(region *Region) {
	start, _ := region.Addr()
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.ranges), func(i int) bool { return r.ranges[i] >= start })
	r.ranges = append(r.ranges, 0)
	copy(r.ranges[i+1:], r.ranges[i:])
	r.ranges[i] = start

	r.regions = append(r.regions, nil)
	copy(r.regions[i+1:], r.regions[i:])
	r.regions[i] = region
}

func (r *registry) unregister(region *Region) {
	start, _ := region.Addr()
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.ranges), func(i int) bool { return r.ranges[i] >= start })
	if i < len(r.ranges) && r.ranges[i] == start && r.regions[i] == region {
		r.ranges = append(r.ranges[:i], r.ranges[i+1:]...)
		r.regions = append(r.regions[:i], r.regions[i+1:]...)
	}
}

// Lookup returns the region whose mapping contains ptr, if any. Used by
// the SHM allocator's zero-copy pointer test (§4.1 "SHM variant") and to
// verify §8(9)'s zero-copy property.
func (r *registry) Lookup(ptr uintptr) (*Region, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := sort.Search(len(r.ranges), func(i int) bool { return r.ranges[i] > ptr }) - 1
	if i < 0 || i >= len(r.regions) {
		return nil, false
	}
	_, end := r.regions[i].Addr()
	if ptr < end {
		return r.regions[i], true
	}
	return nil, false
}

// LookupRegion is the package-level entry point used by callers outside
// this package's internals (e.g. rpc) to resolve an mmapped pointer back
// to its Region.
func LookupRegion(ptr uintptr) (*Region, bool) {
	return shmRegistry.Lookup(ptr)
}
