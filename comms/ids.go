package comms

import "sync/atomic"

// idGenerator mints 8-byte ids that are unique within a connection: the
// primary side sets even parity bits, the secondary side odd, so ids
// minted independently on each side never collide (§4.2 "Contract").
type idGenerator struct {
	next atomic.Uint64
	odd  bool
}

func newIDGenerator(primary bool) *idGenerator {
	g := &idGenerator{odd: !primary}
	start := uint64(reservedIDCount)
	if g.odd {
		start++
	}
	g.next.Store(start)
	return g
}

func (g *idGenerator) mint() uint64 {
	for {
		v := g.next.Load()
		next := v + 2
		if g.next.CompareAndSwap(v, next) {
			return v
		}
	}
}

// reservedIDCount is the low end of the id space set aside for
// well-known channel ids (§4.2 "Contract"): Rpc, FileSystem, CartonData.
const reservedIDCount = 8
