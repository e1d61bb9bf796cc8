package tensor

import "sync"

// shmPoolT is the whole-region analogue of pool (pool.go), keyed by mapped
// byte length rather than by a generic "size" (§4.1 "SHM variant": "pool
// items are whole SHM regions keyed by their mapped byte length").
type shmPoolT struct {
	mu   sync.Mutex
	bags map[int][]*Region
}

var shmPool = &shmPoolT{bags: map[int][]*Region{}}

func (p *shmPoolT) get(size int) (*Region, error) {
	p.mu.Lock()
	bag := p.bags[size]
	if len(bag) > 0 {
		r := bag[len(bag)-1]
		p.bags[size] = bag[:len(bag)-1]
		p.mu.Unlock()
		r.mu.Lock()
		r.refs = 1
		r.mu.Unlock()
		return r, nil
	}
	p.mu.Unlock()

	r, err := newMappedRegion(size)
	if err != nil {
		return nil, err
	}
	r.refs = 1
	r.poolSize = size
	return r, nil
}

func (p *shmPoolT) put(r *Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bags[r.poolSize] = append(p.bags[r.poolSize], r)
}
