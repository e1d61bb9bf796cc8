package tensor

import "sync"

// pool implements the per-size reuse bag described in §4.1 "Pool policy":
// allocations are grouped by byte size and popped LIFO to maximize cache
// reuse. Eviction is left unbounded, matching the spec's open question on
// eviction policy (§9): this implementation never evicts, trading memory
// for the stable-base-pointer property §8(10) relies on.
type pool struct {
	mu   sync.Mutex
	bags map[int][][]byte
}

var numericPool = &pool{bags: map[int][][]byte{}}

// get pops a buffer of exactly size bytes from the pool, or returns nil if
// none is available.
func (p *pool) get(size int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	bag := p.bags[size]
	if len(bag) == 0 {
		return nil
	}
	last := bag[len(bag)-1]
	p.bags[size] = bag[:len(bag)-1]
	return last
}

// put returns a buffer to the pool, keyed by size. The pool does not
// validate len(buf) == size; callers (InlineStorage.Release) are the only
// caller and always pass the size they allocated with.
func (p *pool) put(size int, buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bags[size] = append(p.bags[size], buf)
}

// AllocTensor allocates a pool-backed numeric Tensor of dtype dt and shape
// shape, zero-initialized on first allocation (reused buffers keep
// whatever bytes they held from their previous use — callers that need a
// guaranteed-zero buffer should overwrite it).
func AllocTensor(dt DType, shape Shape) (*Tensor, error) {
	return allocTensor(dt, shape, numericPool)
}

// AllocTensorNoPool allocates a one-shot numeric Tensor that is never
// returned to a pool.
func AllocTensorNoPool(dt DType, shape Shape) (*Tensor, error) {
	return allocTensor(dt, shape, nil)
}

func allocTensor(dt DType, shape Shape, p *pool) (*Tensor, error) {
	if !dt.IsNumeric() {
		return nil, &Error{Op: "alloc", Msg: "dtype " + dt.String() + " is not numeric"}
	}
	size := int(shape.NumElements()) * dt.ElemSize()
	var buf []byte
	if p != nil {
		buf = p.get(size)
	}
	if buf == nil {
		buf = make([]byte, size)
	} else if len(buf) != size {
		// Defensive: a pool bag is keyed by size, so this cannot happen
		// absent a bug in put/get; fail loudly rather than silently
		// reinterpret a mismatched buffer.
		return nil, &Error{Op: "alloc", Msg: "pool returned mismatched buffer size"}
	}
	return &Tensor{
		DType: dt,
		Shape: shape.Clone(),
		Storage: &InlineStorage{
			buf:  buf,
			pool: p,
			size: size,
		},
	}, nil
}

// AllocStringTensor allocates a String-dtype tensor with numel
// default-initialized (empty-string) elements. String tensors are never
// pool-backed (§4.1).
func AllocStringTensor(shape Shape) *Tensor {
	n := int(shape.NumElements())
	return &Tensor{
		DType:         String,
		Shape:         shape.Clone(),
		StringStorage: &StringStorage{Elems: make([]string, n)},
	}
}

// Error reports a programmer-error style failure in tensor allocation or
// access (§4.1 "Errors"): mismatched type access, or a fatal allocation
// failure surfaced instead of aborting the process outright.
type Error struct {
	Op  string
	Msg string
}

func (e *Error) Error() string { return "tensor: " + e.Op + ": " + e.Msg }
