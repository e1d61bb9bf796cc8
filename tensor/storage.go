package tensor

// Storage is the backing store of a numeric Tensor: either an owned inline
// byte buffer or a view into a shared-memory region (§3 "Tensor").
type Storage interface {
	// Bytes returns the raw element bytes this storage currently covers.
	// Callers must not retain the slice past the storage's lifetime.
	Bytes() []byte
	// Release returns the storage to its pool (if any) or frees it.
	// Idempotent; safe to call multiple times.
	Release()
}

// InlineStorage is an owned byte buffer, optionally pool-backed.
type InlineStorage struct {
	buf  []byte
	pool *pool
	size int // key used when returning to the pool
}

func (s *InlineStorage) Bytes() []byte { return s.buf }

func (s *InlineStorage) Release() {
	if s == nil || s.pool == nil {
		return
	}
	p := s.pool
	s.pool = nil
	p.put(s.size, s.buf)
}

// StringStorage backs a String-dtype tensor: a flat, row-major slice of
// owned Go strings. String tensors always use inline storage (§3).
type StringStorage struct {
	Elems []string
}
