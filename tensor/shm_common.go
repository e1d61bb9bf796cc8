package tensor

import (
	"sync/atomic"
	"unsafe"
)

// dataAddr returns the address of a mmapped slice's backing array, used
// as the registry key (§3 "SHM region").
func dataAddr(data []byte) uintptr {
	if len(data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&data[0]))
}

type counter struct{ n atomic.Uint64 }

func (c *counter) next() uint64 { return c.n.Add(1) }

var shmNameCounter counter
