//go:build linux

package tensor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func init() {
	newMappedRegion = newMemfdRegion
}

// newMemfdRegion creates an anonymous memfd (Linux's native equivalent of
// POSIX shm_open, requiring no filesystem path and no unlink dance) sized
// to size bytes, and mmaps it read/write.
func newMemfdRegion(size int) (*Region, error) {
	fd, err := unix.MemfdCreate("carton-tensor", 0)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &Region{
		fd:   uintptr(fd),
		addr: dataAddr(data),
		data: data,
	}, nil
}
