//go:build !linux

package tensor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func init() {
	newMappedRegion = newPosixShmRegion
}

// newPosixShmRegion implements the "named-and-unlinked POSIX shm" fallback
// of §3 "SHM region" for platforms without memfd: open a uniquely named
// object under the shared-memory namespace, unlink it immediately so no
// other process can open it by name, then mmap the still-open fd.
func newPosixShmRegion(size int) (*Region, error) {
	name := fmt.Sprintf("/carton-tensor-%d-%d", os.Getpid(), shmNameCounter.next())
	fd, err := unix.ShmOpen(name, os.O_RDWR|os.O_CREAT|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm_open: %w", err)
	}
	unix.ShmUnlink(name)
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
