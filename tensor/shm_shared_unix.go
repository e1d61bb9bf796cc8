package tensor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapImportedFD mmaps a full received fd read/write, using fstat to
// learn its size. Shared across the linux/!linux split since
// golang.org/x/sys/unix's Fstat and Mmap are implemented identically on
// every unix Carton targets; only the region-creation side (memfd vs
// POSIX shm_open) differs per platform.
func mapImportedFD(fd int) (*Region, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, fmt.Errorf("fstat: %w", err)
	}
	size := int(stat.Size)
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &Region{
		fd:   uintptr(fd),
		addr: dataAddr(data),
		data: data,
	}, nil
}

// unmapImported tears down an ImportRegion mapping on last release: unmap
// the memory and close the fd (unlike pool-backed regions, an imported
// region is never reused — it belongs to whatever allocation the sender
// made, not to this process's pool).
func unmapImported(r *Region) {
	unix.Munmap(r.data)
	unix.Close(int(r.fd))
}
