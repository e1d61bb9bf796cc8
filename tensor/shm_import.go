package tensor

import "fmt"

// ImportRegion wraps an fd received from a peer process (via comms'
// SCM_RIGHTS transfer) as a Region with one reference, mmapping its full
// extent read/write and registering it in the global address-range
// registry so LookupRegion resolves pointers into it (§4.9
// "Tensor-handle encoding": "the receiver upgrades fd-id handles into
// tensors whose storage mmaps the received fd and holds the strong
// SHM-region handle keeping the mapping alive").
func ImportRegion(fd int) (*Region, error) {
	region, err := mapImportedFD(fd)
	if err != nil {
		return nil, fmt.Errorf("tensor: import region: %w", err)
	}
	region.refs = 1
	region.imported = true
	shmRegistry.register(region)
	return region, nil
}
