package tensor

import "unsafe"

// HostIsLittleEndian reports whether the running process is on a
// little-endian host. Carton's tensor_data/ wire format is raw
// little-endian elements (§4.7 step 3); callers that serialize Storage
// bytes verbatim must check this first.
func HostIsLittleEndian() bool {
	var x uint16 = 1
	return *(*byte)(unsafe.Pointer(&x)) == 1
}
