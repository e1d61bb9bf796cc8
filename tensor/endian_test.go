package tensor

import (
	"encoding/binary"
	"testing"
)

func TestHostIsLittleEndianMatchesNativeEndian(t *testing.T) {
	var buf [2]byte
	binary.NativeEndian.PutUint16(buf[:], 0x0102)
	want := buf[0] == 0x02 // low byte first iff the host is little-endian
	if got := HostIsLittleEndian(); got != want {
		t.Fatalf("HostIsLittleEndian() = %v, want %v (NativeEndian encoded 0x0102 as %x)", got, want, buf)
	}
}
