package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Manifest is the MANIFEST file's decoded form: a sorted list of
// path=sha256 entries covering every file in the package except MANIFEST
// itself (§4.7 "Save" step 6).
type Manifest struct {
	Entries map[string]string // path -> hex sha256
}

func NewManifest() *Manifest {
	return &Manifest{Entries: map[string]string{}}
}

func (m *Manifest) Add(path string, sha256Hex string) {
	m.Entries[path] = sha256Hex
}

// Marshal renders the manifest in deterministic alphabetic-by-path order,
// one "path=sha256\n" line per entry, so that packing the same tree twice
// byte-for-byte reproduces the same MANIFEST (§8 "deterministic
// packaging").
func (m *Manifest) Marshal() []byte {
	paths := make([]string, 0, len(m.Entries))
	for p := range m.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString(p)
		sb.WriteByte('=')
		sb.WriteString(m.Entries[p])
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// Digest returns the sha256 of Marshal's output, used as the package id
// (§4.7 "Save" step 7).
func (m *Manifest) Digest() string {
	sum := sha256.Sum256(m.Marshal())
	return hex.EncodeToString(sum[:])
}

func ParseManifest(data []byte) (*Manifest, error) {
	m := NewManifest()
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("pack: malformed MANIFEST line %d: %q", i, line)
		}
		m.Entries[line[:idx]] = line[idx+1:]
	}
	return m, nil
}

func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
