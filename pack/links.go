package pack

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Links is the decoded LINKS file: a versioned mapping from content hash
// to the set of URLs that can produce it, used by Shrink to record files
// omitted from an archive (§3 "Package", §4.7 "Shrink").
type Links struct {
	Version int                 `toml:"version"`
	URLs    map[string][]string `toml:"urls"`
}

func NewLinks() *Links {
	return &Links{Version: 1, URLs: map[string][]string{}}
}

func ParseLinks(data []byte) (*Links, error) {
	var l Links
	if err := toml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("pack: parsing LINKS: %w", err)
	}
	if l.Version != 1 {
		return nil, fmt.Errorf("pack: unsupported LINKS version %d", l.Version)
	}
	return &l, nil
}

func (l *Links) Marshal() ([]byte, error) {
	return toml.Marshal(l)
}

// Merge adds every sha256->urls entry of other into l, appending to and
// deduplicating any URLs already recorded for a hash that appears in
// both (§4.7 "Shrink": "merging with an existing LINKS if present").
func (l *Links) Merge(other *Links) {
	if other == nil {
		return
	}
	for sha, urls := range other.URLs {
		existing := l.URLs[sha]
		seen := map[string]bool{}
		for _, u := range existing {
			seen[u] = true
		}
		for _, u := range urls {
			if !seen[u] {
				existing = append(existing, u)
				seen[u] = true
			}
		}
		l.URLs[sha] = existing
	}
}
