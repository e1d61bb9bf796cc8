// Package discover implements runner discovery (§4.10): scanning an
// installation root for runner.toml manifests and selecting the best
// candidate for a requested framework/platform/compat combination.
package discover

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/semver"
)

// MaxSupportedInterfaceVersion is the highest runner_interface_version
// this build of Carton knows how to drive (§4.10 "Selection").
const MaxSupportedInterfaceVersion = 1

// Record is one per-runner entry of a runner.toml document.
type Record struct {
	RunnerName             string `toml:"runner_name"`
	FrameworkVersion       string `toml:"framework_version"`
	RunnerCompatVersion    string `toml:"runner_compat_version"`
	RunnerInterfaceVersion int    `toml:"runner_interface_version"`
	RunnerReleaseDate      string `toml:"runner_release_date"` // RFC3339
	RunnerPath             string `toml:"runner_path"`
	Platform               string `toml:"platform"`
}

type runnerToml struct {
	Version int      `toml:"version"`
	Runners []Record `toml:"runners"`
}

// Candidate is a Record with its runner_path already rewritten absolute
// and release date parsed, ready for selection.
type Candidate struct {
	Record
	ReleaseDate time.Time
}

// Scan walks root collecting every runner.toml found (§4.10 "Scan").
// Symbolic links are not followed: a symlink to a runner directory is
// not scanned. A directory named with a ".tmp" prefix is skipped
// entirely (in-progress installations); scanning does not descend past a
// directory that contained a runner.toml.
func Scan(root string) ([]Candidate, error) {
	var out []Candidate
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return filepath.SkipAll
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".tmp") {
			slog.Debug("discover: skipping in-progress install directory", "dir", p)
			return filepath.SkipDir
		}
		manifest := filepath.Join(p, "runner.toml")
		if fi, err := os.Stat(manifest); err != nil || fi.IsDir() {
			return nil
		}
		candidates, err := parseRunnerToml(manifest, p)
		if err != nil {
			return fmt.Errorf("discover: parsing %s: %w", manifest, err)
		}
		out = append(out, candidates...)
		return filepath.SkipDir
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseRunnerToml(path, dir string) ([]Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc runnerToml
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(doc.Runners))
	for _, r := range doc.Runners {
		if !filepath.IsAbs(r.RunnerPath) {
			r.RunnerPath = filepath.Join(dir, r.RunnerPath)
		}
		t, err := time.Parse(time.RFC3339, r.RunnerReleaseDate)
		if err != nil {
			return nil, fmt.Errorf("runner %q: invalid runner_release_date %q: %w", r.RunnerName, r.RunnerReleaseDate, err)
		}
		out = append(out, Candidate{Record: r, ReleaseDate: t})
	}
	return out, nil
}

// Query is the selection predicate of §4.10 "Selection".
type Query struct {
	RunnerName            string
	RunnerCompatVersion   string
	FrameworkVersionRange string // semver range, e.g. ">=1.0.0 <2.0.0"
	Platform              string
}

// Select filters candidates against q and returns the one with the
// latest runner_release_date among survivors. It returns an error if no
// candidate matches.
func Select(candidates []Candidate, q Query) (*Candidate, error) {
	var survivors []Candidate
	for _, c := range candidates {
		if c.RunnerName != q.RunnerName {
			continue
		}
		if c.RunnerCompatVersion != q.RunnerCompatVersion {
			continue
		}
		if c.Platform != q.Platform {
			continue
		}
		if c.RunnerInterfaceVersion > MaxSupportedInterfaceVersion {
			continue
		}
		if !satisfiesRange(c.FrameworkVersion, q.FrameworkVersionRange) {
			continue
		}
		survivors = append(survivors, c)
	}
	if len(survivors) == 0 {
		return nil, fmt.Errorf("discover: no runner matches name=%q compat=%q platform=%q framework_range=%q",
			q.RunnerName, q.RunnerCompatVersion, q.Platform, q.FrameworkVersionRange)
	}
	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].ReleaseDate.After(survivors[j].ReleaseDate)
	})
	return &survivors[0], nil
}

// satisfiesRange evaluates a simple space-separated conjunction of
// semver comparisons (">=1.0.0 <2.0.0") against version v. Both v and the
// range's bounds are canonicalized with a "v" prefix to match
// golang.org/x/mod/semver's expectations.
func satisfiesRange(v, rng string) bool {
	vc := canonicalSemver(v)
	if !semver.IsValid(vc) {
		return false
	}
	if strings.TrimSpace(rng) == "" {
		return true
	}
	for _, clause := range strings.Fields(rng) {
		op, bound := splitClause(clause)
		bc := canonicalSemver(bound)
		if !semver.IsValid(bc) {
			return false
		}
		cmp := semver.Compare(vc, bc)
		ok := false
		switch op {
		case ">=":
			ok = cmp >= 0
		case ">":
			ok = cmp > 0
		case "<=":
			ok = cmp <= 0
		case "<":
			ok = cmp < 0
		case "=", "==":
			ok = cmp == 0
		default:
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

func splitClause(s string) (op, version string) {
	for _, candidate := range []string{">=", "<=", "==", ">", "<", "="} {
		if strings.HasPrefix(s, candidate) {
			return candidate, strings.TrimSpace(strings.TrimPrefix(s, candidate))
		}
	}
	return "=", s
}

func canonicalSemver(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
