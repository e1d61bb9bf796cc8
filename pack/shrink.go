package pack

import (
	"archive/zip"
	"fmt"
	"io"
)

// Shrink implements §4.7 "Shrink": given an open archive and a mapping
// from sha256 to candidate URLs, it produces a new archive that omits
// every file whose digest is a key of linksToAdd, preserving MANIFEST and
// every path MANIFEST references that was not omitted, and writes a
// LINKS file merging linksToAdd with any LINKS already present.
func Shrink(w io.Writer, zr *zip.Reader, linksToAdd map[string][]string) error {
	manifestFile, err := zr.Open("MANIFEST")
	if err != nil {
		return fmt.Errorf("pack: shrink: archive has no MANIFEST: %w", err)
	}
	manifestBytes, err := io.ReadAll(manifestFile)
	manifestFile.Close()
	if err != nil {
		return err
	}
	manifest, err := ParseManifest(manifestBytes)
	if err != nil {
		return err
	}

	links := NewLinks()
	if f, err := zr.Open("LINKS"); err == nil {
		data, rerr := io.ReadAll(f)
		f.Close()
		if rerr != nil {
			return rerr
		}
		existing, perr := ParseLinks(data)
		if perr != nil {
			return perr
		}
		links.Merge(existing)
	}
	links.Merge(&Links{Version: 1, URLs: linksToAdd})

	omit := map[string]bool{}
	for sha := range linksToAdd {
		omit[sha] = true
	}

	zw := zip.NewWriter(w)
	for _, f := range zr.File {
		if f.Name == "MANIFEST" || f.Name == "LINKS" {
			continue
		}
		if sha, ok := manifest.Entries[f.Name]; ok && omit[sha] {
			continue
		}
		if err := copyEntry(zw, f); err != nil {
			return err
		}
	}

	linksBytes, err := links.Marshal()
	if err != nil {
		return err
	}
	if err := writeEntry(zw, "LINKS", linksBytes, zip.Deflate); err != nil {
		return err
	}
	if err := writeEntry(zw, "MANIFEST", manifestBytes, zip.Store); err != nil {
		return err
	}
	return zw.Close()
}

func copyEntry(zw *zip.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: f.Method})
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, rc)
	return err
}
