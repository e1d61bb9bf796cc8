package loader

import (
	"fmt"
	"io"
	"net/http"
)

// httpReaderAt adapts a single URL supporting byte-range requests into
// an io.ReaderAt, so a whole remote carton can be opened with
// vfs.NewZip without buffering it locally (§4.8 stage 2 "Fetch": "a byte
// source (local file handle or HTTP VFS)").
type httpReaderAt struct {
	url    string
	client *http.Client
}

func newHTTPReaderAt(url string, client *http.Client) (*httpReaderAt, int64, error) {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("loader: HEAD %s: %w", url, err)
	}
	resp.Body.Close()
	if resp.ContentLength < 0 {
		return nil, 0, fmt.Errorf("loader: %s did not report Content-Length", url)
	}
	return &httpReaderAt{url: url, client: client}, resp.ContentLength, nil
}

func (r *httpReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	req, err := http.NewRequest(http.MethodGet, r.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("loader: ranged GET %s: unexpected status %s", r.url, resp.Status)
	}
	return io.ReadFull(resp.Body, p)
}
