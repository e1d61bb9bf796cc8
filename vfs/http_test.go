package vfs

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPRangeRead(t *testing.T) {
	const size = 1 << 20 // 1 MiB
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}

	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(size))
			w.WriteHeader(http.StatusOK)
			return
		}
		requests.Add(1)
		http.ServeContent(w, r, "blob", time.Time{}, bytes.NewReader(data))
	}))
	defer srv.Close()

	h := NewHTTP(nil)
	h.URLFor = func(string) (string, error) { return srv.URL, nil }

	f, err := h.Open("blob")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	const offset = 512 * 1024
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4096)
	if _, err := io.ReadFull(f, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data[offset:offset+4096]) {
		t.Fatalf("range read returned wrong bytes")
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected exactly 1 GET request, got %d", got)
	}
}
