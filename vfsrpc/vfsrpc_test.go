package vfsrpc

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carton-ml/carton/mux"
	"github.com/carton-ml/carton/vfs"
)

func newPair(t *testing.T, caps Capabilities, served vfs.FS) *Client {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	serverMux := mux.New[Message](a, true)
	clientMux := mux.New[Message](b, false)
	t.Cleanup(func() { serverMux.Close(); clientMux.Close() })

	serverStream := serverMux.GetNewStream()
	clientStream := clientMux.GetStreamForID(serverStream.ID)

	Serve(serverStream, served, caps)
	return Connect(clientStream, caps)
}

func TestClientReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	local := vfs.NewLocal(dir)

	client := newPair(t, Capabilities{Read: true, Seek: true}, local)

	data, err := client.Read("hello.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}

	info, err := client.Metadata("hello.txt")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if info.Size != int64(len("hello world")) {
		t.Fatalf("size mismatch: %d", info.Size)
	}

	entries, err := client.ReadDir(".")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "hello.txt" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestClientOpenAndSeek(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.bin"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	local := vfs.NewLocal(dir)
	client := newPair(t, Capabilities{Read: true, Seek: true}, local)

	f, err := client.Open("data.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(5, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 5)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "56789" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestClientWriteRequiresCapability(t *testing.T) {
	dir := t.TempDir()
	local := vfs.NewLocal(dir)
	client := newPair(t, Capabilities{Read: true}, local)

	err := client.Write("new.txt", []byte("data"))
	if err == nil {
		t.Fatal("expected write to fail without Capabilities.Write")
	}
}

func TestClientWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	local := vfs.NewLocal(dir)
	client := newPair(t, Capabilities{Read: true, Write: true}, local)

	if err := client.Write("new.txt", []byte("fresh data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := client.Read("new.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "fresh data" {
		t.Fatalf("got %q", got)
	}

	if err := client.CreateDir("sub"); err != nil {
		t.Fatalf("CreateDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub")); err != nil {
		t.Fatalf("CreateDir did not create directory: %v", err)
	}
}

func TestClientReadMissingFileNotFound(t *testing.T) {
	dir := t.TempDir()
	local := vfs.NewLocal(dir)
	client := newPair(t, Capabilities{Read: true}, local)

	_, err := client.Read("missing.txt")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
}

func TestConcurrentRequestsDoNotCrossTalk(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	local := vfs.NewLocal(dir)
	client := newPair(t, Capabilities{Read: true}, local)

	done := make(chan error, 2)
	go func() {
		data, err := client.Read("a.txt")
		if err == nil && string(data) != "a.txt" {
			err = errMismatch("a.txt", data)
		}
		done <- err
	}()
	go func() {
		data, err := client.Read("b.txt")
		if err == nil && string(data) != "b.txt" {
			err = errMismatch("b.txt", data)
		}
		done <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for concurrent reads")
		}
	}
}

func errMismatch(want string, got []byte) error {
	return &mismatchError{want: want, got: string(got)}
}

type mismatchError struct{ want, got string }

func (e *mismatchError) Error() string { return e.want + " != " + e.got }
