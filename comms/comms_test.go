package comms

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSendFDRoundTrip(t *testing.T) {
	boot, err := NewBootstrap()
	if err != nil {
		t.Fatal(err)
	}
	defer boot.Close()

	primaryReady := make(chan *Comms, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := Listen(boot.SocketPath())
		if err != nil {
			errCh <- err
			return
		}
		primaryReady <- c
	}()

	// Give the listener a moment to bind before dialing.
	for i := 0; i < 100 && !fileExists(boot.SocketPath()); i++ {
		time.Sleep(10 * time.Millisecond)
	}

	secondary, err := Connect(boot.SocketPath())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer secondary.Close()

	var primary *Comms
	select {
	case primary = <-primaryReady:
	case err := <-errCh:
		t.Fatalf("listen: %v", err)
	}
	defer primary.Close()

	f, err := os.CreateTemp("", "carton-fd-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	id, err := primary.SendFD(int(f.Fd()))
	if err != nil {
		t.Fatalf("send fd: %v", err)
	}

	gotFD, err := secondary.WaitForFD(id)
	if err != nil {
		t.Fatalf("wait for fd: %v", err)
	}
	if gotFD < 0 {
		t.Fatalf("expected a valid fd, got %d", gotFD)
	}
}

func fileExists(p string) bool {
	_, err := os.Stat(filepath.Clean(p))
	return err == nil
}
