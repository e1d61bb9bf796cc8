package comms

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Bootstrap owns the temporary directory holding the primary's UDS
// bootstrap socket path (§4.2 "Lifetime": "the primary owns a temporary
// directory for the bootstrap socket and unlinks it on drop").
type Bootstrap struct {
	dir      string
	sockPath string
}

// NewBootstrap creates a fresh temp directory and returns the socket path
// the primary should Listen on and pass to the runner via --uds-path.
func NewBootstrap() (*Bootstrap, error) {
	dir, err := os.MkdirTemp("", "carton-comms-")
	if err != nil {
		return nil, fmt.Errorf("comms: create bootstrap dir: %w", err)
	}
	return &Bootstrap{
		dir:      dir,
		sockPath: filepath.Join(dir, uuid.NewString()+".sock"),
	}, nil
}

func (b *Bootstrap) SocketPath() string { return b.sockPath }

// Close removes the temporary directory and its socket.
func (b *Bootstrap) Close() error {
	return os.RemoveAll(b.dir)
}
