// Package comms implements the cross-process FD-passing transport of
// §4.2: a Unix domain socket between exactly two peers (primary and
// secondary) that multiplexes an id/fd control stream, used to bootstrap
// typed request/response channels (§4.3) by handing one socketpair half
// across the process boundary per well-known channel id.
package comms

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Comms is one end of the bootstrap connection between a loader (primary)
// and a runner (secondary), or equivalent peer pair.
type Comms struct {
	primary bool
	ctrl    *controlChannel
	ids     *idGenerator

	mu      sync.Mutex
	paired  map[uint64]int // id -> fd, paired but not yet claimed by WaitForFD
	waiters map[uint64]chan int

	channelsMu sync.Mutex
	channels   map[uint64]bool // well-known channel ids already claimed

	closed  chan struct{}
	closeMu sync.Once
}

// Listen starts the primary side: it creates and binds a SOCK_SEQPACKET
// socket at path and accepts exactly one connection. The caller owns path
// (typically inside a temporary directory) and should remove it once the
// secondary has connected or on failure.
func Listen(path string) (*Comms, error) {
	os.Remove(path)
	l, err := net.Listen(controlNetwork, path)
	if err != nil {
		return nil, fmt.Errorf("comms: listen: %w", err)
	}
	defer l.Close()
	conn, err := l.Accept()
	if err != nil {
		return nil, fmt.Errorf("comms: accept: %w", err)
	}
	return newComms(true, conn.(*net.UnixConn)), nil
}

// Connect starts the secondary side: it dials the primary's bootstrap
// socket at path.
func Connect(path string) (*Comms, error) {
	conn, err := net.Dial(controlNetwork, path)
	if err != nil {
		return nil, fmt.Errorf("comms: dial: %w", err)
	}
	return newComms(false, conn.(*net.UnixConn)), nil
}

func newComms(primary bool, conn *net.UnixConn) *Comms {
	c := &Comms{
		primary:  primary,
		ctrl:     newControlChannel(conn),
		ids:      newIDGenerator(primary),
		paired:   map[uint64]int{},
		waiters:  map[uint64]chan int{},
		channels: map[uint64]bool{},
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop is the single dispatch goroutine required by §4.2's
// "Callbacks are dispatched single-threadedly to avoid reordering".
func (c *Comms) readLoop() {
	for {
		id, fd, err := c.ctrl.recvMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				slog.Debug("comms: control channel read loop exiting", "error", err)
			}
			c.Close()
			return
		}
		c.onPair(id, fd)
	}
}

// onPair delivers a freshly received (id, fd) pair to a waiter if one is
// registered, or stashes it for a future WaitForFD.
func (c *Comms) onPair(id uint64, fd int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.waiters[id]; ok {
		delete(c.waiters, id)
		ch <- fd
		close(ch)
		return
	}
	c.paired[id] = fd
}

// SendFD sends fd on the control channel under a freshly minted id and
// returns that id (§4.2 "Operations").
func (c *Comms) SendFD(fd int) (uint64, error) {
	id := c.ids.mint()
	if err := c.SendFDWithID(id, fd); err != nil {
		return 0, err
	}
	return id, nil
}

// SendFDWithID is like SendFD but lets the caller supply the id, used for
// the reserved well-known channel ids consumed by GetChannel. id and fd
// are written to the wire in a single control message, so concurrent
// callers can never have their ids and fds cross-pair (§4.2 "Ordering").
func (c *Comms) SendFDWithID(id uint64, fd int) error {
	return c.ctrl.sendPair(id, fd)
}

// WaitForFD blocks until the fd sent under fdID arrives, or returns
// immediately if it already has (§4.2 "Operations").
func (c *Comms) WaitForFD(fdID uint64) (int, error) {
	c.mu.Lock()
	if fd, ok := c.paired[fdID]; ok {
		delete(c.paired, fdID)
		c.mu.Unlock()
		return fd, nil
	}
	ch := make(chan int, 1)
	c.waiters[fdID] = ch
	c.mu.Unlock()

	select {
	case fd := <-ch:
		return fd, nil
	case <-c.closed:
		return 0, fmt.Errorf("comms: closed while waiting for fd %d", fdID)
	}
}

// IsPrimary reports whether this end created and bound the bootstrap
// socket (true) or connected to it (false).
func (c *Comms) IsPrimary() bool { return c.primary }

// Close shuts down the control channel. Idempotent.
func (c *Comms) Close() error {
	c.closeMu.Do(func() {
		close(c.closed)
		c.ctrl.Close()
	})
	return nil
}
