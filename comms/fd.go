package comms

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// The control channel is a SOCK_SEQPACKET Unix domain socket so that
// message boundaries survive the trip, instead of getting coalesced the
// way a plain SOCK_STREAM byte pipe would. Every control message carries
// an id and its fd together, in one sendmsg(2) call, so the pairing
// between the two is atomic on the wire: two concurrent senders can
// never interleave as idA,idB,fdB,fdA (§4.2 "Ordering").
const controlNetwork = "unixpacket"

const msgTypeIDFD byte = 1

// controlChannel is the low-level SCM_RIGHTS transport underlying Comms.
// It is deliberately small: one goroutine reads messages and dispatches
// them, everything else just enqueues sends.
type controlChannel struct {
	conn *net.UnixConn

	writeMu sync.Mutex
}

func newControlChannel(conn *net.UnixConn) *controlChannel {
	return &controlChannel{conn: conn}
}

// sendPair writes an 8-byte little-endian id alongside fd as SCM_RIGHTS
// ancillary data, both as part of a single sendmsg(2) call.
func (c *controlChannel) sendPair(id uint64, fd int) error {
	buf := make([]byte, 9)
	buf[0] = msgTypeIDFD
	binary.LittleEndian.PutUint64(buf[1:], id)
	oob := unix.UnixRights(fd)
	return c.writeRaw(buf, oob)
}

func (c *controlChannel) writeRaw(p, oob []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	raw, err := c.conn.SyscallConn()
	if err != nil {
		return err
	}
	var sendErr error
	ctrlErr := raw.Write(func(fd uintptr) bool {
		sendErr = unix.Sendmsg(int(fd), p, oob, nil, 0)
		return sendErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sendErr
}

// recvMessage reads a single control message and returns the id/fd pair
// it carries together, matching the atomic pairing sendPair writes.
func (c *controlChannel) recvMessage() (id uint64, fd int, err error) {
	buf := make([]byte, 9)
	oob := make([]byte, unix.CmsgSpace(4))

	raw, err := c.conn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	var n, oobn int
	ctrlErr := raw.Read(func(rfd uintptr) bool {
		n, oobn, _, _, err = unix.Recvmsg(int(rfd), buf, oob, 0)
		return err != unix.EAGAIN
	})
	if ctrlErr != nil {
		return 0, 0, ctrlErr
	}
	if err != nil {
		return 0, 0, err
	}
	if n == 0 {
		return 0, 0, fmt.Errorf("comms: control channel closed")
	}
	if buf[0] != msgTypeIDFD {
		return 0, 0, fmt.Errorf("comms: unknown control message type %d", buf[0])
	}
	if n < 9 {
		return 0, 0, fmt.Errorf("comms: short id/fd message")
	}
	id = binary.LittleEndian.Uint64(buf[1:9])

	if oobn == 0 {
		return 0, 0, fmt.Errorf("comms: id/fd message %d carried no ancillary fd", id)
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, 0, fmt.Errorf("comms: parse control message: %w", err)
	}
	for _, cm := range cmsgs {
		fds, err := unix.ParseUnixRights(&cm)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			return id, fds[0], nil
		}
	}
	return 0, 0, fmt.Errorf("comms: id/fd message %d carried no fd rights", id)
}

func (c *controlChannel) Close() error {
	return c.conn.Close()
}
