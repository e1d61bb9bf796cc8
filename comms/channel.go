package comms

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Well-known channel ids (§4.9 "Channel layout", §6 "Wire protocol").
// These live in the reserved low range of the id space (reservedIDCount)
// so both sides can agree on them without negotiation.
const (
	ChannelRPC        uint64 = 0
	ChannelFileSystem uint64 = 1
	ChannelCartonData uint64 = 2
)

// GetChannel establishes (once per channelID) a private byte-pipe between
// the two peers: the primary creates a socketpair and sends one half's fd
// under channelID; the secondary waits for that fd. The returned *os.File
// should be wrapped by the length-framed transport (package transport).
//
// Calling GetChannel twice for the same channelID on the same side is a
// programmer error; well-known ids are claimed exactly once per process
// lifetime.
func (c *Comms) GetChannel(channelID uint64) (*os.File, error) {
	c.channelsMu.Lock()
	if c.channels[channelID] {
		c.channelsMu.Unlock()
		return nil, fmt.Errorf("comms: channel %d already claimed", channelID)
	}
	c.channels[channelID] = true
	c.channelsMu.Unlock()

	if c.primary {
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		if err != nil {
			return nil, fmt.Errorf("comms: socketpair: %w", err)
		}
		localFD, remoteFD := fds[0], fds[1]
		if err := c.SendFDWithID(channelID, remoteFD); err != nil {
			unix.Close(localFD)
			unix.Close(remoteFD)
			return nil, fmt.Errorf("comms: send channel fd: %w", err)
		}
		unix.Close(remoteFD) // the peer now owns its own copy
		return os.NewFile(uintptr(localFD), fmt.Sprintf("carton-channel-%d", channelID)), nil
	}

	fd, err := c.WaitForFD(channelID)
	if err != nil {
		return nil, fmt.Errorf("comms: wait for channel fd: %w", err)
	}
	return os.NewFile(uintptr(fd), fmt.Sprintf("carton-channel-%d", channelID)), nil
}
