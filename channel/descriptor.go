// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Descriptor transfer layout: one in-band marker byte accompanied by
// exactly one descriptor in a SCM_RIGHTS control message. The marker
// byte exists because Linux refuses to carry ancillary data on a
// stream socket without at least one byte of regular payload; its
// value is 0x00 on send and is not inspected on receive, so peers that
// send a different filler byte interoperate.
const descriptorMarker byte = 0x00

// SendDescriptor transfers an open descriptor to the peer process. The
// kernel duplicates the descriptor in flight: the caller keeps its own
// copy and remains responsible for it, while the peer receives an
// independent handle to the same underlying object.
//
// The channel descriptor must be a Unix domain socket; on a pipe or
// network-socket channel the call fails with ErrNotSocket before
// anything is written. Use SupportsDescriptorTransfer to check first.
func (c *Channel) SendDescriptor(fd int) error {
	if c.closed {
		return fmt.Errorf("send descriptor: %w", ErrClosed)
	}
	if !c.socket {
		return fmt.Errorf("send descriptor: %w", ErrNotSocket)
	}
	marker := [1]byte{descriptorMarker}
	rights := unix.UnixRights(fd)
	for {
		err := unix.Sendmsg(c.fd, marker[:], rights, nil, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("send descriptor: sendmsg: %w", err)
		}
		return nil
	}
}

// ReceiveDescriptor receives one descriptor from the peer. On success
// the returned descriptor is a fresh handle owned exclusively by the
// caller, who must eventually close it.
//
// io.EOF means the peer closed before sending anything. A marker byte
// that arrives without a descriptor attached fails with
// ErrNoDescriptor. If the peer attached more than one descriptor, or
// the control data was truncated, every descriptor the kernel handed
// over is closed before the call fails with ErrProtocol, so none leak.
func (c *Channel) ReceiveDescriptor() (int, error) {
	if c.closed {
		return -1, fmt.Errorf("receive descriptor: %w", ErrClosed)
	}
	if !c.socket {
		return -1, fmt.Errorf("receive descriptor: %w", ErrNotSocket)
	}

	// Control space for exactly one descriptor. A peer that sends
	// more truncates, and truncation is handled as a protocol
	// violation below.
	marker := make([]byte, 1)
	control := make([]byte, unix.CmsgSpace(4))
	var inband, controlLength, flags int
	for {
		var err error
		inband, controlLength, flags, _, err = unix.Recvmsg(c.fd, marker, control, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, fmt.Errorf("receive descriptor: recvmsg: %w", err)
		}
		break
	}
	if inband == 0 && controlLength == 0 {
		return -1, io.EOF
	}

	received := parseReceivedDescriptors(control[:controlLength])
	if flags&unix.MSG_CTRUNC != 0 {
		closeDescriptors(received)
		return -1, fmt.Errorf("receive descriptor: control data truncated: %w", ErrProtocol)
	}
	if len(received) == 0 {
		return -1, fmt.Errorf("receive descriptor: %w", ErrNoDescriptor)
	}
	if len(received) > 1 {
		closeDescriptors(received)
		return -1, fmt.Errorf("receive descriptor: peer attached %d descriptors, want exactly one: %w", len(received), ErrProtocol)
	}
	return received[0], nil
}

// parseReceivedDescriptors extracts every descriptor from raw socket
// control data. Control messages that are not SCM_RIGHTS carry no
// descriptors and are skipped; malformed control data yields none.
func parseReceivedDescriptors(control []byte) []int {
	messages, err := unix.ParseSocketControlMessage(control)
	if err != nil {
		return nil
	}
	var received []int
	for _, message := range messages {
		fds, err := unix.ParseUnixRights(&message)
		if err != nil {
			continue
		}
		received = append(received, fds...)
	}
	return received
}

// closeDescriptors closes every descriptor in fds, ignoring errors.
// Used on failure paths after the kernel has already handed over
// descriptors that will never reach the caller.
func closeDescriptors(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
