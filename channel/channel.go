// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel implements a framed message protocol over a single
// duplex descriptor shared with one peer process. The descriptor is
// typically one end of a pipe or of a Unix domain stream socketpair;
// the peer may be written in any language that speaks the wire format.
//
// Three frame shapes ride the same transport:
//
//   - Structured messages: an ordered list of text fields. Each field
//     is preceded by a one-byte length, and the whole payload by a
//     16-bit big-endian total length. Fields round-trip byte for byte,
//     embedded whitespace included. See [Channel.WriteMessage].
//   - Raw blobs: a 16-bit big-endian length followed by opaque bytes,
//     for payloads that are not a list of short text fields. See
//     [Channel.WriteRaw].
//   - Descriptor transfers: one in-band marker byte with an open file
//     descriptor attached as SCM_RIGHTS ancillary data. Available only
//     when the channel descriptor is a Unix domain socket. See
//     [Channel.SendDescriptor].
//
// A Channel owns its descriptor: construction takes the descriptor
// over and Close releases it exactly once. All operations block until
// they complete or fail; reads and writes interrupted by signals are
// retried transparently. There is no timeout mode at this layer.
// Callers that need bounded waits should poll [Channel.Fd] for
// readiness first or run the channel on a dedicated goroutine.
//
// A Channel is not safe for concurrent use. A program that shares one
// channel between goroutines must serialize access itself.
package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

const (
	// MaxFieldLength is the largest field the structured codec can
	// carry. The per-field length prefix is a single byte.
	MaxFieldLength = 255

	// MaxPayloadLength is the largest structured-message payload and
	// the largest raw blob. Both length prefixes are 16-bit.
	MaxPayloadLength = 65535
)

// lengthPrefixSize is the width of the big-endian length prefix that
// opens every structured and raw frame.
const lengthPrefixSize = 2

// Errors returned by channel operations. Read operations additionally
// return io.EOF when the peer closes the stream cleanly, meaning at a
// frame boundary; io.EOF is a termination signal, not a failure.
var (
	// ErrClosed is returned by every operation on a closed channel.
	ErrClosed = errors.New("channel: channel is closed")

	// ErrNotSocket is returned by the descriptor transfer operations
	// when the channel descriptor cannot carry SCM_RIGHTS ancillary
	// data: a pipe, a regular file, or a non-Unix-domain socket.
	ErrNotSocket = errors.New("channel: descriptor transfer requires a Unix domain socket")

	// ErrProtocol is returned when received bytes do not form a valid
	// frame, including when the stream ends in the middle of one.
	ErrProtocol = errors.New("channel: protocol violation")

	// ErrNoDescriptor is returned by ReceiveDescriptor when the peer's
	// marker byte arrived without an attached descriptor. It wraps
	// ErrProtocol: the condition is a protocol violation by the peer,
	// matchable on its own when callers need to tell it apart.
	ErrNoDescriptor = fmt.Errorf("marker byte arrived without a descriptor: %w", ErrProtocol)

	// ErrFieldTooLong is returned when a field exceeds MaxFieldLength.
	// Rejected messages leave no bytes on the stream.
	ErrFieldTooLong = errors.New("channel: field exceeds maximum field length")

	// ErrPayloadTooLarge is returned when an encoded message or raw
	// blob exceeds MaxPayloadLength. Rejected payloads leave no bytes
	// on the stream.
	ErrPayloadTooLarge = errors.New("channel: payload exceeds maximum payload length")
)

// Channel is a message channel over one duplex descriptor. The zero
// value is not usable; construct with New.
type Channel struct {
	fd     int
	socket bool
	closed bool
}

// New wraps an already-open descriptor in a Channel and takes
// ownership of it: from here on the channel closes it, the caller must
// not. The descriptor is probed at construction to learn whether it
// can carry descriptor transfers: fstat tells sockets apart from pipes
// and files, and SO_DOMAIN narrows sockets to the Unix domain, since
// SCM_RIGHTS rides only AF_UNIX sockets and a TCP-backed channel must
// be rejected at the interface, not by a late sendmsg failure. On
// error the descriptor remains open and owned by the caller.
func New(fd int) (*Channel, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, fmt.Errorf("channel: fstat descriptor %d: %w", fd, err)
	}
	unixSocket := false
	if stat.Mode&unix.S_IFMT == unix.S_IFSOCK {
		domain, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DOMAIN)
		if err != nil {
			return nil, fmt.Errorf("channel: probe socket domain of descriptor %d: %w", fd, err)
		}
		unixSocket = domain == unix.AF_UNIX
	}
	return &Channel{
		fd:     fd,
		socket: unixSocket,
	}, nil
}

// Fd returns the wrapped descriptor number, or -1 after Close. It
// exists so callers can poll the descriptor for readiness before a
// blocking read. Performing I/O on it directly would desynchronize
// the frame stream.
func (c *Channel) Fd() int {
	if c.closed {
		return -1
	}
	return c.fd
}

// SupportsDescriptorTransfer reports whether SendDescriptor and
// ReceiveDescriptor can work on this channel, which requires the
// wrapped descriptor to be a Unix domain socket. The answer is fixed
// at construction; a descriptor's type cannot change.
func (c *Channel) SupportsDescriptorTransfer() bool {
	return c.socket
}

// Close releases the channel's descriptor. The first call closes it;
// later calls return nil without touching the descriptor number again,
// so a number recycled by the OS for an unrelated resource is never
// closed twice.
func (c *Channel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	fd := c.fd
	c.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("channel: close descriptor %d: %w", fd, err)
	}
	return nil
}

// readFull reads exactly len(buffer) bytes from the descriptor,
// retrying reads interrupted by signals and continuing across short
// reads. It mirrors io.ReadFull semantics: io.EOF when the stream ends
// before the first byte, io.ErrUnexpectedEOF when it ends after some
// bytes but before all of them. The returned count is the number of
// bytes read before any error.
func (c *Channel) readFull(buffer []byte) (int, error) {
	total := 0
	for total < len(buffer) {
		n, err := unix.Read(c.fd, buffer[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return total, err
		}
		if n == 0 {
			if total == 0 {
				return 0, io.EOF
			}
			return total, io.ErrUnexpectedEOF
		}
		total += n
	}
	return total, nil
}

// writeFull writes all of buffer to the descriptor, retrying writes
// interrupted by signals and continuing across short writes. A write
// against a peer that has closed its end fails with EPIPE.
func (c *Channel) writeFull(buffer []byte) error {
	written := 0
	for written < len(buffer) {
		n, err := unix.Write(c.fd, buffer[written:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		written += n
	}
	return nil
}

// readFrame reads one length-prefixed frame and returns its payload.
// Both the structured and the raw path share this outer shape: a
// 16-bit big-endian length followed by that many payload bytes.
//
// io.EOF surfaces only when the stream ends exactly on a frame
// boundary, before the first prefix byte. An end-of-stream anywhere
// inside a frame is a protocol violation: the peer quit mid-message.
func (c *Channel) readFrame() ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := c.readFull(prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("stream ended inside a length prefix: %w", ErrProtocol)
		}
		return nil, fmt.Errorf("read length prefix: %w", err)
	}
	payloadLength := int(binary.BigEndian.Uint16(prefix[:]))
	payload := make([]byte, payloadLength)
	if payloadLength == 0 {
		return payload, nil
	}
	count, err := c.readFull(payload)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("stream ended after %d of %d payload bytes: %w", count, payloadLength, ErrProtocol)
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}
