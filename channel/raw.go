// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Raw frame layout, integers big-endian:
//
//	[length: u16] [raw bytes]
//
// The raw path shares the transport and the outer length prefix with
// the structured codec but carries the payload verbatim, with no field
// segmentation. The two frame shapes are indistinguishable on the
// wire, so sender and receiver must agree out of band on which path a
// given exchange uses; the channel never infers it from the bytes.

// WriteRaw writes p as one raw frame. A blob longer than
// MaxPayloadLength is rejected with ErrPayloadTooLarge before any byte
// reaches the peer. An empty blob is legal and reads back as an empty
// payload, not as end-of-stream.
func (c *Channel) WriteRaw(p []byte) error {
	if c.closed {
		return fmt.Errorf("write blob: %w", ErrClosed)
	}
	if len(p) > MaxPayloadLength {
		return fmt.Errorf("write blob: blob is %d bytes (maximum %d): %w", len(p), MaxPayloadLength, ErrPayloadTooLarge)
	}
	frame := make([]byte, 0, lengthPrefixSize+len(p))
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(p)))
	frame = append(frame, p...)
	if err := c.writeFull(frame); err != nil {
		return fmt.Errorf("write blob frame: %w", err)
	}
	return nil
}

// ReadRaw reads one raw frame and returns its payload in a fresh
// buffer. io.EOF means the peer closed cleanly before the frame began.
// A stream that ends inside the frame fails with ErrProtocol.
func (c *Channel) ReadRaw() ([]byte, error) {
	if c.closed {
		return nil, fmt.Errorf("read blob: %w", ErrClosed)
	}
	payload, err := c.readFrame()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return payload, nil
}
