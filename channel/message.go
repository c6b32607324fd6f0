// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Structured frame layout, integers big-endian:
//
//	[total length: u16] [field length: u8] [field bytes] ... repeated
//
// The total length covers the encoded fields, not itself, and equals
// the sum of (1 + len(field)) over all fields. A total length of zero
// is a legal frame carrying zero fields. Field bytes are raw: any
// value is allowed, including spaces and NUL, because the length
// prefixes make delimiters and escaping unnecessary.

// AppendMessage appends the frame encoding of fields to dst and
// returns the extended slice. Size bounds are checked before anything
// is appended: a field longer than MaxFieldLength fails with
// ErrFieldTooLong, an encoded payload longer than MaxPayloadLength
// fails with ErrPayloadTooLarge, and in both cases dst is left
// untouched.
func AppendMessage(dst []byte, fields []string) ([]byte, error) {
	payloadLength := 0
	for index, field := range fields {
		if len(field) > MaxFieldLength {
			return nil, fmt.Errorf("field %d is %d bytes (maximum %d): %w", index, len(field), MaxFieldLength, ErrFieldTooLong)
		}
		payloadLength += 1 + len(field)
	}
	if payloadLength > MaxPayloadLength {
		return nil, fmt.Errorf("encoded payload is %d bytes (maximum %d): %w", payloadLength, MaxPayloadLength, ErrPayloadTooLarge)
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(payloadLength))
	for _, field := range fields {
		dst = append(dst, byte(len(field)))
		dst = append(dst, field...)
	}
	return dst, nil
}

// ParseMessage parses a structured frame payload, the bytes after the
// total-length prefix, into its ordered fields. A field whose declared
// length overruns the end of the payload is a protocol violation. The
// empty payload parses to an empty, non-nil field list.
func ParseMessage(payload []byte) ([]string, error) {
	fields := []string{}
	for offset := 0; offset < len(payload); {
		fieldLength := int(payload[offset])
		offset++
		if offset+fieldLength > len(payload) {
			return nil, fmt.Errorf("field of %d bytes at offset %d overruns payload of %d bytes: %w",
				fieldLength, offset-1, len(payload), ErrProtocol)
		}
		fields = append(fields, string(payload[offset:offset+fieldLength]))
		offset += fieldLength
	}
	return fields, nil
}

// WriteMessage encodes fields as one structured frame and writes it to
// the stream. The frame is built in memory first, so a message that
// violates the size bounds is rejected before any byte reaches the
// peer and the stream stays clean.
func (c *Channel) WriteMessage(fields []string) error {
	if c.closed {
		return fmt.Errorf("write message: %w", ErrClosed)
	}
	frame, err := AppendMessage(nil, fields)
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := c.writeFull(frame); err != nil {
		return fmt.Errorf("write message frame: %w", err)
	}
	return nil
}

// Write is the variadic form of WriteMessage:
//
//	channel.Write("status", "ready")
func (c *Channel) Write(fields ...string) error {
	return c.WriteMessage(fields)
}

// ReadMessage reads one structured frame and returns its fields in
// wire order. io.EOF means the peer closed cleanly before the frame
// began and no more messages will arrive; an empty message comes back
// as an empty slice with a nil error, which is a different outcome. A
// stream that ends inside a frame fails with ErrProtocol.
func (c *Channel) ReadMessage() ([]string, error) {
	if c.closed {
		return nil, fmt.Errorf("read message: %w", ErrClosed)
	}
	payload, err := c.readFrame()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read message: %w", err)
	}
	fields, err := ParseMessage(payload)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return fields, nil
}
