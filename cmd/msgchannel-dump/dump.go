// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/procwire/msgchannel/channel"
	"github.com/procwire/msgchannel/lib/codec"
)

// options selects how dumpStream interprets and renders frames.
type options struct {
	// format is the frame shape in the capture: "message" for
	// structured field lists, "raw" for opaque blobs.
	format string

	// diagnose renders raw payloads that parse as CBOR in diagnostic
	// notation instead of hex. Meaningful only with format "raw".
	diagnose bool
}

// dumpStream reads length-prefixed frames from r until end of stream
// and writes one line per frame to w. The capture has to end exactly
// on a frame boundary; anything else fails with the channel's own
// protocol error, so a capture is judged by the live rules.
func dumpStream(w io.Writer, r io.Reader, opts options) error {
	if opts.format != "message" && opts.format != "raw" {
		return fmt.Errorf("unknown format %q (want message or raw)", opts.format)
	}
	for index := 0; ; index++ {
		payload, err := readFrame(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}
		line, err := formatFrame(index, payload, opts)
		if err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
}

// readFrame reads one frame from the capture: a 16-bit big-endian
// length followed by that many payload bytes. io.EOF means the capture
// ended cleanly before this frame began; a capture that ends inside a
// frame is a protocol violation, exactly as on a live channel.
func readFrame(r io.Reader) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("capture ends inside a length prefix: %w", channel.ErrProtocol)
		}
		return nil, fmt.Errorf("read length prefix: %w", err)
	}
	payload := make([]byte, binary.BigEndian.Uint16(prefix[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("capture ends inside a %d-byte payload: %w", len(payload), channel.ErrProtocol)
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}

// formatFrame renders one frame payload as a single output line.
func formatFrame(index int, payload []byte, opts options) (string, error) {
	if opts.format == "message" {
		fields, err := channel.ParseMessage(payload)
		if err != nil {
			return "", err
		}
		var line strings.Builder
		fmt.Fprintf(&line, "frame %d: %d fields", index, len(fields))
		for _, field := range fields {
			fmt.Fprintf(&line, " %q", field)
		}
		return line.String(), nil
	}

	if len(payload) == 0 {
		return fmt.Sprintf("frame %d: 0 bytes", index), nil
	}
	if opts.diagnose {
		if notation, err := codec.Diagnose(payload); err == nil {
			return fmt.Sprintf("frame %d: %d bytes %s", index, len(payload), notation), nil
		}
		// Not CBOR; hex below.
	}
	return fmt.Sprintf("frame %d: %d bytes %x", index, len(payload), payload), nil
}
