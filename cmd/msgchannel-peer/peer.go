// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/procwire/msgchannel/channel"
	"github.com/procwire/msgchannel/lib/codec"
)

// statusReply is the CBOR payload sent on the raw-blob path when a
// status request (an empty structured message) arrives in status mode.
type statusReply struct {
	// Mode echoes the peer's --mode so the requester can confirm it
	// is talking to the behavior it expects.
	Mode string `cbor:"mode"`

	// Messages is the number of non-empty structured messages the
	// peer has received so far. Status requests are not counted.
	Messages int `cbor:"messages"`
}

// servePeer drives one channel until the parent closes it or the
// mode's work is done. A clean end of stream is a normal exit.
func servePeer(logger *slog.Logger, ch *channel.Channel, mode string) error {
	switch mode {
	case "echo":
		return echoLoop(logger, ch, "")
	case "suffix":
		return echoLoop(logger, ch, "!!")
	case "recv-fd":
		return receiveAndGreet(logger, ch)
	case "status":
		return statusLoop(logger, ch)
	default:
		return fmt.Errorf("unknown mode %q (want echo, suffix, recv-fd, or status)", mode)
	}
}

// echoLoop writes every received message back with suffix appended to
// each field. The empty suffix is a plain echo.
func echoLoop(logger *slog.Logger, ch *channel.Channel, suffix string) error {
	echoed := 0
	for {
		fields, err := ch.ReadMessage()
		if errors.Is(err, io.EOF) {
			logger.Info("peer finished", "messages", echoed)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		for i := range fields {
			fields[i] += suffix
		}
		if err := ch.WriteMessage(fields); err != nil {
			return fmt.Errorf("write echo: %w", err)
		}
		echoed++
	}
}

// receiveAndGreet accepts one transferred descriptor, writes a
// greeting message through it, and closes it.
func receiveAndGreet(logger *slog.Logger, ch *channel.Channel) error {
	fd, err := ch.ReceiveDescriptor()
	if err != nil {
		return fmt.Errorf("receive descriptor: %w", err)
	}
	out, err := channel.New(fd)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("wrap received descriptor: %w", err)
	}
	if err := out.Write("hello"); err != nil {
		out.Close()
		return fmt.Errorf("write through received descriptor: %w", err)
	}
	logger.Info("greeted through received descriptor", "fd", fd)
	if err := out.Close(); err != nil {
		return fmt.Errorf("close received descriptor: %w", err)
	}
	return nil
}

// statusLoop counts non-empty messages and answers empty ones with a
// CBOR status reply on the raw-blob path.
func statusLoop(logger *slog.Logger, ch *channel.Channel) error {
	seen := 0
	for {
		fields, err := ch.ReadMessage()
		if errors.Is(err, io.EOF) {
			logger.Info("peer finished", "messages", seen)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		if len(fields) > 0 {
			seen++
			continue
		}
		payload, err := codec.Marshal(statusReply{Mode: "status", Messages: seen})
		if err != nil {
			return fmt.Errorf("encode status reply: %w", err)
		}
		if err := ch.WriteRaw(payload); err != nil {
			return fmt.Errorf("write status reply: %w", err)
		}
	}
}
