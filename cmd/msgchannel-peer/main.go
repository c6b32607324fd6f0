// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/procwire/msgchannel/channel"
	"github.com/procwire/msgchannel/lib/process"
	"github.com/procwire/msgchannel/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		descriptor  int
		mode        string
		showVersion bool
	)

	flag.IntVar(&descriptor, "fd", 3, "channel descriptor inherited from the parent process")
	flag.StringVar(&mode, "mode", "echo", "peer behavior: echo, suffix, recv-fd, or status")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("msgchannel-peer %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ch, err := channel.New(descriptor)
	if err != nil {
		return fmt.Errorf("wrap descriptor %d: %w", descriptor, err)
	}
	defer ch.Close()

	logger.Info("peer started", "fd", descriptor, "mode", mode,
		"descriptor_transfer", ch.SupportsDescriptorTransfer())
	return servePeer(logger, ch, mode)
}
