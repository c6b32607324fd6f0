// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/procwire/msgchannel/lib/process"
	"github.com/procwire/msgchannel/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("msgchannel-dump", pflag.ContinueOnError)
	flagSet.StringVar(&opts.format, "format", "message", "frame shape in the capture: message or raw")
	flagSet.BoolVar(&opts.diagnose, "diag", false, "render raw payloads that parse as CBOR in diagnostic notation")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other
	// msgchannel binaries. The detailed form includes the Go version
	// and platform, which capture reports usually need.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("msgchannel-dump %s\n", version.Full())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) > 1 {
		return fmt.Errorf("expected at most one capture file, got %d arguments", len(args))
	}
	var input io.Reader = os.Stdin
	if len(args) == 1 {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open capture: %w", err)
		}
		defer file.Close()
		input = file
	}

	return dumpStream(os.Stdout, bufio.NewReader(input), opts)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Msgchannel capture inspector — print the frames of a recorded stream.

Reads a capture from the given file (or stdin) and prints one line per
frame. The capture must end exactly on a frame boundary; a truncated
capture is rejected with the same protocol error a live channel would
report.

Usage:
  msgchannel-dump [flags] [capture-file]

Examples:
  # Dump structured message frames from a capture file
  msgchannel-dump session.bin

  # Dump raw blob frames from stdin
  socat -u UNIX-CONNECT:peer.sock - | msgchannel-dump --format raw

  # Render CBOR status payloads in diagnostic notation
  msgchannel-dump --format raw --diag status.bin

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
