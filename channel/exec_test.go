// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/procwire/msgchannel/lib/testutil"
)

// peerModeEnv selects peer behavior when the test binary re-executes
// itself as the other end of a channel. The child process inherits the
// channel descriptor as fd 3 and never runs any tests.
const peerModeEnv = "MSGCHANNEL_TEST_PEER_MODE"

func TestMain(m *testing.M) {
	if mode := os.Getenv(peerModeEnv); mode != "" {
		os.Exit(testPeerMain(mode))
	}
	os.Exit(m.Run())
}

// testPeerMain is the child side of the cross-process tests.
func testPeerMain(mode string) int {
	ch, err := New(3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "test peer: wrap fd 3: %v\n", err)
		return 1
	}
	defer ch.Close()

	switch mode {
	case "echo", "suffix":
		for {
			fields, err := ch.ReadMessage()
			if errors.Is(err, io.EOF) {
				return 0
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "test peer: read: %v\n", err)
				return 1
			}
			if mode == "suffix" {
				for i := range fields {
					fields[i] += "!!"
				}
			}
			if err := ch.WriteMessage(fields); err != nil {
				fmt.Fprintf(os.Stderr, "test peer: write: %v\n", err)
				return 1
			}
		}
	case "recv-fd":
		fd, err := ch.ReceiveDescriptor()
		if err != nil {
			fmt.Fprintf(os.Stderr, "test peer: receive descriptor: %v\n", err)
			return 1
		}
		out, err := New(fd)
		if err != nil {
			unix.Close(fd)
			fmt.Fprintf(os.Stderr, "test peer: wrap received descriptor: %v\n", err)
			return 1
		}
		if err := out.Write("hello"); err != nil {
			out.Close()
			fmt.Fprintf(os.Stderr, "test peer: write through received descriptor: %v\n", err)
			return 1
		}
		if err := out.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "test peer: close received descriptor: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "test peer: unknown mode %q\n", mode)
		return 1
	}
}

// startPeer re-executes the test binary as a channel peer in the given
// mode and returns the parent's end of the socketpair plus the running
// process. The child end travels as fd 3 via ExtraFiles.
func startPeer(t *testing.T, mode string) (*Channel, *exec.Cmd) {
	t.Helper()
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	parent := mustChannel(t, pair[0])
	childEnd := os.NewFile(uintptr(pair[1]), "peer-channel")

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), peerModeEnv+"="+mode)
	cmd.ExtraFiles = []*os.File{childEnd}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		childEnd.Close()
		t.Fatalf("start peer process: %v", err)
	}
	childEnd.Close()
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})
	return parent, cmd
}

// waitPeer waits for the peer process to exit cleanly, with a timeout
// so a protocol bug hangs the peer, not the test run.
func waitPeer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	if err := testutil.RequireReceive(t, done, 10*time.Second, "peer process exit"); err != nil {
		t.Fatalf("peer process: %v", err)
	}
}

func TestPeerProcessEcho(t *testing.T) {
	t.Parallel()
	ch, cmd := startPeer(t, "echo")

	exchanges := [][]string{
		{"hello", "world", "!"},
		{"hello", "world with whitespaces", "!!!"},
		{},
		{"last", "one"},
	}
	for _, fields := range exchanges {
		if err := ch.WriteMessage(fields); err != nil {
			t.Fatalf("WriteMessage %q: %v", fields, err)
		}
		got, err := ch.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage echo of %q: %v", fields, err)
		}
		if !slices.Equal(got, fields) {
			t.Errorf("echo: got %q, want %q", got, fields)
		}
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitPeer(t, cmd)
}

func TestPeerProcessSuffix(t *testing.T) {
	t.Parallel()
	ch, cmd := startPeer(t, "suffix")

	if err := ch.Write("hello", "world"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ch.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	want := []string{"hello!!", "world!!"}
	if !slices.Equal(got, want) {
		t.Errorf("suffixed echo: got %q, want %q", got, want)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitPeer(t, cmd)
}

// TestPeerProcessReceivesDescriptor hands a pipe's write end to a
// child process over the channel; the child writes a message through
// the received descriptor and the parent reads it from the pipe's read
// end.
func TestPeerProcessReceivesDescriptor(t *testing.T) {
	t.Parallel()
	ch, cmd := startPeer(t, "recv-fd")

	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	pipeReader := mustChannel(t, pipe[0])

	if err := ch.SendDescriptor(pipe[1]); err != nil {
		unix.Close(pipe[1])
		t.Fatalf("SendDescriptor: %v", err)
	}
	unix.Close(pipe[1])

	got, err := pipeReader.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage from pipe: %v", err)
	}
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("message from child: got %q, want [\"hello\"]", got)
	}

	// The child closes its copy after writing and the parent's
	// original is already closed, so the pipe drains to a clean end
	// of stream.
	if _, err := pipeReader.ReadMessage(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadMessage after child closed: got %v, want io.EOF", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitPeer(t, cmd)
}

func TestPeerProcessCleanShutdown(t *testing.T) {
	t.Parallel()
	ch, cmd := startPeer(t, "echo")
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitPeer(t, cmd)
}
