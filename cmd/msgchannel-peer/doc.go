// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

// Msgchannel-peer is a diagnostic peer for message channels. It speaks
// the channel protocol on a descriptor inherited from its parent (fd 3
// by convention, the first os/exec.ExtraFiles slot) and behaves
// according to --mode:
//
//   - echo: write every received message back unchanged
//   - suffix: write every received message back with "!!" appended to
//     each field, so replies are distinguishable from requests
//   - recv-fd: receive one transferred descriptor, write a greeting
//     message through it, close it, exit
//   - status: count non-empty messages; an empty message is a status
//     request answered on the raw-blob path with a CBOR map
//
// Use it to exercise a channel implementation in another language or
// as the subprocess half of an integration test.
package main
