// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

// Msgchannel-dump inspects a captured channel byte stream offline. It
// reads a capture from a file argument or stdin and prints one line
// per frame.
//
// The capture must hold frames of a single shape, chosen with
// --format: "message" parses each payload as an ordered field list,
// "raw" leaves payloads opaque and prints them in hex. With --diag,
// raw payloads that parse as CBOR are rendered in RFC 8949 diagnostic
// notation instead of hex, which is how the diagnostic peer's status
// replies read best.
//
// A capture that ends inside a frame, or whose payload does not parse
// under the chosen format, is rejected with the same protocol errors a
// live channel reports. Frame shapes share one wire layout, so dumping
// a message capture as raw succeeds and just shows encoded bytes,
// while dumping a raw capture as message usually fails: the channel
// never guesses the shape, and neither does this tool.
package main
