// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the module's standard CBOR encoding
// configuration.
//
// The message channel's structured path carries short text fields; its
// raw-blob path carries opaque payloads. When those payloads need
// structure (the diagnostic peer's status replies, anything a cross
// language deployment wants to type), they are CBOR, and this package
// is the single place that configures how.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes, which keeps
// payloads comparable across processes and languages.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// [Diagnose] and [DiagnoseFirst] render encoded payloads in CBOR
// diagnostic notation for humans; the msgchannel-dump tool uses them
// to show raw-frame contents.
package codec
