// Copyright 2026 The Procwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for msgchannel
// binaries. [Fatal] is the standard handler for errors escaping run()
// in main(): library code returns wrapped errors and never prints or
// exits, so the final report to stderr happens in exactly one place.
package process
