// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the binaries' exit conventions.
//
//	func main() {
//	    if err := run(); err != nil {
//	        process.Fatal(err)
//	    }
//	}
//
// A daemon that loses its relay subscription returns the fatal error
// from run and exits 1; the supervisor restarts it.
package process
