// Copyright (c) 2017-2022 The Decred developers
// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

import (
	_ "embed"
)

// samplePowdConf is a string containing the commented example config for
// powd.
//
//go:embed sample-powd.conf
var samplePowdConf string

// Powd returns a string containing the commented example config for powd.
func Powd() string {
	return samplePowdConf
}
