// Copyright (c) 2017 The Decred developers
// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// zero overwrites the passed byte slice with zeros.
func zero(b []byte) {
	for i := range b {
		b[i] = 0x00
	}
}

// promptSecretKey reads the secret key of pub from the terminal without
// echoing it.  It fails when stdin is not a terminal.
func promptSecretKey(pub string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no secret key configured and stdin is not " +
			"a terminal")
	}
	fmt.Fprintf(os.Stderr, "Secret key of %s: ", pub)
	secret, err := term.ReadPassword(fd)
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return "", fmt.Errorf("unable to read secret key: %w", err)
	}
	defer zero(secret)
	return strings.TrimSpace(string(secret)), nil
}
