// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version houses the version information of powd.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// semanticAlphabet defines the allowed characters for the pre-release and
// build metadata portions of a semantic version string.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

// semverRE parses a semantic version string into its constituent parts.
var semverRE = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?` +
	`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

var (
	// Version is the application version per the semantic versioning 2.0.0
	// spec (https://semver.org/).
	//
	// It may be overridden at build time with:
	// '-ldflags "-X github.com/ucoin/powd/internal/version.Version=fullsemver"'
	Version = "0.1.0-pre"

	// These fields are set at init by parsing Version.
	Major         uint
	Minor         uint
	Patch         uint
	PreRelease    string
	BuildMetadata string
)

// parseSemVer parses the semver components of s.
func parseSemVer(s string) (uint, uint, uint, string, string, error) {
	m := semverRE.FindStringSubmatch(s)
	if m == nil {
		err := fmt.Errorf("malformed version string %q: does not conform to "+
			"semver specification", s)
		return 0, 0, 0, "", "", err
	}
	var nums [3]uint
	for i, name := range []string{"major", "minor", "patch"} {
		val, err := strconv.ParseUint(m[i+1], 10, 0)
		if err != nil {
			return 0, 0, 0, "", "", fmt.Errorf("malformed semver %s: %w",
				name, err)
		}
		nums[i] = uint(val)
	}
	return nums[0], nums[1], nums[2], m[4], m[5], nil
}

func init() {
	var err error
	Major, Minor, Patch, PreRelease, BuildMetadata, err = parseSemVer(Version)
	if err != nil {
		panic(err)
	}
}

// String returns the application version.  The commit the binary was built
// from is appended as build metadata when the version carries none.
func String() string {
	if BuildMetadata != "" {
		return Version
	}
	if commit := NormalizeString(vcsCommitID()); commit != "" {
		return Version + "+" + commit
	}
	return Version
}

// NormalizeString returns the passed string stripped of all characters which
// are not valid in pre-release and build metadata strings.
func NormalizeString(str string) string {
	var sb strings.Builder
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
