// Copyright (c) 2021 The Decred developers
// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import (
	"strings"
	"testing"
)

// TestSemVerParsing ensures parsing a semantic version string works as
// expected.
func TestSemVerParsing(t *testing.T) {
	tests := []struct {
		ver     string
		major   uint
		minor   uint
		patch   uint
		pre     string
		build   string
		invalid bool
	}{
		{ver: "0.1.0-pre", minor: 1, pre: "pre"},
		{ver: "1.2.3", major: 1, minor: 2, patch: 3},
		{ver: "1.1.2-rc.1+release.local", major: 1, minor: 1, patch: 2,
			pre: "rc.1", build: "release.local"},
		{ver: "1.0.0+0a1b2c3d4", major: 1, build: "0a1b2c3d4"},
		{ver: "1.2", invalid: true},
		{ver: "01.1.1", invalid: true},
		{ver: "1.2.3-", invalid: true},
		{ver: "1.2.3+meta_data", invalid: true},
	}

	for _, test := range tests {
		major, minor, patch, pre, build, err := parseSemVer(test.ver)
		if test.invalid {
			if err == nil {
				t.Errorf("%q: expected error", test.ver)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", test.ver, err)
			continue
		}
		if major != test.major || minor != test.minor ||
			patch != test.patch || pre != test.pre || build != test.build {

			t.Errorf("%q: got %d.%d.%d-%s+%s", test.ver, major, minor, patch,
				pre, build)
		}
	}
}

// TestString ensures the version string starts with the configured version.
func TestString(t *testing.T) {
	if !strings.HasPrefix(String(), Version) {
		t.Fatalf("version %q does not start with %q", String(), Version)
	}
	if got := NormalizeString("a_b c+d.e"); got != "abcd.e" {
		t.Fatalf("unexpected normalized string %q", got)
	}
}
