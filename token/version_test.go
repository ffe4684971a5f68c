// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in              string
		major, minor    int
		ok              bool
	}{
		{"HTTP/1.1", 1, 1, true},
		{"HTTP/1.0", 1, 0, true},
		{"HTTP/2.0", 2, 0, true},
		{"HTTP/10.25", 10, 25, true},
		{"HTTP/1.", 0, 0, false},
		{"HTTP/.1", 0, 0, false},
		{"HTTP1.1", 0, 0, false},
		{"HTTP/1.1x", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, c := range cases {
		major, minor, ok := ParseVersion([]byte(c.in))
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		if c.ok {
			assert.Equal(t, c.major, major, "input %q", c.in)
			assert.Equal(t, c.minor, minor, "input %q", c.in)
		}
	}
}

func TestAtLeast11(t *testing.T) {
	assert.True(t, AtLeast11([]byte("HTTP/1.1")))
	assert.True(t, AtLeast11([]byte("HTTP/2.0")))
	assert.False(t, AtLeast11([]byte("HTTP/1.0")))
	assert.False(t, AtLeast11([]byte("garbage")))
}
