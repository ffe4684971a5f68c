// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHeadResponseMatchesS1(t *testing.T) {
	resp := NewResponse().Status(200).Body([]byte("hi"))
	out := buildHeadResponse(nil, resp, "Mon Jan  2 15:04:05 2006", true)
	require.Equal(t,
		"HTTP/1.1 200 OK\r\n"+
			"Date: Mon Jan  2 15:04:05 2006\r\n"+
			"Connection: keep-alive\r\n"+
			"Content-Length: 2\r\n"+
			"\r\n"+
			"hi",
		string(out))
}

func TestBuildHeadResponseClose(t *testing.T) {
	resp := NewResponse().Status(204)
	out := buildHeadResponse(nil, resp, "date", false)
	require.Contains(t, string(out), "Connection: close\r\n")
	require.Contains(t, string(out), "Content-Length: 0\r\n")
}

func TestBuildHeadResponseAppHeadersInOrder(t *testing.T) {
	resp := NewResponse().Status(200).
		Header("X-A", "1").
		Header("X-B", "2").
		Header("X-A", "3")
	out := string(buildHeadResponse(nil, resp, "date", true))
	ia := indexOf(out, "X-A: 1\r\n")
	ib := indexOf(out, "X-B: 2\r\n")
	ia2 := indexOf(out, "X-A: 3\r\n")
	require.True(t, ia >= 0 && ib > ia && ia2 > ib, "headers must appear in the order Header() was called, repeats included:\n%s", out)
}

func TestChunkedResponseFramingMatchesS6(t *testing.T) {
	resp := NewResponse().Status(200).Body([]byte("a"))
	head := buildChunkedHeadResponse(nil, resp, "date", true)
	require.Contains(t, string(head), "Transfer-Encoding: chunked\r\n")
	require.NotContains(t, string(head), "Content-Length")

	buf := append(head, writeChunkFrame(nil, []byte("a"))...)
	buf = append(buf, writeChunkFrame(nil, []byte("bc"))...)
	buf = append(buf, writeChunkTrailer(nil, nil)...)

	require.Contains(t, string(buf), "1\r\na\r\n2\r\nbc\r\n0\r\n\r\n")
}

func TestChunkTrailerCarriesTrailerHeaders(t *testing.T) {
	out := string(writeChunkTrailer(nil, []HeaderField{{Key: "X-Checksum", Value: "abc"}}))
	require.Equal(t, "0\r\nX-Checksum: abc\r\n\r\n", out)
}

func TestNormalizeStatusOutOfRangeBecomes500(t *testing.T) {
	for _, code := range []int{0, 99, 600, 999} {
		got, reason := normalizeStatus(code)
		assert.Equal(t, 500, got, "status %d", code)
		assert.Equal(t, "Internal Server Error", reason, "status %d", code)
	}
}

func TestNormalizeStatusInRangeUnknownReasonEmpty(t *testing.T) {
	got, reason := normalizeStatus(207)
	assert.Equal(t, 207, got)
	assert.Equal(t, "", reason)
}

func TestNormalizeStatusKnownKeepsReason(t *testing.T) {
	got, reason := normalizeStatus(404)
	assert.Equal(t, 404, got)
	assert.Equal(t, "Not Found", reason)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
