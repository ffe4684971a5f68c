// Copyright 2022 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSingle(t *testing.T) {
	buf := []byte("5\r\nhello\r\n0\r\n\r\n")
	var c ChunkCursor

	tok := ParseChunk(&c, buf, len(buf))
	require.Equal(t, KindChunkBody, tok.Kind)
	assert.Equal(t, "hello", string(tok.Get(buf)))

	tok = ParseChunk(&c, buf, len(buf))
	require.Equal(t, KindChunkBody, tok.Kind)
	assert.Equal(t, 0, tok.Length)
}

func TestChunkExtension(t *testing.T) {
	buf := []byte("5;foo=bar\r\nhello\r\n0\r\n\r\n")
	var c ChunkCursor
	tok := ParseChunk(&c, buf, len(buf))
	require.Equal(t, KindChunkBody, tok.Kind)
	assert.Equal(t, "hello", string(tok.Get(buf)))
}

func TestChunkIncremental(t *testing.T) {
	buf := []byte("5\r\nhello\r\n0\r\n\r\n")
	var c ChunkCursor
	var got []Token
	for n := 1; n <= len(buf); n++ {
		for {
			tok := ParseChunk(&c, buf, n)
			if tok.Kind == KindNone {
				break
			}
			got = append(got, tok)
		}
	}
	require.Len(t, got, 2)
	assert.Equal(t, "hello", string(got[0].Get(buf)))
	assert.Equal(t, 0, got[1].Length)
}

func TestChunkBadSizeLine(t *testing.T) {
	buf := []byte("zzz\r\n")
	var c ChunkCursor
	tok := ParseChunk(&c, buf, len(buf))
	require.Equal(t, KindParseError, tok.Kind)
	assert.Equal(t, ErrBadRequest, tok.Err())
}

func TestChunkRecycleBoundsMemory(t *testing.T) {
	buf := make([]byte, 64)
	n := copy(buf, "3\r\nabc\r\n")
	var c ChunkCursor

	tok := ParseChunk(&c, buf, n)
	require.Equal(t, KindChunkBody, tok.Kind)
	assert.Equal(t, "abc", string(tok.Get(buf)))

	// drive past the trailing CRLF; nothing is ready until the next
	// chunk's size line appears.
	tok = ParseChunk(&c, buf, n)
	require.Equal(t, KindNone, tok.Kind)

	// the chunk and its trailer are now fully consumed; recycle reclaims
	// the whole buffer.
	start := c.Recycle()
	live := n - start
	copy(buf, buf[start:n])
	assert.Equal(t, 0, live, "fully consumed chunk + trailer leaves nothing live")

	more := copy(buf[live:], "2\r\nhi\r\n0\r\n\r\n")
	tok = ParseChunk(&c, buf, live+more)
	require.Equal(t, KindChunkBody, tok.Kind)
	assert.Equal(t, "hi", string(tok.Get(buf)))
}

func TestChunkRecyclePartialSizeLine(t *testing.T) {
	buf := make([]byte, 32)
	n := copy(buf, "3\r\nabc\r\n1")
	var c ChunkCursor

	tok := ParseChunk(&c, buf, n)
	require.Equal(t, KindChunkBody, tok.Kind)

	// drives past the chunk's trailing CRLF into the next (incomplete)
	// size line; no token is ready yet.
	tok = ParseChunk(&c, buf, n)
	require.Equal(t, KindNone, tok.Kind)

	start := c.Recycle()
	live := n - start
	copy(buf, buf[start:n])
	// the trailing partial "1" of the next size line must survive the recycle
	require.Equal(t, 1, live)
	assert.Equal(t, byte('1'), buf[0])
}
