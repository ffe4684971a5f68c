// Copyright 2022 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package token

// chunked-body parser states (see spec §4.B).
type cstate uint8

const (
	cstSize cstate = iota // reading hex chunk-size digits
	cstExtn               // ';' seen, skipping chunk extensions
	cstSizeLF              // expect the LF that ends the size line
	cstBody                // waiting for the declared chunk body bytes
	cstBodyCR               // consumed chunk body, expect CR
	cstBodyLF               // consumed CR, expect LF (then back to cstSize)
)

// ChunkCursor is the reentrant parsing state for one "Transfer-Encoding:
// chunked" body. Unlike Cursor (request headers), it is driven explicitly
// by the application via Request.ReadChunk, one chunk at a time.
type ChunkCursor struct {
	state cstate

	cursor int // next unconsumed byte in the owning buffer

	size int64 // chunk size accumulated so far while in cstSize
	// lineStart is the offset in the owning buffer where the
	// currently-in-progress (or about to start) chunk-size line begins.
	lineStart int
	// BodyStart is the offset in the owning buffer where the current
	// chunk's data begins once the size line has been fully parsed.
	BodyStart int
	// Size is the declared length of the chunk currently being emitted
	// (valid once a CHUNK_BODY token has been returned for it).
	Size int64
}

// Reset re-initializes the chunk cursor, e.g. before parsing a brand-new
// chunked body on a keep-alive connection.
func (c *ChunkCursor) Reset() {
	*c = ChunkCursor{}
}

// Position returns the next unconsumed offset in the owning buffer.
func (c *ChunkCursor) Position() int {
	return c.cursor
}

// SeekTo positions a freshly Reset cursor at offset, the buffer position
// where the chunked body actually begins. The header parser and the chunk
// parser share one buffer, so the chunk cursor must be told where the
// header parser left off rather than assuming offset 0.
func (c *ChunkCursor) SeekTo(offset int) {
	c.cursor = offset
	c.lineStart = offset
}

func hexDigit(b byte) (int64, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int64(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int64(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int64(b-'A') + 10, true
	default:
		return 0, false
	}
}

// ParseChunk drives the chunk state machine over buf[c.Position():nbytes].
// It returns a KindChunkBody token spanning exactly one chunk's data
// (offset/length into buf) once the chunk is fully buffered, KindNone if
// more bytes are needed, or KindParseError(ErrBadRequest) on a malformed
// chunk-size line. A chunk of declared size 0 still yields a normal
// zero-length KindChunkBody token; by application convention that signals
// end-of-body (see spec §4.B).
func ParseChunk(c *ChunkCursor, buf []byte, nbytes int) Token {
	i := c.cursor
	for i < nbytes {
		b := buf[i]
		switch c.state {
		case cstSize:
			if d, ok := hexDigit(b); ok {
				c.size = c.size*16 + d
				i++
				continue
			}
			switch b {
			case ';':
				c.state = cstExtn
				i++
				continue
			case '\r':
				c.cursor = i + 1
				c.state = cstSizeLF
				i++
				continue
			default:
				return c.fail()
			}

		case cstExtn:
			// chunk extensions are ignored verbatim up to the CR.
			if b == '\r' {
				c.cursor = i + 1
				c.state = cstSizeLF
			}
			i++
			continue

		case cstSizeLF:
			if b != '\n' {
				return c.fail()
			}
			i++
			c.cursor = i
			c.BodyStart = i
			c.Size = c.size
			c.state = cstBody
			continue

		case cstBody:
			need := c.BodyStart + int(c.Size)
			if nbytes < need {
				c.cursor = i
				return Token{Kind: KindNone}
			}
			tok := Token{Offset: c.BodyStart, Length: int(c.Size), Kind: KindChunkBody}
			c.cursor = need
			c.state = cstBodyCR
			return tok

		case cstBodyCR:
			if b != '\r' {
				return c.fail()
			}
			i++
			c.cursor = i
			c.state = cstBodyLF
			continue

		case cstBodyLF:
			if b != '\n' {
				return c.fail()
			}
			i++
			c.cursor = i
			c.size = 0
			c.state = cstSize
			c.lineStart = i
			continue
		}
	}
	c.cursor = i
	return Token{Kind: KindNone}
}

func (c *ChunkCursor) fail() Token {
	return errToken(ErrBadRequest)
}

// Recycle implements the buffer-recycling invariant described in spec
// §4.B: chunked bodies can be arbitrarily long, so once a chunk (and its
// trailing CRLF) has been fully consumed, any unconsumed partial token
// sitting at the tail of buf can be shifted back to offset 0. It must be
// called by the session layer whenever a ParseChunk call returns KindNone
// having made progress, so the read buffer never needs to grow to hold a
// whole chunked upload. Recycle reports how many bytes at the front of buf
// are safe to discard and rebases the cursor's own offsets accordingly;
// the caller is responsible for actually shifting buf (sessionBuffer.compact),
// since ChunkCursor has no buffer of its own.
func (c *ChunkCursor) Recycle() int {
	var start int
	switch c.state {
	case cstSize, cstExtn:
		// a chunk-size line in progress starts at lineStart; bytes
		// before it belong to an already-fully-consumed previous chunk.
		start = c.lineStart
	case cstBody:
		// the declared body hasn't been delivered as a token yet; none
		// of it can be discarded.
		start = c.BodyStart
	default: // cstBodyCR, cstBodyLF
		// the body was already delivered as a token; only its trailing
		// CRLF (partially matched or not) remains unconsumed, starting
		// at cursor, not BodyStart.
		start = c.cursor
	}
	if start <= 0 {
		return 0
	}
	c.cursor -= start
	c.BodyStart -= start
	c.lineStart -= start
	return start
}
