// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package token

import (
	"math"

	"github.com/intuitivelabs/bytescase"
)

// matchLit advances a case-insensitive, byte-at-a-time prefix match of b
// against lit[i], given the number of bytes matched so far (i). It returns
// the new match count, or -1 once the match is broken (any deviation zeroes
// it for good -- the matching discipline is strict: only the exact literal,
// any case, counts).
func matchLit(i int, lit []byte, b byte) int {
	if i < 0 || i >= len(lit) {
		return -1
	}
	if bytescase.ByteToLower(b) == lit[i] {
		return i + 1
	}
	return -1
}

// Parse consumes bytes buf[c.Position():nbytes], advances c, and returns at
// most one Token per call. A KindNone Token means the caller must read more
// bytes before calling again. Once KindParseError is returned, c is
// terminal for this request (see Cursor.Errored). Parse never reads past
// nbytes.
func Parse(c *Cursor, buf []byte, nbytes int) Token {
	if c.state == stDone || c.state == stError {
		return Token{Kind: KindNone}
	}

	i := c.cursor
	for i < nbytes {
		b := buf[i]
		switch c.state {

		case stMethod:
			if tl := i - c.tokenStart; tl >= c.effMaxTokenLength() {
				return c.fail(stError, ErrBadRequest)
			}
			if b == ' ' {
				tok := Token{Offset: c.tokenStart, Length: i - c.tokenStart, Kind: KindMethod}
				c.cursor = i + 1
				c.tokenStart = c.cursor
				c.state = stTarget
				return tok
			}

		case stTarget:
			if tl := i - c.tokenStart; tl >= c.effMaxTokenLength() {
				return c.fail(stError, ErrBadRequest)
			}
			if b == ' ' {
				tok := Token{Offset: c.tokenStart, Length: i - c.tokenStart, Kind: KindTarget}
				c.cursor = i + 1
				c.tokenStart = c.cursor
				c.state = stVersion
				return tok
			}

		case stVersion:
			if tl := i - c.tokenStart; tl >= c.effMaxTokenLength() {
				return c.fail(stError, ErrBadRequest)
			}
			if b == '\r' {
				tok := Token{Offset: c.tokenStart, Length: i - c.tokenStart, Kind: KindVersion}
				c.cursor = i + 1
				c.state = stVersionLF
				return tok
			}

		case stVersionLF:
			if b != '\n' {
				return c.fail(stError, ErrBadRequest)
			}
			i++
			c.cursor = i
			c.tokenStart = i
			c.contentLengthI, c.transferEncodingI = 0, 0
			c.state = stHeaderEndCheck
			continue

		case stHeaderKey:
			if tl := i - c.tokenStart; tl >= c.effMaxTokenLength() {
				return c.fail(stError, ErrBadRequest)
			}
			if b == ':' {
				tok := Token{Offset: c.tokenStart, Length: i - c.tokenStart, Kind: KindHeaderKey}
				if c.contentLengthI == len(litContentLength) {
					c.Flags |= FlagSeenContentLength
				}
				if c.transferEncodingI == len(litTransferEncoding) {
					c.Flags |= FlagSeenTransferEncoding
				}
				c.cursor = i + 1
				c.tokenStart = c.cursor
				c.sub = subLWS
				c.state = stHeaderValue
				return tok
			}
			c.contentLengthI = matchLit(c.contentLengthI, litContentLength, b)
			c.transferEncodingI = matchLit(c.transferEncodingI, litTransferEncoding, b)

		case stHeaderValue:
			if c.sub == subLWS {
				switch b {
				case ' ', '\t':
					c.tokenStart = i + 1
					i++
					continue
				case '\r':
					// empty value: fall through to the CR handling below.
				default:
					c.sub = subNone
					c.tokenStart = i
					c.chunkedI = 0
					if c.Flags&FlagSeenContentLength != 0 {
						c.ContentLength = 0
					}
				}
			}
			if c.sub == subNone {
				if tl := i - c.tokenStart; tl >= c.effMaxTokenLength() {
					return c.fail(stError, ErrBadRequest)
				}
			}
			if b == '\r' {
				tok := Token{Offset: c.tokenStart, Length: i - c.tokenStart, Kind: KindHeaderValue}
				if c.Flags&FlagSeenTransferEncoding != 0 && c.chunkedI == len(litChunked) {
					c.Flags |= FlagChunked
				}
				c.Flags &^= FlagSeenContentLength
				c.Flags &^= FlagSeenTransferEncoding
				c.HeaderCount++
				if c.HeaderCount > c.effMaxHeaders() {
					return c.fail(stError, ErrBadRequest)
				}
				c.cursor = i + 1
				c.state = stHeaderValueLF
				return tok
			}
			if c.sub == subNone {
				if c.Flags&FlagSeenContentLength != 0 && b >= '0' && b <= '9' {
					if c.ContentLength > (math.MaxInt64-int64(b-'0'))/10 {
						return c.fail(stError, ErrPayloadTooLarge)
					}
					nv := c.ContentLength*10 + int64(b-'0')
					if nv > c.effMaxContentLength() {
						return c.fail(stError, ErrPayloadTooLarge)
					}
					c.ContentLength = nv
				}
				if c.Flags&FlagSeenTransferEncoding != 0 {
					c.chunkedI = matchLit(c.chunkedI, litChunked, b)
				}
			}

		case stHeaderValueLF:
			if b != '\n' {
				return c.fail(stError, ErrBadRequest)
			}
			i++
			c.cursor = i
			c.state = stHeaderEndCheck
			continue

		case stHeaderEndCheck:
			if b == '\r' {
				c.cursor = i + 1
				c.state = stHeaderEndLF
				i++
				continue
			}
			// any other byte: start of the next header, re-processed by
			// HEADER_KEY from the same position.
			c.tokenStart = i
			c.contentLengthI, c.transferEncodingI = 0, 0
			c.state = stHeaderKey
			continue

		case stHeaderEndLF:
			if b != '\n' {
				return c.fail(stError, ErrBadRequest)
			}
			i++
			c.cursor = i
			c.BodyStart = i
			c.state = stDone
			length := ChunkedLen
			if !c.Chunked() {
				length = int(c.ContentLength)
			}
			return Token{Offset: c.BodyStart, Length: length, Kind: KindBody}

		default:
			return c.fail(stError, ErrBadRequest)
		}
		i++
	}
	c.cursor = i
	return Token{Kind: KindNone}
}

func (c *Cursor) fail(st pstate, e ErrKind) Token {
	c.state = st
	return errToken(e)
}
