// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package token

// Compile-time defaults (see spec §6 "Configurable constants").
const (
	// MaxContentLength bounds the accepted Content-Length value (8 MiB).
	MaxContentLength int64 = 8 << 20
	// MaxTokenLength bounds any single token outside the body (8 KiB).
	MaxTokenLength = 8 << 10
	// MaxHeaders bounds the number of headers accepted per request.
	MaxHeaders = 127
)

// parser states
type pstate uint8

const (
	stMethod pstate = iota
	stTarget
	stVersion
	stVersionLF      // expect the LF that must follow the version line's CR
	stHeaderKey
	stHeaderValue
	stHeaderValueLF  // expect the LF that must follow a header value's CR
	stHeaderEndCheck // just consumed a header's (or the request line's) CRLF; check next byte
	stHeaderEndLF    // consumed the terminator's 2nd CR; expect its LF
	stDone
	stError
)

// CR/LF/LWS micro-states, used only within stHeaderValue.
type substate uint8

const (
	subNone substate = iota
	subLWS            // skipping leading linear white space before a value
)

// Flags is a bitset of sticky parser flags.
type Flags uint8

const (
	// FlagSeenContentLength is set while inside the value of a header whose
	// name matched "content-length"; cleared at the end of that header's
	// value (scoped to the current header, per spec §3).
	FlagSeenContentLength Flags = 1 << iota
	// FlagSeenTransferEncoding mirrors FlagSeenContentLength for
	// "transfer-encoding".
	FlagSeenTransferEncoding
	// FlagChunked is sticky for the whole request: set once a
	// Transfer-Encoding value matches "chunked" exactly.
	FlagChunked
)

// literal byte strings matched case-insensitively against header names and
// the Transfer-Encoding value, one byte at a time, so matching can resume
// across Parse calls.
var (
	litContentLength     = []byte("content-length")
	litTransferEncoding  = []byte("transfer-encoding")
	litChunked           = []byte("chunked")
)

// Cursor is the mutable, reentrant parsing state for one request. It is
// reset (see Reset) at the start of every keep-alive request.
type Cursor struct {
	state pstate
	sub   substate

	cursor     int // next unconsumed byte in the owning buffer
	tokenStart int // start offset of the token currently being accumulated

	ContentLength int64 // accumulated Content-Length value

	contentLengthI    int // bytes matched so far against litContentLength
	transferEncodingI int // bytes matched so far against litTransferEncoding
	chunkedI          int // bytes matched so far against litChunked

	HeaderCount int // headers parsed so far, checked against MaxHeaders

	BodyStart int // offset of the first body byte, set once headers end

	Flags Flags

	// Limits, overriding the package compile-time defaults above when set
	// (spec §6: these are configurable, not fixed, constants). Zero means
	// "use the package default" -- set by SetLimits, preserved across
	// Reset so a session's configured limits survive keep-alive requests.
	maxContentLength int64
	maxTokenLength   int
	maxHeaders       int
}

// SetLimits overrides the parser's per-request bounds (spec §6's
// "configurable constants"), e.g. from a Config loaded at runtime. A zero
// argument leaves the corresponding package default in effect.
func (c *Cursor) SetLimits(maxContentLength int64, maxTokenLength, maxHeaders int) {
	c.maxContentLength = maxContentLength
	c.maxTokenLength = maxTokenLength
	c.maxHeaders = maxHeaders
}

func (c *Cursor) effMaxContentLength() int64 {
	if c.maxContentLength > 0 {
		return c.maxContentLength
	}
	return MaxContentLength
}

func (c *Cursor) effMaxTokenLength() int {
	if c.maxTokenLength > 0 {
		return c.maxTokenLength
	}
	return MaxTokenLength
}

func (c *Cursor) effMaxHeaders() int {
	if c.maxHeaders > 0 {
		return c.maxHeaders
	}
	return MaxHeaders
}

// Reset re-initializes the cursor for a new request, keeping no parse
// state from the previous one (token list and session buffer are reset
// separately by the caller) but preserving any limits set via SetLimits.
func (c *Cursor) Reset() {
	limits := [3]int64{c.maxContentLength, int64(c.maxTokenLength), int64(c.maxHeaders)}
	*c = Cursor{}
	c.maxContentLength, c.maxTokenLength, c.maxHeaders = limits[0], int(limits[1]), int(limits[2])
}

// Position returns the current position in the owning buffer. The caller
// must guarantee Position() <= len(buf) always holds after a Parse call.
func (c *Cursor) Position() int {
	return c.cursor
}

// Chunked returns true once a Transfer-Encoding: chunked has been seen.
// Per spec, CHUNKED always wins over a numeric Content-Length.
func (c *Cursor) Chunked() bool {
	return c.Flags&FlagChunked != 0
}

// Done returns true once the header section (and the BODY marker token)
// has been fully parsed.
func (c *Cursor) Done() bool {
	return c.state == stDone
}

// Errored returns true once parsing has hit a terminal PARSE_ERROR; the
// cursor cannot be used for further Parse calls on this request.
func (c *Cursor) Errored() bool {
	return c.state == stError
}
