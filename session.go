// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import (
	"syscall"

	"github.com/loopwire/evhttp/token"
	"github.com/sirupsen/logrus"
)

// sessionState is the per-connection state machine's current state
// (component E, spec §4.D).
type sessionState uint8

const (
	stateInit sessionState = iota
	stateReadHeaders
	stateReadBody
	stateWrite
	stateReadChunk
	stateNop
)

// connMode models the three-valued AUTOMATIC/pinned choice spec §9's
// design notes recommend in place of two separate bit flags.
type connMode uint8

const (
	connAuto connMode = iota
	connPinnedKeepAlive
	connPinnedClose
)

// ChunkCallback is invoked once per chunk of a chunked request body (see
// Request.ReadChunk). A zero-length chunk signals end-of-body.
type ChunkCallback func(req *Request)

// Session is a single accepted connection: socket, buffers, parser cursor,
// current state. Exclusively owned by the event-loop goroutine; no
// concurrent access is permitted (spec §5).
type Session struct {
	fd     int
	server *Server

	state sessionState
	conn  connMode

	flagResponseReady   bool
	flagResponsePaused  bool
	flagChunkedResponse bool
	chunkEnded          bool

	cursor   token.Cursor
	tokens   []token.Token
	bodyTok  token.Token
	haveBody bool

	// keepAliveAuto is the outcome of the last applyKeepAliveAutoDetect
	// pass, consulted by stepWrite only when conn == connAuto.
	keepAliveAuto bool

	chunkCursor   token.ChunkCursor
	chunkCallback ChunkCallback

	buf *sessionBuffer

	timeoutSeconds int
	userData       interface{}

	closed bool
}

func newSession(fd int, server *Server) *Session {
	s := &Session{
		fd:     fd,
		server: server,
		buf:    newSessionBuffer(server.cfg.RequestBufSize, &server.memused),
	}
	s.cursor.SetLimits(server.cfg.MaxContentLength, server.cfg.MaxTokenLength, server.cfg.MaxHeaders)
	s.resetForRequest()
	return s
}

// resetForRequest re-initializes parser state for a fresh request on this
// connection (spec §4.D, state INIT), keeping the socket and buffer's
// capacity (the buffer's live contents are cleared).
func (s *Session) resetForRequest() {
	s.cursor.Reset()
	s.chunkCursor.Reset()
	s.tokens = s.tokens[:0]
	s.haveBody = false
	s.bodyTok = token.Token{}
	s.flagResponseReady = false
	s.flagResponsePaused = false
	s.flagChunkedResponse = false
	s.chunkEnded = false
	s.chunkCallback = nil
	s.buf.reset()
	// an explicit SetKeepAlive pin applies only to the request that set
	// it (spec §4.C); each new request re-derives conn from scratch.
	s.conn = connAuto
}

func (s *Session) log() *logrus.Entry {
	return s.server.log.WithField("fd", s.fd)
}

// run drives the state machine forward as far as it can without blocking
// on I/O, per spec §4.D's "on each readable/writable event" contract. It
// returns once the session needs another reactor event (more bytes to
// read, the write to drain further, NOP awaiting the application, or INIT
// awaiting the next request on a keep-alive connection) or once the
// session has been destroyed.
func (s *Session) run() {
	for !s.closed {
		switch s.state {
		case stateInit:
			s.resetForRequest()
			if s.server.memused.get() > s.server.cfg.MaxTotalMemUsage {
				s.respondSynthetic(503, "")
				s.state = stateWrite
				continue
			}
			s.state = stateReadHeaders

		case stateReadHeaders:
			if !s.stepReadHeaders() {
				return
			}

		case stateReadBody:
			if !s.stepReadBody() {
				return
			}

		case stateReadChunk:
			if !s.stepReadChunk() {
				return
			}

		case stateWrite:
			if !s.stepWrite() {
				return
			}

		case stateNop:
			return
		}
	}
}

// readSocket fills buf[filled:cap) via non-blocking reads until the kernel
// would block or EOF (component C, spec §4.C). It returns (progress, eof).
func (s *Session) readSocket() (progress bool, eof bool, err error) {
	for {
		s.buf.ensure(s.buf.Filled() + 1)
		n, rerr := syscall.Read(s.fd, s.buf.buf[s.buf.Filled():cap(s.buf.buf)])
		if n > 0 {
			s.buf.filled += n
			progress = true
		}
		if rerr == syscall.EAGAIN || rerr == syscall.EWOULDBLOCK {
			return progress, false, nil
		}
		if rerr != nil {
			return progress, false, wrapSyscall("read", rerr)
		}
		if n == 0 {
			return progress, true, nil
		}
	}
}

// stepReadHeaders implements spec §4.D state READ_HEADERS. Returns false
// when the caller must wait for the next reactor event.
func (s *Session) stepReadHeaders() bool {
	_, eof, err := s.readSocket()
	if eof || err != nil {
		s.destroy()
		return false
	}
	s.timeoutSeconds = s.server.cfg.RequestTimeoutSeconds

	for {
		tok := token.Parse(&s.cursor, s.buf.Bytes(), s.buf.Filled())
		switch tok.Kind {
		case token.KindNone:
			return false // need more bytes
		case token.KindParseError:
			status := 400
			if tok.Err() == token.ErrPayloadTooLarge {
				status = 413
			}
			s.respondSynthetic(status, "")
			s.state = stateWrite
			return true
		case token.KindBody:
			s.bodyTok = tok
			s.haveBody = true
			s.applyKeepAliveAutoDetect()
			if s.cursor.Chunked() {
				s.chunkCursor.Reset()
				s.chunkCursor.SeekTo(tok.Offset)
				s.state = stateNop
				s.invokeHandler()
				return true
			}
			if s.buf.Filled() < tok.Offset+tok.Length {
				s.state = stateReadBody
				return true
			}
			s.state = stateNop
			s.invokeHandler()
			return true
		default:
			s.tokens = append(s.tokens, tok)
		}
	}
}

// stepReadBody implements spec §4.D state READ_BODY.
func (s *Session) stepReadBody() bool {
	_, eof, err := s.readSocket()
	if eof || err != nil {
		s.destroy()
		return false
	}
	if s.buf.Filled() >= s.bodyTok.Offset+s.bodyTok.Length {
		s.state = stateNop
		s.invokeHandler()
		return true
	}
	return false
}

// stepReadChunk implements spec §4.D state READ_CHUNK.
func (s *Session) stepReadChunk() bool {
	_, eof, err := s.readSocket()
	if eof || err != nil {
		s.destroy()
		return false
	}
	tok := token.ParseChunk(&s.chunkCursor, s.buf.Bytes(), s.buf.Filled())
	switch tok.Kind {
	case token.KindNone:
		if start := s.chunkCursor.Recycle(); start > 0 {
			s.buf.compact(start)
		}
		return false
	case token.KindParseError:
		s.respondSynthetic(400, "")
		s.state = stateWrite
		return true
	case token.KindChunkBody:
		s.state = stateNop
		req := &Request{s: s, chunk: tok}
		if s.chunkCallback != nil {
			s.chunkCallback(req)
		}
		if s.state == stateNop && !s.flagResponseReady {
			s.flagResponsePaused = true
		}
		return true
	}
	return false
}

// stepWrite implements spec §4.D state WRITE.
func (s *Session) stepWrite() bool {
	for s.buf.written < s.buf.Filled() {
		n, werr := syscall.Write(s.fd, s.buf.buf[s.buf.written:s.buf.Filled()])
		if n > 0 {
			s.buf.written += n
		}
		if werr == syscall.EAGAIN || werr == syscall.EWOULDBLOCK {
			s.server.reactor.RearmWritable(s.fd)
			return false
		}
		if werr == syscall.EPIPE {
			s.destroy()
			return false
		}
		if werr != nil {
			// transient error: wait for the next writable event, per
			// spec §7's "other transient errors -> treat as would block".
			s.server.reactor.RearmWritable(s.fd)
			return false
		}
	}

	// fully flushed
	if s.flagChunkedResponse && !s.chunkEnded {
		s.flagResponseReady = false
		s.buf.reset()
		s.state = stateNop
		if s.chunkCallback != nil {
			req := &Request{s: s}
			s.chunkCallback(req)
		}
		if s.state == stateNop && !s.flagResponseReady {
			s.flagResponsePaused = true
		}
		return true
	}
	s.flagChunkedResponse = false
	s.chunkEnded = false

	if !s.resolvedKeepAlive() {
		s.destroy()
		return false
	}
	s.buf.reset()
	s.state = stateInit
	s.timeoutSeconds = s.server.cfg.KeepAliveTimeoutSeconds
	return false
}

// resolvedKeepAlive returns the connection-reuse decision for the response
// currently completing: the explicit pin if Request.SetKeepAlive was
// called, otherwise the outcome of applyKeepAliveAutoDetect.
func (s *Session) resolvedKeepAlive() bool {
	switch s.conn {
	case connPinnedKeepAlive:
		return true
	case connPinnedClose:
		return false
	default:
		return s.keepAliveAuto
	}
}

// applyKeepAliveAutoDetect implements spec §4.D's keep-alive auto-detect
// rule from the parsed version token and Connection header, when the
// AUTOMATIC mode has not been overridden by an explicit Request.SetKeepAlive
// pin.
func (s *Session) applyKeepAliveAutoDetect() {
	if s.conn != connAuto {
		return
	}
	versionTok, haveVersion := s.findToken(token.KindVersion)
	atLeast11 := haveVersion && token.AtLeast11(versionTok.Get(s.buf.Bytes()))

	hasConn := false
	hasClose := false
	hasKeepAlive := false
	if v, ok := s.header("connection"); ok {
		hasConn = true
		hasClose, hasKeepAlive = token.ConnectionTokens(v)
	}

	switch {
	case hasClose:
		s.keepAliveAuto = false
	case hasKeepAlive:
		s.keepAliveAuto = true
	case !hasConn && !atLeast11:
		s.keepAliveAuto = false
	default:
		s.keepAliveAuto = true
	}
}

func (s *Session) findToken(kind token.Kind) (token.Token, bool) {
	for _, t := range s.tokens {
		if t.Kind == kind {
			return t, true
		}
	}
	return token.Token{}, false
}

// header looks up the first header value matching name, case-insensitively.
func (s *Session) header(name string) ([]byte, bool) {
	buf := s.buf.Bytes()
	for i := 0; i+1 < len(s.tokens); i++ {
		if s.tokens[i].Kind != token.KindHeaderKey {
			continue
		}
		if s.tokens[i+1].Kind != token.KindHeaderValue {
			continue
		}
		if equalFoldBytes(s.tokens[i].Get(buf), []byte(name)) {
			return s.tokens[i+1].Get(buf), true
		}
	}
	return nil, false
}

func equalFoldBytes(a []byte, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ac, bc := a[i], b[i]
		if 'A' <= ac && ac <= 'Z' {
			ac += 'a' - 'A'
		}
		if 'A' <= bc && bc <= 'Z' {
			bc += 'a' - 'A'
		}
		if ac != bc {
			return false
		}
	}
	return true
}

// invokeHandler calls the server's registered handler with a Request
// wrapping this session. Per spec §4.D's handler invocation contract: the
// handler may respond synchronously (Request.Respond/RespondChunk already
// advanced state to WRITE, which the enclosing run() loop will pick up),
// may start reading a chunked body (state advanced to READ_CHUNK,
// likewise picked up by run()), or may do neither, in which case the
// session sits in NOP until an out-of-band Respond*/ReadChunk call resumes
// it later.
func (s *Session) invokeHandler() {
	req := &Request{s: s}
	resp := NewResponse()
	s.server.handler(req, resp)
	if s.state == stateNop && !s.flagResponseReady {
		s.flagResponsePaused = true
	}
}

// respondSynthetic builds a library-generated response (admission control,
// parse errors) bypassing the handler entirely. The connection is always
// closed afterward: a client that sent a malformed request, or that is
// being shed under load, gets no further keep-alive trust.
func (s *Session) respondSynthetic(status int, body string) {
	if body == "" {
		_, body = normalizeStatus(status)
	}
	resp := NewResponse().Status(status).Header("Content-Type", "text/plain").Body([]byte(body))
	s.conn = connPinnedClose
	s.buf.ensureAlive(s.server.cfg.ResponseBufSize)
	s.buf.reset()
	s.buf.adopt(buildHeadResponse(s.buf.buf[:0], resp, s.server.date.String(), false))
	s.flagResponseReady = true
}

// destroy tears the session down: releases its buffer (returning its
// capacity to the server-wide memCounter), unregisters it from the
// reactor, and closes the socket. Matches spec §3's four teardown causes.
func (s *Session) destroy() {
	if s.closed {
		return
	}
	s.closed = true
	s.buf.release()
	s.server.reactor.Unregister(s.fd)
	syscall.Close(s.fd)
	s.server.removeSession(s.fd)
}

// tick implements the per-session 1-second countdown (component G /
// spec §5): on reaching zero the session is destroyed regardless of
// current state, discarding any partially-assembled response.
func (s *Session) tick() {
	if s.closed {
		return
	}
	s.timeoutSeconds--
	if s.timeoutSeconds <= 0 {
		s.destroy()
	}
}
