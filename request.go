// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import "github.com/loopwire/evhttp/token"

// Request is the per-call view a handler sees of the session currently in
// NOP, state READ_CHUNK's callback. It is a thin wrapper: all state lives
// on the underlying Session, so a Request is cheap to allocate fresh for
// every handler/callback invocation.
type Request struct {
	s *Session

	// chunk is set only when this Request is delivered to a ChunkCallback
	// for a request-body chunk (see Session.stepReadChunk); Chunk() reads
	// it, everything else ignores it.
	chunk token.Token
}

// Method returns the request method token, e.g. "GET".
func (r *Request) Method() []byte {
	if t, ok := r.s.findToken(token.KindMethod); ok {
		return t.Get(r.s.buf.Bytes())
	}
	return nil
}

// Target returns the raw request-target as sent on the wire (path and
// query string, not resolved against any base URL).
func (r *Request) Target() []byte {
	if t, ok := r.s.findToken(token.KindTarget); ok {
		return t.Get(r.s.buf.Bytes())
	}
	return nil
}

// Header looks up the first header matching name, case-insensitively.
func (r *Request) Header(name string) ([]byte, bool) {
	return r.s.header(name)
}

// Headers returns every parsed header, in wire order. Repeated header
// names (e.g. Cookie) appear as repeated entries.
func (r *Request) Headers() []HeaderField {
	buf := r.s.buf.Bytes()
	var out []HeaderField
	for i := 0; i+1 < len(r.s.tokens); i++ {
		if r.s.tokens[i].Kind != token.KindHeaderKey || r.s.tokens[i+1].Kind != token.KindHeaderValue {
			continue
		}
		out = append(out, HeaderField{
			Key:   string(r.s.tokens[i].Get(buf)),
			Value: string(r.s.tokens[i+1].Get(buf)),
		})
	}
	return out
}

// Body returns the full request body for a Content-Length request. It
// returns nil for a chunked request -- read those with ReadChunk.
func (r *Request) Body() []byte {
	if !r.s.haveBody || r.s.cursor.Chunked() {
		return nil
	}
	return r.s.bodyTok.Get(r.s.buf.Bytes())
}

// Chunk returns the current chunk's data when this Request was delivered
// to a ChunkCallback; a zero-length result signals the end of the body.
// It returns nil when called outside a chunk callback.
func (r *Request) Chunk() []byte {
	if r.chunk.Kind != token.KindChunkBody {
		return nil
	}
	return r.chunk.Get(r.s.buf.Bytes())
}

// UserData returns whatever the handler previously stashed with
// SetUserData, nil if nothing has been set yet. Useful to carry
// request-scoped state across a ReadChunk/Respond* sequence of callbacks.
func (r *Request) UserData() interface{} {
	return r.s.userData
}

// SetUserData stashes an arbitrary value on the session.
func (r *Request) SetUserData(v interface{}) {
	r.s.userData = v
}

// SetKeepAlive overrides the connection's keep-alive auto-detection for
// the response currently being produced, replacing spec's two-bit
// AUTOMATIC/KEEP_ALIVE/CLOSE flag pair with one explicit pin (see
// connMode).
func (r *Request) SetKeepAlive(keepAlive bool) {
	if keepAlive {
		r.s.conn = connPinnedKeepAlive
	} else {
		r.s.conn = connPinnedClose
	}
}

// FreeBuffer releases the session's read/write buffer early, returning its
// capacity to the server-wide memory counter before the handler has
// finished -- useful for a handler that has copied out everything it
// needs from a large request body and does not want that memory held
// while it does slow, out-of-band work before responding. Method/Target/
// Header/Body/Chunk must not be called again afterward: their results
// alias the buffer this releases.
func (r *Request) FreeBuffer() {
	r.s.buf.release()
}

// ReadChunk arms the session to read the next chunk of a chunked request
// body, invoking cb once it is fully buffered (state READ_CHUNK, spec
// §4.D). cb is invoked repeatedly, once per chunk including the
// zero-length chunk that signals end-of-body, until the handler responds
// instead of calling ReadChunk again.
func (r *Request) ReadChunk(cb ChunkCallback) error {
	s := r.s
	s.chunkCallback = cb
	s.state = stateReadChunk
	if s.flagResponsePaused {
		s.flagResponsePaused = false
		s.run()
	}
	return nil
}

// Respond sends a complete, Content-Length-framed response built from
// resp and transitions the session to state WRITE (spec §4.E). It returns
// ErrAlreadyResponded if a response was already started for this request.
func (r *Request) Respond(resp *Response) error {
	s := r.s
	if s.flagResponseReady || s.flagChunkedResponse {
		return ErrAlreadyResponded
	}
	keepAlive := s.resolvedKeepAlive()
	s.buf.ensureAlive(s.server.cfg.ResponseBufSize)
	s.buf.reset()
	s.buf.adopt(buildHeadResponse(s.buf.buf[:0], resp, s.server.date.String(), keepAlive))
	s.flagResponseReady = true
	s.state = stateWrite
	if s.flagResponsePaused {
		s.flagResponsePaused = false
		s.run()
	}
	return nil
}

// RespondChunk starts, or continues, a Transfer-Encoding: chunked response
// (spec §4.E/§6). On the first call it writes the status line and headers
// plus resp.Body() framed as the first chunk if non-empty; cb is invoked
// once that chunk has been flushed, and the handler supplies the next
// chunk by calling RespondChunk again from within cb (resp.Body() holding
// just that chunk's bytes), finishing with RespondChunkEnd instead of a
// further RespondChunk.
func (r *Request) RespondChunk(resp *Response, cb ChunkCallback) error {
	s := r.s
	if s.chunkEnded {
		return ErrChunkedResponseEnded
	}
	s.buf.ensureAlive(s.server.cfg.ResponseBufSize)
	if !s.flagChunkedResponse {
		if s.flagResponseReady {
			return ErrAlreadyResponded
		}
		keepAlive := s.resolvedKeepAlive()
		s.buf.reset()
		nb := buildChunkedHeadResponse(s.buf.buf[:0], resp, s.server.date.String(), keepAlive)
		if len(resp.body) > 0 {
			nb = writeChunkFrame(nb, resp.body)
		}
		s.buf.adopt(nb)
		s.flagChunkedResponse = true
	} else {
		s.buf.reset()
		s.buf.adopt(writeChunkFrame(s.buf.buf[:0], resp.body))
	}
	s.chunkCallback = cb
	s.flagResponseReady = true
	s.state = stateWrite
	if s.flagResponsePaused {
		s.flagResponsePaused = false
		s.run()
	}
	return nil
}

// RespondChunkEnd writes the terminating zero-length chunk and any
// trailers, ending a chunked response started with RespondChunk. It
// returns ErrNotChunkedResponse if no chunked response is in progress, or
// ErrChunkedResponseEnded if this request's chunked response has already
// been ended.
func (r *Request) RespondChunkEnd(trailers ...HeaderField) error {
	s := r.s
	if !s.flagChunkedResponse {
		return ErrNotChunkedResponse
	}
	if s.chunkEnded {
		return ErrChunkedResponseEnded
	}
	s.buf.ensureAlive(s.server.cfg.ResponseBufSize)
	s.buf.reset()
	s.buf.adopt(writeChunkTrailer(s.buf.buf[:0], trailers))
	s.chunkEnded = true
	s.chunkCallback = nil
	s.flagResponseReady = true
	s.state = stateWrite
	if s.flagResponsePaused {
		s.flagResponsePaused = false
		s.run()
	}
	return nil
}
