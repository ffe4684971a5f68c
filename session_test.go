// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import (
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/loopwire/evhttp/reactor"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newTestSession builds a Session over one end of a socketpair, wired to a
// real Server (with a real reactor, needed so stepWrite's RearmWritable
// calls don't nil-panic) so run() can be driven directly without an actual
// event loop driving it.
func newTestSession(t *testing.T, handler Handler) (*Session, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() { unix.Close(fds[1]) })

	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	srv := &Server{
		cfg:      DefaultConfig(),
		handler:  handler,
		reactor:  r,
		log:      logrus.New(),
		date:     newDateCache(),
		listenFd: -1,
		sessions: make(map[int]*Session),
	}
	sess := newSession(fds[0], srv)
	srv.sessions[fds[0]] = sess
	return sess, fds[1]
}

func peerWrite(t *testing.T, fd int, p []byte) {
	t.Helper()
	_, err := unix.Write(fd, p)
	require.NoError(t, err)
}

func peerRead(t *testing.T, fd int) []byte {
	t.Helper()
	buf := make([]byte, 8192)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n, err := syscall.Read(fd, buf)
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(t, err)
		return buf[:n]
	}
	t.Fatal("timed out waiting for peer data")
	return nil
}

func TestSessionSimpleGETKeepAlive(t *testing.T) {
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		require.Equal(t, "GET", string(req.Method()))
		require.Equal(t, "/hello", string(req.Target()))
		resp.Status(200).Header("Content-Type", "text/plain").Body([]byte("hi"))
		require.NoError(t, req.Respond(resp))
	})

	peerWrite(t, peer, []byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))
	sess.run()

	out := string(peerRead(t, peer))
	require.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	require.Contains(t, out, "Connection: keep-alive\r\n")
	require.Contains(t, out, "Content-Length: 2\r\n")
	require.True(t, strings.HasSuffix(out, "hi"))
	require.Equal(t, stateInit, sess.state)
}

func TestSessionHTTP10NoKeepAliveHeaderCloses(t *testing.T) {
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		resp.Status(200)
		require.NoError(t, req.Respond(resp))
	})

	peerWrite(t, peer, []byte("GET / HTTP/1.0\r\n\r\n"))
	sess.run()

	out := string(peerRead(t, peer))
	require.Contains(t, out, "Connection: close\r\n")
	require.True(t, sess.closed)
}

func TestSessionExplicitCloseOverridesAutoKeepAlive(t *testing.T) {
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		req.SetKeepAlive(false)
		resp.Status(200)
		require.NoError(t, req.Respond(resp))
	})

	peerWrite(t, peer, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	sess.run()

	out := string(peerRead(t, peer))
	require.Contains(t, out, "Connection: close\r\n")
	require.True(t, sess.closed)
}

func TestSessionKeepAlivePinDoesNotBleedIntoNextRequest(t *testing.T) {
	var reqNum int
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		reqNum++
		if reqNum == 1 {
			req.SetKeepAlive(true)
		}
		resp.Status(200)
		require.NoError(t, req.Respond(resp))
	})

	peerWrite(t, peer, []byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	sess.run()
	out := string(peerRead(t, peer))
	require.Contains(t, out, "Connection: keep-alive\r\n")
	require.False(t, sess.closed)
	require.Equal(t, stateInit, sess.state)

	peerWrite(t, peer, []byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	sess.run()
	out = string(peerRead(t, peer))
	require.Contains(t, out, "Connection: close\r\n")
	require.True(t, sess.closed)
}

func TestSessionContentLengthBodyDeliveredWholeAndSplit(t *testing.T) {
	var gotBody string
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		gotBody = string(req.Body())
		resp.Status(204)
		require.NoError(t, req.Respond(resp))
	})

	head := "POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\n"
	peerWrite(t, peer, []byte(head+"he"))
	sess.run()
	require.Equal(t, stateReadBody, sess.state)
	require.Empty(t, gotBody)

	peerWrite(t, peer, []byte("llo"))
	sess.run()
	require.Equal(t, "hello", gotBody)
}

func TestSessionDeferredResponseResumesFromOutOfBand(t *testing.T) {
	var pending *Request
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		pending = req
	})

	peerWrite(t, peer, []byte("GET /slow HTTP/1.1\r\nHost: x\r\n\r\n"))
	sess.run()

	require.NotNil(t, pending)
	require.True(t, sess.flagResponsePaused)
	require.Equal(t, stateNop, sess.state)

	require.NoError(t, pending.Respond(NewResponse().Status(200)))
	out := string(peerRead(t, peer))
	require.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
}

func TestSessionChunkedRequestBodyReassembled(t *testing.T) {
	var chunks []string
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		var read func(r *Request)
		read = func(r *Request) {
			c := r.Chunk()
			if len(c) == 0 {
				resp.Status(200)
				req.Respond(resp)
				return
			}
			chunks = append(chunks, string(c))
			req.ReadChunk(read)
		}
		req.ReadChunk(read)
	})

	body := "GET /upload HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	peerWrite(t, peer, []byte(body))
	sess.run()

	require.Equal(t, []string{"hello", " world"}, chunks)
	out := string(peerRead(t, peer))
	require.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
}

func TestSessionChunkedResponsePumpsUntilEnd(t *testing.T) {
	parts := []string{"one", "two", ""}
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		var pump ChunkCallback
		i := 0
		pump = func(r *Request) {
			if i >= len(parts) {
				req.RespondChunkEnd()
				return
			}
			p := parts[i]
			i++
			if p == "" {
				req.RespondChunkEnd()
				return
			}
			req.RespondChunk(NewResponse().Status(200).Body([]byte(p)), pump)
		}
		pump(req)
	})

	peerWrite(t, peer, []byte("GET /stream HTTP/1.1\r\nHost: x\r\n\r\n"))
	sess.run()

	var all []byte
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		all = append(all, peerRead(t, peer)...)
		if strings.Contains(string(all), "\r\n0\r\n\r\n") {
			break
		}
	}
	out := string(all)
	require.Contains(t, out, "Transfer-Encoding: chunked\r\n")
	require.Contains(t, out, "3\r\none\r\n")
	require.Contains(t, out, "3\r\ntwo\r\n")
	require.True(t, strings.HasSuffix(out, "0\r\n\r\n"))
}

func TestSessionAdmissionControlRejectsOverBudget(t *testing.T) {
	handlerCalled := false
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		handlerCalled = true
	})
	sess.server.cfg.MaxTotalMemUsage = 0

	peerWrite(t, peer, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	sess.run()

	require.False(t, handlerCalled)
	out := string(peerRead(t, peer))
	require.True(t, strings.HasPrefix(out, "HTTP/1.1 503 "))
	require.True(t, sess.closed)
}

func TestSessionIdleTimeoutDestroysSession(t *testing.T) {
	sess, _ := newTestSession(t, func(req *Request, resp *Response) {
		t.Fatal("handler should not run: no request was ever sent")
	})
	sess.timeoutSeconds = 2

	sess.tick()
	require.False(t, sess.closed)
	_, stillTracked := sess.server.sessions[sess.fd]
	require.True(t, stillTracked)

	sess.tick()
	require.True(t, sess.closed)
	_, stillTracked = sess.server.sessions[sess.fd]
	require.False(t, stillTracked)

	// ticking an already-destroyed session is a harmless no-op.
	sess.tick()
}

func TestSessionMalformedRequestGets400(t *testing.T) {
	sess, peer := newTestSession(t, func(req *Request, resp *Response) {
		t.Fatal("handler should not be invoked for a malformed request")
	})

	peerWrite(t, peer, []byte("GET / HTTP/1.1\r\r\n"))
	sess.run()

	out := string(peerRead(t, peer))
	require.True(t, strings.HasPrefix(out, "HTTP/1.1 400 "))
	require.True(t, sess.closed)
}
