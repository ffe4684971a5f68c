// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import (
	"time"

	"github.com/loopwire/evhttp/reactor"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Handler is the application callback invoked once per request (component
// D/H). It must not block: a handler that needs to do slow work should
// stash state with Request.SetUserData and return without responding,
// then respond later, on the goroutine that drives the event loop, via an
// out-of-band Respond/RespondChunk/RespondChunkEnd call (Session has no
// locking). Session tracks
// whether such a call is happening synchronously (still inside this very
// invocation) or out-of-band, and only resumes the event loop itself in
// the latter case.
type Handler func(req *Request, resp *Response)

// Server owns the listening socket, the reactor, and every live Session
// (component H). Every method except Memused is meant to
// run on a single goroutine, matching the single-threaded event-loop
// contract spec §5 describes; Memused is safe to call from elsewhere
// because memCounter itself is atomic.
type Server struct {
	cfg     Config
	handler Handler
	reactor reactor.Reactor
	log     *logrus.Logger
	date    *dateCache

	listenFd int
	sessions map[int]*Session

	memused memCounter
}

// NewServer builds a Server bound to cfg and handler, with its own epoll
// reactor and a default logrus logger, mirroring the teacher's convention
// of a package-private default logger that SetLogger can replace.
func NewServer(cfg Config, handler Handler) (*Server, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, errors.Wrap(err, "evhttp: creating reactor")
	}
	return &Server{
		cfg:      cfg,
		handler:  handler,
		reactor:  r,
		log:      logrus.New(),
		date:     newDateCache(),
		listenFd: -1,
		sessions: make(map[int]*Session),
	}, nil
}

// SetLogger replaces the server's logger.
func (s *Server) SetLogger(l *logrus.Logger) {
	s.log = l
}

// Memused returns the current estimate of bytes committed to live session
// buffers, the same figure Config.MaxTotalMemUsage is checked against.
func (s *Server) Memused() int64 {
	return s.memused.get()
}

// Listen creates, binds, and arms the listening socket on cfg.Port
// (component H, the admission point for spec §4.F's register_acceptable)
// without yet running the event loop.
func (s *Server) Listen() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return wrapSyscall("socket", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return wrapSyscall("setsockopt(SO_REUSEADDR)", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: s.cfg.Port}); err != nil {
		unix.Close(fd)
		return wrapSyscall("bind", err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return wrapSyscall("listen", err)
	}
	if err := s.reactor.RegisterAcceptable(fd); err != nil {
		unix.Close(fd)
		return err
	}
	s.listenFd = fd
	s.reactor.SchedulePeriodicTick(time.Second)
	return nil
}

// Run drives the event loop forever, dispatching every Acceptable/
// Readable/Writable/Tick event until Close is called.
func (s *Server) Run() error {
	return s.reactor.RunBlocking(s.handleEvent)
}

// Poll drives a single pass of the event loop, returning how many events
// were dispatched. Useful for an embedding application that wants to
// interleave evhttp with its own work on one goroutine instead of
// blocking inside Run.
func (s *Server) Poll() (int, error) {
	return s.reactor.PollOnce(s.handleEvent)
}

// Close shuts down the listening socket and the reactor. Live sessions
// are left open: Close does not disconnect clients, and with the reactor
// closed no further ticks run their idle timeouts.
func (s *Server) Close() error {
	if s.listenFd >= 0 {
		s.reactor.Unregister(s.listenFd)
		unix.Close(s.listenFd)
		s.listenFd = -1
	}
	return s.reactor.Close()
}

func (s *Server) handleEvent(ev reactor.EventSource) {
	switch e := ev.(type) {
	case reactor.Acceptable:
		s.acceptAll(e.Fd)
	case reactor.Readable:
		if sess, ok := s.sessions[e.Fd]; ok {
			sess.run()
		}
	case reactor.Writable:
		if sess, ok := s.sessions[e.Fd]; ok {
			sess.run()
		}
	case reactor.Tick:
		s.onTick()
	}
}

// acceptAll drains every connection currently queued on the listening
// socket (level-triggered epoll demands it), registering a fresh Session
// for each and running it once so admission control and an empty initial
// read are applied before the first Readable event ever arrives.
func (s *Server) acceptAll(fd int) {
	for {
		connFd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			s.log.WithError(err).Warn("evhttp: accept failed")
			return
		}
		sess := newSession(connFd, s)
		s.sessions[connFd] = sess
		if err := s.reactor.RegisterReadable(connFd); err != nil {
			s.log.WithError(err).Warn("evhttp: registering accepted connection failed")
			sess.destroy()
			continue
		}
		sess.run()
	}
}

// onTick refreshes the shared Date header string and advances every live
// session's idle countdown by one second (component G).
func (s *Server) onTick() {
	s.date.refresh()
	for _, sess := range s.sessions {
		sess.tick()
	}
}

// removeSession drops fd from the server's session table; called by
// Session.destroy as the last step of connection teardown.
func (s *Server) removeSession(fd int) {
	delete(s.sessions, fd)
}
