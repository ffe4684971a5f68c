// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type fdKind uint8

const (
	kindListener fdKind = iota
	kindSession
)

// epollReactor is the reference Reactor implementation, grounded on the
// epoll-based pattern used by gnet (github.com/panjf2000/gnet/v2, pulled
// in transitively by the retrieved ryanbekhen/ngebut example) but built
// directly on golang.org/x/sys/unix rather than vendoring a full
// multi-engine framework, since the spec's contract is a single reactor
// on a single goroutine.
type epollReactor struct {
	mu   sync.Mutex
	epfd int

	kinds     map[int]fdKind
	wantWrite map[int]bool

	tickInterval time.Duration
	lastTick     time.Time

	closed bool
}

// New creates an epoll-backed Reactor.
func New() (Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "reactor: epoll_create1")
	}
	return &epollReactor{
		epfd:      fd,
		kinds:     make(map[int]fdKind),
		wantWrite: make(map[int]bool),
		lastTick:  time.Now(),
	}, nil
}

func (r *epollReactor) ctl(op int, fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, op, fd, &ev); err != nil {
		return errors.Wrapf(err, "reactor: epoll_ctl fd=%d", fd)
	}
	return nil
}

func (r *epollReactor) RegisterAcceptable(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[fd]; ok {
		return r.ctl(unix.EPOLL_CTL_MOD, fd, unix.EPOLLIN)
	}
	r.kinds[fd] = kindListener
	return r.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN)
}

func (r *epollReactor) RegisterReadable(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.wantWrite, fd)
	if _, ok := r.kinds[fd]; ok {
		r.kinds[fd] = kindSession
		return r.ctl(unix.EPOLL_CTL_MOD, fd, unix.EPOLLIN)
	}
	r.kinds[fd] = kindSession
	return r.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN)
}

func (r *epollReactor) RearmWritable(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wantWrite[fd] = true
	return r.ctl(unix.EPOLL_CTL_MOD, fd, unix.EPOLLIN|unix.EPOLLOUT)
}

func (r *epollReactor) Unregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kinds, fd)
	delete(r.wantWrite, fd)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT {
		return errors.Wrapf(err, "reactor: epoll_ctl_del fd=%d", fd)
	}
	return nil
}

func (r *epollReactor) SchedulePeriodicTick(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickInterval = d
	r.lastTick = time.Now()
}

// PollOnce waits for events (or the next tick) and dispatches everything
// ready exactly once, per spec §4.F's "poll_once() -> event_count" mode.
func (r *epollReactor) PollOnce(h Handler) (int, error) {
	r.mu.Lock()
	tickInterval := r.tickInterval
	lastTick := r.lastTick
	r.mu.Unlock()

	timeoutMs := -1
	if tickInterval > 0 {
		elapsed := time.Since(lastTick)
		remaining := tickInterval - elapsed
		if remaining < 0 {
			remaining = 0
		}
		timeoutMs = int(remaining / time.Millisecond)
	}

	var events [64]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, events[:], timeoutMs)
	for err == unix.EINTR {
		n, err = unix.EpollWait(r.epfd, events[:], timeoutMs)
	}
	if err != nil {
		return 0, errors.Wrap(err, "reactor: epoll_wait")
	}

	count := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		r.mu.Lock()
		kind, known := r.kinds[fd]
		r.mu.Unlock()
		if !known {
			continue
		}
		switch kind {
		case kindListener:
			h(Acceptable{Fd: fd})
			count++
		case kindSession:
			if events[i].Events&unix.EPOLLIN != 0 {
				h(Readable{Fd: fd})
				count++
			}
			r.mu.Lock()
			wantsWrite := r.wantWrite[fd]
			r.mu.Unlock()
			if events[i].Events&unix.EPOLLOUT != 0 && wantsWrite {
				r.mu.Lock()
				delete(r.wantWrite, fd)
				r.mu.Unlock()
				r.ctl(unix.EPOLL_CTL_MOD, fd, unix.EPOLLIN)
				h(Writable{Fd: fd})
				count++
			}
		}
	}

	r.mu.Lock()
	due := r.tickInterval > 0 && time.Since(r.lastTick) >= r.tickInterval
	if due {
		r.lastTick = time.Now()
	}
	r.mu.Unlock()
	if due {
		h(Tick{})
		count++
	}

	return count, nil
}

// RunBlocking dispatches events to h forever, until Close is called (spec
// §4.F's "run_blocking()" mode).
func (r *epollReactor) RunBlocking(h Handler) error {
	for {
		_, err := r.PollOnce(h)
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (r *epollReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	epfd := r.epfd
	r.mu.Unlock()
	return unix.Close(epfd)
}
