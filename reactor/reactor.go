// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package reactor defines the event-demultiplexer contract the evhttp
// core consumes (component G, spec §4.F): registering readable/writable
// interest on file descriptors, a periodic wall-clock tick, and blocking
// or single-pass run modes. It knows nothing about HTTP, sessions, or
// buffers -- only file descriptors and readiness.
package reactor

import "time"

// EventSource is the tagged union of everything a Handler can be called
// with, per spec §9's design note: "model this as a tagged event-source
// variant dispatched by match, not by structural punning." Each concrete
// type below implements it; callers type-switch on the value.
type EventSource interface {
	isEventSource()
}

// Acceptable fires when a listening socket has a connection ready to be
// accepted.
type Acceptable struct {
	Fd int
}

// Readable fires when a registered session socket has bytes ready to read.
type Readable struct {
	Fd int
}

// Writable fires when a registered session socket can accept more writes,
// delivered once after RearmWritable requests it.
type Writable struct {
	Fd int
}

// Tick fires once per scheduled interval (spec's combined server/session
// tick source); the core fans this out to its own per-session countdowns
// and date-string refresh rather than asking the reactor to track
// per-connection timeout state, which keeps the reactor transport-only.
type Tick struct{}

func (Acceptable) isEventSource() {}
func (Readable) isEventSource()   {}
func (Writable) isEventSource()   {}
func (Tick) isEventSource()       {}

// Handler receives every event the Reactor dispatches.
type Handler func(EventSource)

// Reactor is the abstract interface spec §4.F names: register_acceptable,
// register_readable, rearm_writable, unregister, schedule_periodic_tick,
// and the two run modes. epoll_linux.go provides the reference
// implementation backing it with golang.org/x/sys/unix epoll.
type Reactor interface {
	// RegisterAcceptable arms fd (a listening socket) for Acceptable events.
	RegisterAcceptable(fd int) error
	// RegisterReadable arms fd for Readable events, replacing any prior
	// registration for fd.
	RegisterReadable(fd int) error
	// RearmWritable arms fd for exactly one further Writable event, used
	// after a partial, would-block write.
	RearmWritable(fd int) error
	// Unregister removes fd from the reactor. Safe to call on an fd that
	// is not currently registered.
	Unregister(fd int) error

	// SchedulePeriodicTick arranges for a Tick event every d, starting
	// with the first RunBlocking/PollOnce call.
	SchedulePeriodicTick(d time.Duration)

	// RunBlocking dispatches events to h until Close is called.
	RunBlocking(h Handler) error
	// PollOnce waits for at least one event (or the next tick, whichever
	// comes first), dispatches all events currently ready, and returns how
	// many were dispatched.
	PollOnce(h Handler) (int, error)

	// Close releases the reactor's own resources (e.g. the epoll fd). It
	// does not close any registered session or listener fd.
	Close() error
}
