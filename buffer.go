// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import "sync/atomic"

// memused is the process-wide estimate of bytes committed to live session
// buffers, compared against Config.MaxTotalMemUsage for admission control
// (component H). The event loop is single-threaded, so a plain counter
// would do, but the Server's memused is also read from Server.Memused() by
// embedding applications (e.g. for metrics) from outside the loop
// goroutine, so it is updated atomically.
type memCounter struct {
	n int64
}

func (m *memCounter) add(delta int) {
	atomic.AddInt64(&m.n, int64(delta))
}

func (m *memCounter) get() int64 {
	return atomic.LoadInt64(&m.n)
}

// sessionBuffer is a growable byte buffer used for both the read and write
// sides of a session. It starts at an initial capacity and doubles on
// overflow (component D). Every capacity change is reflected in the
// server-wide memCounter so admission control sees an up to date estimate.
type sessionBuffer struct {
	buf     []byte
	filled  int // bytes holding live data, buf[:filled]
	written int // bytes of buf[:filled] already flushed to the socket

	mem *memCounter
}

func newSessionBuffer(initCap int, mem *memCounter) *sessionBuffer {
	b := &sessionBuffer{buf: make([]byte, initCap), mem: mem}
	mem.add(initCap)
	return b
}

// Cap returns the buffer's current capacity.
func (b *sessionBuffer) Cap() int {
	return cap(b.buf)
}

// Filled returns the number of live bytes, buf[:Filled()].
func (b *sessionBuffer) Filled() int {
	return b.filled
}

// Bytes returns the live portion of the buffer.
func (b *sessionBuffer) Bytes() []byte {
	return b.buf[:b.filled]
}

// grow doubles the buffer's capacity, at least until it can hold need bytes,
// and updates the shared memCounter by the delta.
func (b *sessionBuffer) grow(need int) {
	oldCap := cap(b.buf)
	newCap := oldCap
	if newCap == 0 {
		newCap = need
	}
	for newCap < need {
		newCap *= 2
	}
	if newCap == oldCap {
		return
	}
	nb := make([]byte, newCap)
	copy(nb, b.buf[:b.filled])
	b.buf = nb
	b.mem.add(newCap - oldCap)
}

// ensure grows the buffer, if needed, so buf[:need] is addressable.
func (b *sessionBuffer) ensure(need int) {
	if need > cap(b.buf) {
		b.grow(need)
	}
}

// reset clears the buffer back to empty, without releasing its capacity
// (reused across keep-alive requests on the same session).
func (b *sessionBuffer) reset() {
	b.filled = 0
	b.written = 0
}

// release returns the buffer's capacity to the server-wide counter and
// drops the backing array. Called when a session is destroyed or when its
// buffer is freed early via Request.FreeBuffer.
func (b *sessionBuffer) release() {
	if b.buf != nil {
		b.mem.add(-cap(b.buf))
	}
	b.buf = nil
	b.filled = 0
	b.written = 0
}

// ensureAlive reallocates the buffer if it was released early via
// Request.FreeBuffer but is needed again (e.g. to assemble a synthetic
// error response after the request body was freed).
func (b *sessionBuffer) ensureAlive(initCap int) {
	if b.buf != nil {
		return
	}
	b.buf = make([]byte, initCap)
	b.mem.add(initCap)
	b.filled = 0
	b.written = 0
}

// adopt replaces the buffer's backing array wholesale, reconciling the
// server-wide memCounter by the capacity delta. Used when a response is
// assembled by appending into b.buf[:0] directly with the plain built-in
// append (buildHeadResponse and friends), since a bare field assignment
// afterward would let that growth silently escape memCounter.
func (b *sessionBuffer) adopt(nb []byte) {
	oldCap := cap(b.buf)
	newCap := cap(nb)
	if newCap != oldCap {
		b.mem.add(newCap - oldCap)
	}
	b.buf = nb
	b.filled = len(nb)
	b.written = 0
}

// compact discards buf[:from], shifting buf[from:filled] down to offset 0.
// Used by the chunked-body reader (component C's recycling invariant) so a
// long chunked upload never needs the buffer to grow past a small multiple
// of its initial size.
func (b *sessionBuffer) compact(from int) {
	if from <= 0 {
		return
	}
	if from >= b.filled {
		b.filled = 0
		return
	}
	n := copy(b.buf, b.buf[from:b.filled])
	b.filled = n
}
