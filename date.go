// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import "time"

// dateFormat matches the 24-character asctime-style timestamp spec §4.E's
// scenario S1 expects in the Date header, e.g. "Mon Jan  2 15:04:05 2006".
const dateFormat = "Mon Jan _2 15:04:05 2006"

// dateCache holds the process-wide formatted-date string, refreshed once a
// second by the server tick (component G) and read unsynchronized by every
// response build (component F). Per spec §5 and §9's "Global date string"
// design note, this is a cooperative single-threaded optimization: the
// reactor guarantees the tick and every response build happen on the same
// goroutine, so no lock is needed; a string value is read/written
// atomically in Go regardless.
type dateCache struct {
	current string
}

func newDateCache() *dateCache {
	d := &dateCache{}
	d.refresh()
	return d
}

// refresh recomputes the cached date string from the current wall clock.
// Called once per second by the server's tick handler.
func (d *dateCache) refresh() {
	d.current = time.Now().UTC().Format(dateFormat)
}

// String returns the most recently cached formatted date.
func (d *dateCache) String() string {
	return d.current
}
