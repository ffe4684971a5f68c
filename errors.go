// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Sentinel errors returned by the embedding API. Per spec §7, the library
// never surfaces parse or I/O errors to the application handler -- these
// are for programmer-misuse cases the core does police (double respond,
// respond_chunk after respond_chunk_end).
var (
	// ErrAlreadyResponded is returned by Respond/RespondChunk when a
	// response has already been started for the current request.
	ErrAlreadyResponded = stderrors.New("evhttp: response already sent for this request")

	// ErrChunkedResponseEnded is returned by RespondChunk when called after
	// RespondChunkEnd already closed the chunked response.
	ErrChunkedResponseEnded = stderrors.New("evhttp: chunked response already ended")

	// ErrNotChunkedResponse is returned by RespondChunkEnd when no chunked
	// response was ever started with RespondChunk.
	ErrNotChunkedResponse = stderrors.New("evhttp: respond_chunk_end without a chunked response")
)

// wrapSyscall annotates a syscall-level I/O error (accept, read, write)
// with the operation that failed, preserving the original error so callers
// can still reach the underlying syscall.Errno with errors.Cause, mirroring
// the teacher's convention of never inventing a parallel error hierarchy.
func wrapSyscall(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "evhttp: %s", op)
}
