// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import "strconv"

// HeaderField is a single application-supplied response header (component
// F's response builder models headers as an ordered list of pairs, not a
// map, since repeated header names -- e.g. Set-Cookie -- must all survive).
type HeaderField struct {
	Key   string
	Value string
}

// Response is the builder a request handler fills in and passes to
// Respond/RespondChunk/RespondChunkEnd. The zero value is not usable;
// create one with NewResponse. Ownership of Body is borrowed only for the
// duration of the Respond* call that consumes it: the bytes are copied
// into the session's write buffer before the call returns (spec §5).
type Response struct {
	status  int
	headers []HeaderField
	body    []byte
}

// NewResponse returns an empty Response defaulting to status 200.
func NewResponse() *Response {
	return &Response{status: 200}
}

// Status sets the response status code and returns the Response for
// chaining.
func (r *Response) Status(code int) *Response {
	r.status = code
	return r
}

// Header appends a response header and returns the Response for chaining.
// Multiple calls with the same key emit multiple header lines.
func (r *Response) Header(key, value string) *Response {
	r.headers = append(r.headers, HeaderField{Key: key, Value: value})
	return r
}

// Body sets the response body and returns the Response for chaining.
// RespondChunk sends it as one chunk, framed with its hex length.
func (r *Response) Body(b []byte) *Response {
	r.body = b
	return r
}

// writeStatusLine appends "HTTP/1.1 <status> <reason>\r\n" to buf,
// normalizing status per spec §4.E / testable property #9.
func writeStatusLine(buf []byte, status int) []byte {
	code, reason := normalizeStatus(status)
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(code), 10)
	buf = append(buf, ' ')
	buf = append(buf, reason...)
	buf = append(buf, '\r', '\n')
	return buf
}

// writeHeaderLine appends "<key>: <value>\r\n" to buf.
func writeHeaderLine(buf []byte, key, value string) []byte {
	buf = append(buf, key...)
	buf = append(buf, ':', ' ')
	buf = append(buf, value...)
	buf = append(buf, '\r', '\n')
	return buf
}

// writeChunkFrame appends "<hex-length>\r\n<data>\r\n" to buf -- one
// on-wire chunk, per spec §4.E/§6.
func writeChunkFrame(buf []byte, data []byte) []byte {
	buf = strconv.AppendInt(buf, int64(len(data)), 16)
	buf = append(buf, '\r', '\n')
	buf = append(buf, data...)
	buf = append(buf, '\r', '\n')
	return buf
}

// writeChunkTrailer appends the terminating "0\r\n<trailers>\r\n\r\n" block.
func writeChunkTrailer(buf []byte, trailers []HeaderField) []byte {
	buf = append(buf, '0', '\r', '\n')
	for _, h := range trailers {
		buf = writeHeaderLine(buf, h.Key, h.Value)
	}
	buf = append(buf, '\r', '\n')
	return buf
}

// buildHeadResponse assembles the full, non-chunked response (status line,
// Date, Connection, application headers, Content-Length, blank line, body)
// into buf and returns the extended slice. keepAlive selects the
// Connection header value (spec §4.E).
func buildHeadResponse(buf []byte, resp *Response, date string, keepAlive bool) []byte {
	buf = writeStatusLine(buf, resp.status)
	buf = writeHeaderLine(buf, "Date", date)
	if keepAlive {
		buf = writeHeaderLine(buf, "Connection", "keep-alive")
	} else {
		buf = writeHeaderLine(buf, "Connection", "close")
	}
	for _, h := range resp.headers {
		buf = writeHeaderLine(buf, h.Key, h.Value)
	}
	buf = append(buf, "Content-Length: "...)
	buf = strconv.AppendInt(buf, int64(len(resp.body)), 10)
	buf = append(buf, '\r', '\n', '\r', '\n')
	buf = append(buf, resp.body...)
	return buf
}

// buildChunkedHeadResponse assembles the status line and headers for the
// first call to RespondChunk: same as buildHeadResponse but with
// Transfer-Encoding: chunked instead of Content-Length, and no body (the
// first chunk, if any, is framed separately by the caller).
func buildChunkedHeadResponse(buf []byte, resp *Response, date string, keepAlive bool) []byte {
	buf = writeStatusLine(buf, resp.status)
	buf = writeHeaderLine(buf, "Date", date)
	if keepAlive {
		buf = writeHeaderLine(buf, "Connection", "keep-alive")
	} else {
		buf = writeHeaderLine(buf, "Connection", "close")
	}
	for _, h := range resp.headers {
		buf = writeHeaderLine(buf, h.Key, h.Value)
	}
	buf = writeHeaderLine(buf, "Transfer-Encoding", "chunked")
	buf = append(buf, '\r', '\n')
	return buf
}
