// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

// reasonPhrases holds the common IANA status-code reason phrases used by
// the response assembler (component F). It is not exhaustive; codes in
// range but absent here get an empty reason, per spec §4.E.
var reasonPhrases = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	429: "Too Many Requests",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// normalizeStatus implements spec §4.E / testable property #9: a status
// outside [100,599] is replaced with 500; a status within range but absent
// from reasonPhrases keeps its numeric code with an empty reason.
func normalizeStatus(code int) (int, string) {
	if code < 100 || code > 599 {
		return 500, reasonPhrases[500]
	}
	return code, reasonPhrases[code]
}
