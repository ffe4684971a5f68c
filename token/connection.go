// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package token

import "github.com/intuitivelabs/bytescase"

// ConnectionTokens walks a Connection header value as a comma-separated
// token list (a narrowed, single-pass adaptation of the teacher's generic
// ParseTokenLst/PTokCommaSepF grammar, scoped to the two tokens the
// session state machine's keep-alive auto-detection cares about) and
// reports whether "close" or "keep-alive" appeared among the tokens.
// Surrounding and separating whitespace (SP, HT) is trimmed; matching is
// case-insensitive.
func ConnectionTokens(value []byte) (hasClose, hasKeepAlive bool) {
	i := 0
	for i < len(value) {
		for i < len(value) && (value[i] == ' ' || value[i] == '\t' || value[i] == ',') {
			i++
		}
		start := i
		for i < len(value) && value[i] != ',' && value[i] != ' ' && value[i] != '\t' {
			i++
		}
		if i > start {
			if bytescase.CmpEq(value[start:i], []byte("close")) {
				hasClose = true
			} else if bytescase.CmpEq(value[start:i], []byte("keep-alive")) {
				hasKeepAlive = true
			}
		}
	}
	return
}
