// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package evhttp

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds the compile-time-default tunables from spec §6, made
// runtime-configurable. Zero value is invalid; use DefaultConfig or
// LoadConfig.
type Config struct {
	// Port the server listens on.
	Port int `toml:"port"`

	// RequestBufSize is the initial per-session read/write buffer size.
	RequestBufSize int `toml:"request_buf_size"`
	// ResponseBufSize is the capacity allocated to build a response when the
	// session buffer was released early (Request.FreeBuffer); otherwise the
	// response is built in the existing session buffer.
	ResponseBufSize int `toml:"response_buf_size"`

	// RequestTimeoutSeconds bounds how long a session may sit mid-request
	// with no further bytes arriving before it is destroyed.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	// KeepAliveTimeoutSeconds bounds how long an idle keep-alive connection
	// may sit between requests before it is destroyed. Both are plain
	// integer seconds, not time.Duration: Session.timeoutSeconds is a
	// countdown decremented once per second by the reactor's 1Hz periodic
	// tick (server.go's SchedulePeriodicTick(time.Second)), matching the
	// original library's own second-granularity timeout bookkeeping.
	KeepAliveTimeoutSeconds int `toml:"keep_alive_timeout_seconds"`

	// MaxContentLength bounds an accepted Content-Length value.
	MaxContentLength int64 `toml:"max_content_length"`
	// MaxTokenLength bounds any single non-body token.
	MaxTokenLength int `toml:"max_token_length"`
	// MaxHeaders bounds the number of headers accepted per request.
	MaxHeaders int `toml:"max_headers"`
	// MaxTotalMemUsage is the process-wide memCounter ceiling used for
	// admission control (component H).
	MaxTotalMemUsage int64 `toml:"max_total_mem_usage"`
}

// DefaultConfig returns the compile-time defaults named in spec §6.
func DefaultConfig() Config {
	return Config{
		Port:                    8080,
		RequestBufSize:          1024,
		ResponseBufSize:         512,
		RequestTimeoutSeconds:   20,
		KeepAliveTimeoutSeconds: 120,
		MaxContentLength:        8 << 20,
		MaxTokenLength:          8 << 10,
		MaxHeaders:              127,
		MaxTotalMemUsage:        4 << 30,
	}
}

// LoadConfig reads a TOML file into Config, starting from DefaultConfig so
// any field the file omits keeps its compile-in default (spec §6: "used
// when no file is supplied" generalizes to "used when a key is absent").
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "evhttp: loading config %s", path)
	}
	return cfg, nil
}
