// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package evhttp implements a single-threaded, event-driven HTTP/1.1
// server: an incremental, reentrant request parser (package token), a
// per-connection session state machine, and a small reactor contract
// (package reactor) the embedding application drives from its own event
// loop.
//
// A typical embedding application looks like:
//
//	cfg := evhttp.DefaultConfig()
//	srv, err := evhttp.NewServer(cfg, func(req *evhttp.Request, resp *evhttp.Response) {
//		resp.Status(200).Header("Content-Type", "text/plain").Body([]byte("ok"))
//		req.Respond(resp)
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := srv.Listen(); err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(srv.Run())
//
// Everything here runs on one goroutine: the handler, every Respond*
// call made synchronously from within it, and the reactor's dispatch
// loop. A handler may instead defer its response -- stash state with
// Request.SetUserData, return without responding, and call Respond*
// later on that same event-loop goroutine (Session has no locking);
// Session detects that case and resumes the state machine itself.
package evhttp
