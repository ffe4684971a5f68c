// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Command evhttpd is a thin example server built on package evhttp: it
// wires a Config and a Handler together and runs the event loop. The
// actual HTTP logic belongs in the library, not here.
package main

import (
	"flag"
	"os"

	"github.com/loopwire/evhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional)")
	flag.Parse()

	log := logrus.New()

	cfg := evhttp.DefaultConfig()
	if *configPath != "" {
		loaded, err := evhttp.LoadConfig(*configPath)
		if err != nil {
			log.WithError(err).Fatal("loading config")
		}
		cfg = loaded
	}

	srv, err := evhttp.NewServer(cfg, handle)
	if err != nil {
		log.WithError(err).Fatal("creating server")
	}
	srv.SetLogger(log)

	if err := srv.Listen(); err != nil {
		log.WithError(err).Fatal("listening")
	}
	log.WithField("port", cfg.Port).Info("evhttpd listening")

	if err := srv.Run(); err != nil {
		log.WithError(err).Error("event loop exited")
		os.Exit(1)
	}
}

func handle(req *evhttp.Request, resp *evhttp.Response) {
	resp.Status(200).
		Header("Content-Type", "text/plain; charset=utf-8").
		Body([]byte("ok\n"))
	req.Respond(resp)
}
