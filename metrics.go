package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Functions

// runPromHTTP exposes the registered prometheus metrics of this
// replica via HTTP on addr. An empty addr disables the endpoint.
func runPromHTTP(logger log.Logger, addr string) {

	if addr == "" {
		level.Debug(logger).Log("msg", "prometheus addr is empty, not exposing prometheus metrics")
		return
	}

	http.Handle("/metrics", promhttp.HandlerFor(prom.DefaultGatherer, promhttp.HandlerOpts{}))

	level.Info(logger).Log("msg", "prometheus handler listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		level.Warn(logger).Log("msg", "failed to serve prometheus metrics", "err", err)
	}
}
