package main

import (
	"net/http"
	"strings"

	"github.com/pvelikov/session-balancer/internal/balancer"
	"github.com/pvelikov/session-balancer/internal/metrics"
)

func setupRouter(bal *balancer.Balancer, collector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/metrics", collector.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if isUpgrade(r) {
			bal.HandleUpgrade(w, r)
			return
		}
		bal.HandleRequest(w, r)
	})

	return mux
}

// isUpgrade reports whether the request asks for a protocol upgrade.
// Connection is a comma-separated token list per RFC 9110.
func isUpgrade(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}

	for _, token := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}
