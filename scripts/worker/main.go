// Worker is a stand-in backend for manual balancer testing. It serves the
// status endpoint the balancer polls and tags plain responses with a
// sticky session cookie encoding its own port.
//
// Usage:
//
//	go run ./scripts/worker -port 8081 -data-key dev
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type statusReport struct {
	ClientCount int `json:"clientCount"`
	HTTPRPM     int `json:"httpRPM"`
	IORPM       int `json:"ioRPM"`
}

type statusRequest struct {
	DataKey string `json:"dataKey"`
}

func main() {
	port := flag.Int("port", 8081, "listen port")
	dataKey := flag.String("data-key", "dev", "expected dataKey in status polls")
	flag.Parse()

	var inflight atomic.Int64
	var requestCount atomic.Int64
	tag := uuid.NewString()[:8]

	go func() {
		// Rough requests-per-minute window.
		for range time.Tick(time.Minute) {
			requestCount.Store(0)
		}
	}()

	http.HandleFunc("/~status", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var sr statusRequest
		if err := json.Unmarshal(body, &sr); err == nil && sr.DataKey != *dataKey {
			log.Printf("status poll with unexpected dataKey %q", sr.DataKey)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusReport{
			ClientCount: int(inflight.Load()),
			HTTPRPM:     int(requestCount.Load()),
		})
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		inflight.Add(1)
		defer inflight.Add(-1)
		requestCount.Add(1)

		if !strings.Contains(r.Header.Get("Cookie"), "sid=") {
			sid := fmt.Sprintf("%s_%d_%s_%s", tag, *port, uuid.NewString()[:8], uuid.NewString())
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: sid, Path: "/"})
		}

		fmt.Fprintf(w, "worker %d served %s\n", *port, r.URL.Path)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("worker %s listening on %s", tag, addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
