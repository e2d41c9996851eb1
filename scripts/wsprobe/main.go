// Wsprobe opens a WebSocket connection through the balancer, sends a batch
// of messages, and reports echo latency. Point it at a pool of workers
// running a WebSocket echo endpoint.
//
// Usage:
//
//	go run ./scripts/wsprobe -url ws://localhost:8080/echo -n 100
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/echo", "WebSocket URL")
	count := flag.Int("n", 100, "messages to send")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", *url, err)
	}
	defer conn.Close()

	var total time.Duration
	for i := 0; i < *count; i++ {
		payload := fmt.Sprintf("probe-%d", i)
		start := time.Now()

		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			log.Fatalf("write: %v", err)
		}

		_, echoed, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		if string(echoed) != payload {
			log.Fatalf("echo mismatch: sent %q got %q", payload, echoed)
		}

		total += time.Since(start)
	}

	fmt.Printf("%d messages, avg round trip %s\n", *count, total/time.Duration(*count))
}
