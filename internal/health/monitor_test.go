package health_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pvelikov/session-balancer/internal/health"
	"github.com/pvelikov/session-balancer/internal/routing"
	"github.com/pvelikov/session-balancer/internal/worker"
)

func pool(ports ...int) []worker.Worker {
	workers := make([]worker.Worker, 0, len(ports))
	for _, p := range ports {
		workers = append(workers, worker.New("localhost", p))
	}
	return workers
}

func serverPort(ts *httptest.Server) int {
	u, err := url.Parse(ts.URL)
	Expect(err).NotTo(HaveOccurred())
	port, err := strconv.Atoi(u.Port())
	Expect(err).NotTo(HaveOccurred())
	return port
}

func statusHandler(st worker.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}
}

var _ = Describe("Monitor", func() {
	var log *slog.Logger

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
	})

	Describe("Aggregate", func() {
		var (
			table *routing.Table
			cache *worker.StatusCache
			mon   *health.Monitor
		)

		BeforeEach(func() {
			table = routing.NewTable(pool(8081, 8082, 8083))
			cache = worker.NewStatusCache()
			mon = health.NewMonitor(health.Config{}, table, cache, log, nil)
		})

		It("selects the worker with the lowest business score", func() {
			cache.Put(8082, worker.Status{ClientCount: 1, HTTPRPM: 2, IORPM: 3})
			cache.Put(8083, worker.Status{})

			Expect(mon.Aggregate()).To(Equal(8083))
			Expect(table.LeastBusy()).To(Equal(8083))
		})

		It("treats unknown status as maximally busy", func() {
			cache.Put(8082, worker.Status{ClientCount: 100, HTTPRPM: 100, IORPM: 100})

			Expect(mon.Aggregate()).To(Equal(8082))
		})

		It("breaks ties toward the first minimum in pool order", func() {
			cache.Put(8081, worker.Status{ClientCount: 1})
			cache.Put(8082, worker.Status{ClientCount: 1})
			cache.Put(8083, worker.Status{ClientCount: 1})

			Expect(mon.Aggregate()).To(Equal(8081))
		})

		It("picks a random known port when every worker is unknown", func() {
			Expect(table.Ports()).To(ContainElement(mon.Aggregate()))
		})

		It("is idempotent over an unchanged snapshot", func() {
			cache.Put(8081, worker.Status{ClientCount: 4})
			cache.Put(8082, worker.Status{ClientCount: 2})
			cache.Put(8083, worker.Status{ClientCount: 7})

			first := mon.Aggregate()
			Expect(mon.Aggregate()).To(Equal(first))
			Expect(first).To(Equal(8082))
		})
	})

	Describe("Sweep", func() {
		It("stores each worker's reported status and picks the least busy", func() {
			busy := httptest.NewServer(statusHandler(worker.Status{ClientCount: 9, HTTPRPM: 5}))
			defer busy.Close()
			idle := httptest.NewServer(statusHandler(worker.Status{ClientCount: 1}))
			defer idle.Close()

			busyPort, idlePort := serverPort(busy), serverPort(idle)
			table := routing.NewTable(pool(busyPort, idlePort))
			cache := worker.NewStatusCache()
			mon := health.NewMonitor(health.Config{Timeout: time.Second}, table, cache, log, nil)

			mon.Sweep(context.Background())

			st, ok := cache.Get(busyPort)
			Expect(ok).To(BeTrue())
			Expect(st.Business()).To(Equal(14))
			Expect(table.LeastBusy()).To(Equal(idlePort))
		})

		It("sends the data key in the poll body", func() {
			var gotKey string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				body, _ := io.ReadAll(r.Body)
				var req struct {
					DataKey string `json:"dataKey"`
				}
				Expect(json.Unmarshal(body, &req)).To(Succeed())
				gotKey = req.DataKey
				json.NewEncoder(w).Encode(worker.Status{})
			}))
			defer ts.Close()

			port := serverPort(ts)
			table := routing.NewTable(pool(port))
			mon := health.NewMonitor(
				health.Config{Timeout: time.Second, DataKey: "staging"},
				table, worker.NewStatusCache(), log, nil)

			mon.Sweep(context.Background())

			Expect(gotKey).To(Equal("staging"))
		})

		It("degrades a worker with an unparseable body to unknown", func() {
			garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			}))
			defer garbage.Close()
			idle := httptest.NewServer(statusHandler(worker.Status{ClientCount: 50}))
			defer idle.Close()

			garbagePort, idlePort := serverPort(garbage), serverPort(idle)
			table := routing.NewTable(pool(garbagePort, idlePort))
			cache := worker.NewStatusCache()
			mon := health.NewMonitor(health.Config{Timeout: time.Second}, table, cache, log, nil)

			mon.Sweep(context.Background())

			_, ok := cache.Get(garbagePort)
			Expect(ok).To(BeFalse())
			Expect(table.LeastBusy()).To(Equal(idlePort))
		})

		It("degrades a worker answering well-formed JSON without load counters to unknown", func() {
			// A generic health payload must not read as zero load.
			generic := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"status":"ok"}`))
			}))
			defer generic.Close()
			reporting := httptest.NewServer(statusHandler(worker.Status{ClientCount: 1}))
			defer reporting.Close()

			genericPort, reportingPort := serverPort(generic), serverPort(reporting)
			table := routing.NewTable(pool(genericPort, reportingPort))
			cache := worker.NewStatusCache()
			mon := health.NewMonitor(health.Config{Timeout: time.Second}, table, cache, log, nil)

			mon.Sweep(context.Background())

			_, ok := cache.Get(genericPort)
			Expect(ok).To(BeFalse())
			Expect(table.LeastBusy()).To(Equal(reportingPort))
		})

		It("degrades a worker reporting only some load counters to unknown", func() {
			partial := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"clientCount":0,"httpRPM":0}`))
			}))
			defer partial.Close()
			reporting := httptest.NewServer(statusHandler(worker.Status{ClientCount: 2}))
			defer reporting.Close()

			partialPort, reportingPort := serverPort(partial), serverPort(reporting)
			table := routing.NewTable(pool(partialPort, reportingPort))
			cache := worker.NewStatusCache()
			mon := health.NewMonitor(health.Config{Timeout: time.Second}, table, cache, log, nil)

			mon.Sweep(context.Background())

			_, ok := cache.Get(partialPort)
			Expect(ok).To(BeFalse())
			Expect(table.LeastBusy()).To(Equal(reportingPort))
		})

		It("degrades a worker with an empty body to unknown", func() {
			empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			defer empty.Close()

			port := serverPort(empty)
			table := routing.NewTable(pool(port))
			cache := worker.NewStatusCache()
			mon := health.NewMonitor(health.Config{Timeout: time.Second}, table, cache, log, nil)

			mon.Sweep(context.Background())

			_, ok := cache.Get(port)
			Expect(ok).To(BeFalse())
		})

		It("counts a timed-out worker as done with unknown status", func() {
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(400 * time.Millisecond)
				json.NewEncoder(w).Encode(worker.Status{})
			}))
			defer slow.Close()
			idle := httptest.NewServer(statusHandler(worker.Status{ClientCount: 3}))
			defer idle.Close()

			slowPort, idlePort := serverPort(slow), serverPort(idle)
			table := routing.NewTable(pool(slowPort, idlePort))
			cache := worker.NewStatusCache()
			mon := health.NewMonitor(health.Config{Timeout: 100 * time.Millisecond}, table, cache, log, nil)

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				mon.Sweep(context.Background())
				close(done)
			}()

			// Aggregation must run even though one poll never answered.
			Eventually(done, "2s").Should(BeClosed())
			_, ok := cache.Get(slowPort)
			Expect(ok).To(BeFalse())
			Expect(table.LeastBusy()).To(Equal(idlePort))
		})

		It("stays stable when a worker goes away between sweeps", func() {
			flaky := httptest.NewServer(statusHandler(worker.Status{ClientCount: 1}))
			idle := httptest.NewServer(statusHandler(worker.Status{ClientCount: 2}))
			defer idle.Close()

			flakyPort, idlePort := serverPort(flaky), serverPort(idle)
			table := routing.NewTable(pool(flakyPort, idlePort))
			cache := worker.NewStatusCache()
			mon := health.NewMonitor(health.Config{Timeout: 200 * time.Millisecond}, table, cache, log, nil)

			mon.Sweep(context.Background())
			Expect(table.LeastBusy()).To(Equal(flakyPort))

			flaky.Close()
			mon.Sweep(context.Background())

			// The dead worker degrades to unknown; the survivor wins.
			Expect(table.LeastBusy()).To(Equal(idlePort))
		})
	})

	Describe("Run", func() {
		It("polls on the configured interval until cancelled", func() {
			ts := httptest.NewServer(statusHandler(worker.Status{ClientCount: 1}))
			defer ts.Close()

			port := serverPort(ts)
			table := routing.NewTable(pool(port))
			cache := worker.NewStatusCache()
			mon := health.NewMonitor(
				health.Config{Interval: 50 * time.Millisecond, Timeout: time.Second},
				table, cache, log, nil)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				mon.Run(ctx)
				close(done)
			}()

			Eventually(func() bool {
				_, ok := cache.Get(port)
				return ok
			}, "2s").Should(BeTrue())

			cancel()
			Eventually(done, "1s").Should(BeClosed())
		})
	})
})
