package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pvelikov/session-balancer/internal/metrics"
	"github.com/pvelikov/session-balancer/internal/routing"
	"github.com/pvelikov/session-balancer/internal/worker"
)

const (
	DefaultStatusURL = "/~status"
	DefaultInterval  = 5 * time.Second
	DefaultTimeout   = 10 * time.Second
)

// Config holds the polling parameters.
type Config struct {
	StatusURL string
	Interval  time.Duration
	Timeout   time.Duration
	DataKey   string
}

func (c Config) withDefaults() Config {
	if c.StatusURL == "" {
		c.StatusURL = DefaultStatusURL
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

type statusRequest struct {
	DataKey string `json:"dataKey"`
}

// statusReport mirrors worker.Status with pointer fields so a response that
// is valid JSON but lacks the load counters is distinguishable from one that
// genuinely reports zero load.
type statusReport struct {
	ClientCount *int `json:"clientCount"`
	HTTPRPM     *int `json:"httpRPM"`
	IORPM       *int `json:"ioRPM"`
}

func (r statusReport) complete() bool {
	return r.ClientCount != nil && r.HTTPRPM != nil && r.IORPM != nil
}

// Monitor periodically polls every worker in the pool for its load report
// and keeps the routing table's least-busy port current. A worker that
// times out, refuses the connection, or answers with anything but the
// expected JSON shape degrades to unknown status for that cycle; nothing a
// single worker does can abort a sweep or stop the monitor.
type Monitor struct {
	cfg       Config
	table     *routing.Table
	cache     *worker.StatusCache
	client    *http.Client
	logger    *slog.Logger
	collector *metrics.Collector

	mu       sync.Mutex
	sweeping bool
}

func NewMonitor(cfg Config, table *routing.Table, cache *worker.StatusCache, logger *slog.Logger, collector *metrics.Collector) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:       cfg,
		table:     table,
		cache:     cache,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
		collector: collector,
	}
}

// Run polls the pool on a fixed ticker until ctx is cancelled. Sweeps are
// serialized: a tick that fires while the previous sweep is still in flight
// is skipped rather than overlapping writes to the status cache.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Status monitor stopped")
			return

		case <-ticker.C:
			if !m.beginSweep() {
				m.logger.Debug("Status sweep still in flight, skipping tick")
				continue
			}
			go func() {
				defer m.endSweep()
				m.Sweep(ctx)
			}()
		}
	}
}

func (m *Monitor) beginSweep() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweeping {
		return false
	}
	m.sweeping = true
	return true
}

func (m *Monitor) endSweep() {
	m.mu.Lock()
	m.sweeping = false
	m.mu.Unlock()
}

// Sweep runs one full poll cycle: every known worker is polled
// concurrently, every poll resolves its worker's status slot exactly once
// (a timeout stores the unknown marker like any other failure), and
// aggregation runs after the last poll completes.
func (m *Monitor) Sweep(ctx context.Context) {
	ports := m.table.Ports()

	var wg sync.WaitGroup
	for _, port := range ports {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			m.poll(ctx, port)
		}(port)
	}
	wg.Wait()

	m.Aggregate()
}

func (m *Monitor) poll(ctx context.Context, port int) {
	body, err := json.Marshal(statusRequest{DataKey: m.cfg.DataKey})
	if err != nil {
		m.cache.Forget(port)
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("http://localhost:%d%s", port, m.cfg.StatusURL)
	req, err := http.NewRequestWithContext(pollCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		m.cache.Forget(port)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("Status poll failed",
			slog.Int("port", port),
			slog.String("error", err.Error()))
		m.cache.Forget(port)
		return
	}
	defer res.Body.Close()

	var report statusReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		m.logger.Debug("Status response unparseable",
			slog.Int("port", port),
			slog.String("error", err.Error()))
		m.cache.Forget(port)
		return
	}
	if !report.complete() {
		m.logger.Debug("Status response missing load counters",
			slog.Int("port", port))
		m.cache.Forget(port)
		return
	}

	m.cache.Put(port, worker.Status{
		ClientCount: *report.ClientCount,
		HTTPRPM:     *report.HTTPRPM,
		IORPM:       *report.IORPM,
	})
}

// Aggregate recomputes the least-busy worker from the current status
// snapshot and stores it in the routing table. Workers with unknown status
// count as maximally busy; ties break to the first minimum in pool order.
// When no worker has known status the pick is a uniformly random known
// port, so the table always names a real worker.
func (m *Monitor) Aggregate() int {
	ports := m.table.Ports()
	if len(ports) == 0 {
		return m.table.LeastBusy()
	}

	business := make(map[int]int, len(ports))
	best := -1
	bestScore := 0

	for _, port := range ports {
		st, ok := m.cache.Get(port)
		if !ok {
			continue
		}

		score := st.Business()
		business[port] = score
		if best == -1 || score < bestScore {
			best = port
			bestScore = score
		}
	}

	if best == -1 {
		best = m.table.RandomPort()
	}

	previous := m.table.LeastBusy()
	m.table.SetLeastBusy(best)

	if best != previous {
		m.logger.Info("Least-busy worker changed",
			slog.Int("from", previous),
			slog.Int("to", best))
	}

	m.collector.Emit(metrics.Event{
		Type:      metrics.EventSweepCompleted,
		LeastBusy: best,
		Business:  business,
	})

	return best
}
