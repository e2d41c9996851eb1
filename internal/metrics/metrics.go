package metrics

import (
	"sort"
	"sync"
	"time"
)

// Metrics accumulates per-worker exchange counters and the latest health
// sweep result.
type Metrics struct {
	mutex     sync.RWMutex
	forwarded map[int]int64
	upgraded  map[int]int64
	durations map[int][]time.Duration
	vetoed    int64
	faults    int64
	leastBusy int
	business  map[int]int
	startTime time.Time
}

// Snapshot is the JSON shape served on the metrics endpoint.
type Snapshot struct {
	TotalForwarded int64                 `json:"total_forwarded"`
	TotalUpgraded  int64                 `json:"total_upgraded"`
	Vetoed         int64                 `json:"vetoed"`
	Faults         int64                 `json:"faults"`
	Uptime         time.Duration         `json:"uptime"`
	LeastBusyPort  int                   `json:"least_busy_port"`
	Workers        map[int]WorkerMetrics `json:"workers"`
}

// WorkerMetrics is one worker's slice of the snapshot. Business is the
// latest polled load score, -1 when the worker's status is unknown.
type WorkerMetrics struct {
	Forwarded   int64         `json:"forwarded"`
	Upgraded    int64         `json:"upgraded"`
	Business    int           `json:"business"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		forwarded: make(map[int]int64),
		upgraded:  make(map[int]int64),
		durations: make(map[int][]time.Duration),
		business:  make(map[int]int),
		startTime: time.Now(),
	}
}

func (m *Metrics) RecordForwarded(port int, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.forwarded[port]++
	m.durations[port] = append(m.durations[port], duration)
	if len(m.durations[port]) > 1000 {
		m.durations[port] = m.durations[port][1:]
	}
}

func (m *Metrics) RecordUpgraded(port int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.upgraded[port]++
}

func (m *Metrics) RecordVeto() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.vetoed++
}

func (m *Metrics) RecordFault() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.faults++
}

// RecordSweep replaces the health view with the latest sweep result.
func (m *Metrics) RecordSweep(leastBusy int, business map[int]int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.leastBusy = leastBusy
	m.business = make(map[int]int, len(business))
	for port, score := range business {
		m.business[port] = score
	}
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Vetoed:        m.vetoed,
		Faults:        m.faults,
		Uptime:        time.Since(m.startTime),
		LeastBusyPort: m.leastBusy,
		Workers:       make(map[int]WorkerMetrics),
	}

	allPorts := make(map[int]bool)
	for port := range m.forwarded {
		allPorts[port] = true
	}
	for port := range m.upgraded {
		allPorts[port] = true
	}
	for port := range m.business {
		allPorts[port] = true
	}

	for port := range allPorts {
		snap.TotalForwarded += m.forwarded[port]
		snap.TotalUpgraded += m.upgraded[port]

		wm := WorkerMetrics{
			Forwarded: m.forwarded[port],
			Upgraded:  m.upgraded[port],
			Business:  -1,
		}
		if score, ok := m.business[port]; ok {
			wm.Business = score
		}

		durations := m.durations[port]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			wm.AvgResponse = average(sorted)
			wm.P50Response = percentile(sorted, 0.50)
			wm.P95Response = percentile(sorted, 0.95)
		}

		snap.Workers[port] = wm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
