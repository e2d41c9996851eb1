package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventForwarded      EventType = "forwarded"
	EventUpgraded       EventType = "upgraded"
	EventVetoed         EventType = "vetoed"
	EventFault          EventType = "fault"
	EventSweepCompleted EventType = "sweep_completed"
)

// Event is one observation emitted by the exchange path or the health
// monitor. Port and Duration apply to forwarded exchanges; LeastBusy and
// Business apply to sweep completions.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Port      int
	Duration  time.Duration
	LeastBusy int
	Business  map[int]int
}

// Collector consumes events from a buffered channel so the exchange path
// never blocks on metrics bookkeeping.
type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit records an event without blocking; events are dropped when the
// buffer is full.
func (c *Collector) Emit(event Event) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventForwarded:
		c.metrics.RecordForwarded(event.Port, event.Duration)

	case EventUpgraded:
		c.metrics.RecordUpgraded(event.Port)

	case EventVetoed:
		c.metrics.RecordVeto()

	case EventFault:
		c.metrics.RecordFault()

	case EventSweepCompleted:
		c.metrics.RecordSweep(event.LeastBusy, event.Business)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
