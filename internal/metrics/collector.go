package metrics

import (
	"context"
	"time"

	"streamvio/internal/logging"
)

// StatsProvider supplies periodically sampled pipeline statistics.
type StatsProvider interface {
	CollectStats(ctx context.Context) (Stats, error)
}

// Stats holds the sampled values.
type Stats struct {
	JobsByState    map[string]int
	CacheSizeBytes int64
	DBConnections  int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	stats, err := c.statsProvider.CollectStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	for state, n := range stats.JobsByState {
		JobsByState.WithLabelValues(state).Set(float64(n))
	}
	CacheSizeBytes.Set(float64(stats.CacheSizeBytes))
	DBConnectionsOpen.Set(float64(stats.DBConnections))

	logging.Debug("Metrics collected: jobs=%v, cache=%d bytes", stats.JobsByState, stats.CacheSizeBytes)
}
