package metrics

import (
	"context"
	"time"

	"github.com/strongroomhq/strongroom/pkg/types"
)

// StatsSource exposes the store aggregates the collector publishes as
// gauges. Implemented by the storage layer.
type StatsSource interface {
	JobStatusCounts(ctx context.Context) (map[types.JobStatus]int64, error)
	WorkflowStateCounts(ctx context.Context) (map[types.WorkflowState]int64, error)
}

// Collector refreshes store-derived gauges on a fixed interval.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector builds a collector over the given stats source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start launches the refresh loop. The first collection runs
// immediately so gauges are populated before the first tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop terminates the refresh loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectJobMetrics(ctx)
	c.collectWorkflowMetrics(ctx)
}

func (c *Collector) collectJobMetrics(ctx context.Context) {
	counts, err := c.source.JobStatusCounts(ctx)
	if err != nil {
		return
	}

	// Publish all four statuses so absent ones read zero, not stale.
	for _, status := range []types.JobStatus{
		types.JobStatusPending,
		types.JobStatusRunning,
		types.JobStatusCompleted,
		types.JobStatusFailed,
	} {
		JobsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectWorkflowMetrics(ctx context.Context) {
	counts, err := c.source.WorkflowStateCounts(ctx)
	if err != nil {
		return
	}

	for state, count := range counts {
		WorkflowsByState.WithLabelValues(string(state)).Set(float64(count))
	}
}
