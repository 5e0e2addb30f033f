package metrics

import "time"

// RatioSource is polled for the current adaptive serialization ratio.
// *innermgr.Basic satisfies this.
type RatioSource interface {
	SerializationRatio() float64
}

// Collector periodically samples gauge-style metrics that aren't naturally
// updated on the hot path, polled on a ticker.
type Collector struct {
	source RatioSource
	stopCh chan struct{}
}

// NewCollector returns a collector polling source every tick.
func NewCollector(source RatioSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s interval.
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.source == nil {
		return
	}
	AdaptiveSerializationRatio.Set(c.source.SerializationRatio())
}
