package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRatioSource struct{ ratio float64 }

func (f fakeRatioSource) SerializationRatio() float64 { return f.ratio }

func TestCollectorSetsRatioGauge(t *testing.T) {
	c := NewCollector(fakeRatioSource{ratio: 0.42})
	c.collect()

	var m dto.Metric
	require.NoError(t, AdaptiveSerializationRatio.Write(&m))
	assert.InDelta(t, 0.42, m.GetGauge().GetValue(), 0.0001)
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(fakeRatioSource{ratio: 1})
	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}
