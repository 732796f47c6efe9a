package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIncrement(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("messages_sent", nil, "Messages sent")
	r.IncrementCounter("messages_sent", nil, "Messages sent")
	r.AddToCounter("messages_sent", 3, nil, "Messages sent")

	all := r.GetAllMetrics()
	counters := all["counters"].(map[string]*Metric)
	require.Contains(t, counters, "messages_sent")
	assert.Equal(t, float64(5), counters["messages_sent"].Value)
}

func TestCounterLabelsProduceDistinctSeries(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("parse_errors", map[string]string{"topic": "/topic/messages"}, "")
	r.IncrementCounter("parse_errors", map[string]string{"topic": "/topic/messages.read"}, "")

	counters := r.GetAllMetrics()["counters"].(map[string]*Metric)
	assert.Len(t, counters, 2)
}

func TestGaugeOverwrites(t *testing.T) {
	r := NewRegistry()
	r.SetGauge("pending_messages", 4, nil, "")
	r.SetGauge("pending_messages", 1, nil, "")

	gauges := r.GetAllMetrics()["gauges"].(map[string]*Metric)
	require.Contains(t, gauges, "pending_messages")
	assert.Equal(t, float64(1), gauges["pending_messages"].Value)
}

func TestTimerAggregates(t *testing.T) {
	r := NewRegistry()
	r.RecordTimer("send_duration", 10*time.Millisecond, nil, "")
	r.RecordTimer("send_duration", 30*time.Millisecond, nil, "")

	timers := r.GetAllMetrics()["timers"].(map[string]*TimerMetric)
	require.Contains(t, timers, "send_duration")
	timer := timers["send_duration"]
	assert.Equal(t, int64(2), timer.Count)
	assert.InDelta(t, 10, timer.Min, 1)
	assert.InDelta(t, 30, timer.Max, 1)
	assert.InDelta(t, 20, timer.Average, 1)
}

func TestMetricKeyIsStableAcrossLabelOrder(t *testing.T) {
	a := metricKey("m", map[string]string{"a": "1", "b": "2"})
	b := metricKey("m", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
}
