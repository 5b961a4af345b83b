package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeEmpty(t *testing.T) {
	r := NewRecorder()
	summary := r.Summarize()

	assert.Equal(t, 0, summary.SampleCount)
	assert.Equal(t, time.Duration(0), summary.MeanLatency)
	assert.Equal(t, time.Duration(0), summary.P95Latency)
	assert.Equal(t, 0.0, summary.TotalCost)
	assert.Empty(t, summary.PerStageMean)
}

func TestNearestRankPercentiles(t *testing.T) {
	r := NewRecorder()
	for _, ms := range []int{10, 20, 30, 40, 50} {
		r.Record("retrieve", time.Duration(ms)*time.Millisecond, OutcomeSuccess)
	}

	summary := r.Summarize()

	assert.Equal(t, 5, summary.SampleCount)
	assert.Equal(t, 30*time.Millisecond, summary.P50Latency)
	assert.Equal(t, 50*time.Millisecond, summary.P95Latency)
	assert.Equal(t, 50*time.Millisecond, summary.P99Latency)
	assert.Equal(t, 30*time.Millisecond, summary.MeanLatency)
}

func TestPercentileSingleSample(t *testing.T) {
	r := NewRecorder()
	r.Record("assess", 42*time.Millisecond, OutcomeSuccess)

	summary := r.Summarize()

	assert.Equal(t, 42*time.Millisecond, summary.P50Latency)
	assert.Equal(t, 42*time.Millisecond, summary.P99Latency)
}

func TestPerStageMeans(t *testing.T) {
	r := NewRecorder()
	r.Record("ingest", 2*time.Millisecond, OutcomeSuccess)
	r.Record("ingest", 4*time.Millisecond, OutcomeSuccess)
	r.Record("generate", 100*time.Millisecond, OutcomeSuccess)

	summary := r.Summarize()

	assert.Equal(t, 3*time.Millisecond, summary.PerStageMean["ingest"])
	assert.Equal(t, 100*time.Millisecond, summary.PerStageMean["generate"])
}

func TestRecordCostTotals(t *testing.T) {
	r := NewRecorder()
	r.RecordCost(1000, 500, 0.0000001, 0.0000001)
	r.RecordCost(2000, 1000, 0.0000001, 0.0000001)

	summary := r.Summarize()

	assert.Equal(t, 2, summary.CostEntries)
	assert.Equal(t, 3000, summary.TotalInputTokens)
	assert.Equal(t, 1500, summary.TotalOutputTokens)
	assert.InDelta(t, 0.00045, summary.TotalCost, 1e-9)
	assert.InDelta(t, 0.000225, summary.MeanCost, 1e-9)
}

func TestConcurrentAppend(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	const writers = 8
	const perWriter = 100

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r.Record("retrieve", time.Millisecond, OutcomeSuccess)
				r.RecordCost(10, 5, 0.0000001, 0.0000001)
			}
		}()
	}
	wg.Wait()

	summary := r.Summarize()
	assert.Equal(t, writers*perWriter, summary.SampleCount)
	assert.Equal(t, writers*perWriter, summary.CostEntries)
}

func TestFailedStagesStillCounted(t *testing.T) {
	r := NewRecorder()
	r.Record("assess", 5*time.Millisecond, OutcomeFailure)
	r.Record("generate", 0, OutcomeSkipped)

	summary := r.Summarize()
	assert.Equal(t, 2, summary.SampleCount)
}
