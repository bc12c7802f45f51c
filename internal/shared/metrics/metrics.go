package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	diagnosisStartedTotal   atomic.Uint64
	diagnosisCompletedTotal atomic.Uint64
	diagnosisFailedTotal    atomic.Uint64
	retranslationsTotal     atomic.Uint64
	staleDiscardedTotal     atomic.Uint64

	diagnosisDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// IncDiagnosisStarted increments the started counter.
func IncDiagnosisStarted() {
	diagnosisStartedTotal.Add(1)
}

// IncDiagnosisCompleted increments the completed counter.
func IncDiagnosisCompleted() {
	diagnosisCompletedTotal.Add(1)
}

// IncDiagnosisFailed increments the failed counter.
func IncDiagnosisFailed() {
	diagnosisFailedTotal.Add(1)
}

// IncRetranslation counts a current result re-requested in a new language.
func IncRetranslation() {
	retranslationsTotal.Add(1)
}

// IncStaleDiscarded counts in-flight results discarded as stale.
func IncStaleDiscarded() {
	staleDiscardedTotal.Add(1)
}

// ObserveDiagnosisDurationMs records one diagnosis round trip in milliseconds.
func ObserveDiagnosisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	diagnosisDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "diagnosis_started_total", "Total diagnoses started", diagnosisStartedTotal.Load())
	writeCounter(&buf, "diagnosis_completed_total", "Total diagnoses completed", diagnosisCompletedTotal.Load())
	writeCounter(&buf, "diagnosis_failed_total", "Total diagnoses failed", diagnosisFailedTotal.Load())
	writeCounter(&buf, "retranslations_total", "Total language retranslations applied", retranslationsTotal.Load())
	writeCounter(&buf, "stale_discarded_total", "Total in-flight results discarded as stale", staleDiscardedTotal.Load())
	writeHistogram(&buf, "diagnosis_duration_ms", "Diagnosis duration in milliseconds", diagnosisDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns the current time in milliseconds for duration math.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
