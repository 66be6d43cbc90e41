package metrics

import (
	"strconv"
	"time"
)

// MetricsWrapper adapts Metrics to the narrow interfaces the ml, risk and
// dashboard packages depend on, so none of them import Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc()                   { w.m.MLPredictions.Inc() }
func (w *MetricsWrapper) MLFailuresInc()                      { w.m.MLFailures.Inc() }
func (w *MetricsWrapper) MLTimeoutsInc()                      { w.m.MLTimeouts.Inc() }
func (w *MetricsWrapper) MLLatencyObserve(v float64)          { w.m.MLLatency.Observe(v) }
func (w *MetricsWrapper) MLModelAgeSet(v float64)             { w.m.MLModelAge.Set(v) }
func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) { w.m.MLPredictionScores.Observe(v) }

// AssessmentObserve counts an assessment under its band.
func (w *MetricsWrapper) AssessmentObserve(band string, _ float64) {
	w.m.Assessments.WithLabelValues(band).Inc()
}

func (w *MetricsWrapper) ContractViolationInc() { w.m.ContractViolations.Inc() }

func (w *MetricsWrapper) InvalidReadingInc() { w.m.InvalidReadings.Inc() }

// RequestObserve records one dashboard request.
func (w *MetricsWrapper) RequestObserve(route string, code int, d time.Duration) {
	w.m.RequestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}
