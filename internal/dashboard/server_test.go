package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"predictive-maintenance/internal/features"
	"predictive-maintenance/internal/metrics"
	"predictive-maintenance/internal/ml"
	"predictive-maintenance/internal/risk"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	mu       sync.Mutex
	invalid  int
	requests map[string]int
}

func (f *fakeMetrics) InvalidReadingInc() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalid++
}

func (f *fakeMetrics) RequestObserve(route string, code int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requests == nil {
		f.requests = make(map[string]int)
	}
	f.requests[route]++
}

type fakeHistory struct {
	items []risk.Assessment
	err   error
}

func (f *fakeHistory) Recent(n int) ([]risk.Assessment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n > len(f.items) {
		n = len(f.items)
	}
	return f.items[:n], nil
}

func newTestServer(t *testing.T, label int, probability float64, opts ...Option) (*Server, *ml.StubClassifier) {
	t.Helper()
	model, stub := ml.NewStubModel(label, probability)
	return NewServer(risk.NewAssessor(model), 0, opts...), stub
}

func defaultForm() url.Values {
	return url.Values{
		"type":                {"L"},
		"air_temperature":     {"298.0"},
		"process_temperature": {"308.0"},
		"rotational_speed":    {"1500"},
		"torque":              {"40.0"},
		"tool_wear":           {"50"},
	}
}

func postForm(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestForm_RendersDefaults(t *testing.T) {
	s, _ := newTestServer(t, 0, 0.1)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Predictive Maintenance System")
	assert.Contains(t, body, "Gradient Boosting Model | Predictive Maintenance Project")
	assert.Contains(t, body, `<option value="L" selected>L</option>`)
	assert.Contains(t, body, `<option value="M">M</option>`)
	assert.Contains(t, body, `<option value="H">H</option>`)
	assert.Contains(t, body, `name="air_temperature" type="number" min="295" max="305" step="0.1" value="298"`)
	assert.Contains(t, body, `name="rotational_speed" type="number" min="1000" max="3000" step="10" value="1500"`)
	assert.NotContains(t, body, `id="result"`)
}

func TestPredict_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		label       int
		probability float64
		banner      string
		band        string
		advice      string
		width       string
	}{
		{
			name: "high risk failure", label: 1, probability: 0.75,
			banner: "⚠️ Machine Failure Likely", band: "🔴 HIGH", advice: risk.AdviceHigh, width: "width: 75%",
		},
		{
			name: "low risk no failure", label: 0, probability: 0.10,
			banner: "✅ No Immediate Machine Failure Detected", band: "🟢 LOW", advice: risk.AdviceLow, width: "width: 10%",
		},
		{
			name: "medium at lower boundary", label: 0, probability: 0.30,
			banner: "✅ No Immediate Machine Failure Detected", band: "🟡 MEDIUM", advice: risk.AdviceMedium, width: "width: 30%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, stub := newTestServer(t, tt.label, tt.probability)

			rec := postForm(t, s, defaultForm())

			require.Equal(t, http.StatusOK, rec.Code)
			body := rec.Body.String()
			assert.Contains(t, body, tt.banner)
			assert.Contains(t, body, tt.band)
			assert.Contains(t, body, tt.advice)
			assert.Contains(t, body, tt.width)
			assert.Contains(t, body, "Recommended Action")

			calls := stub.Calls()
			require.NotEmpty(t, calls)
			assert.Equal(t, features.Vector{298.0, 308.0, 1500, 40.0, 50, 0, 1, 0}, calls[0])
		})
	}
}

func TestPredict_ProbabilityTwoDecimals(t *testing.T) {
	s, _ := newTestServer(t, 1, 0.756)
	rec := postForm(t, s, defaultForm())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<span id="probability">0.76</span>`)
}

func TestPredict_OutOfRangeRerendersForm(t *testing.T) {
	fm := &fakeMetrics{}
	s, stub := newTestServer(t, 1, 0.9, WithMetrics(fm))

	form := defaultForm()
	form.Set("torque", "95")
	form.Set("tool_wear", "abc")
	rec := postForm(t, s, form)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `id="input-errors"`)
	assert.Contains(t, body, "torque 95 Nm not in [10, 80]")
	assert.Contains(t, body, "tool wear")
	assert.Contains(t, body, `value="95"`, "submitted values are kept")
	assert.NotContains(t, body, `id="result"`)
	assert.Empty(t, stub.Calls(), "invalid readings never reach the classifier")
	assert.Equal(t, 1, fm.invalid)
}

func TestPredict_UnknownType(t *testing.T) {
	s, stub := newTestServer(t, 0, 0.1)
	form := defaultForm()
	form.Set("type", "X")
	rec := postForm(t, s, form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.Calls())
}

func TestPredict_ContractViolation(t *testing.T) {
	s, _ := newTestServer(t, 0, 1.2)

	rec := postForm(t, s, defaultForm())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Internal Error: invalid model output")
	assert.NotContains(t, body, "Risk Level")
	assert.NotContains(t, body, risk.AdviceLow)
	assert.NotContains(t, body, risk.AdviceHigh)
}

func TestPredict_ClassifierFailure(t *testing.T) {
	s, stub := newTestServer(t, 0, 0.1)
	stub.Err = errors.New("worker exited")

	rec := postForm(t, s, defaultForm())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Error: prediction failed")
	assert.NotContains(t, rec.Body.String(), "Risk Level")
}

func postJSON(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/assess", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const readingJSON = `{"type":"L","air_temperature":298.0,"process_temperature":308.0,"rotational_speed":1500,"torque":40.0,"tool_wear":50}`

func TestAssessAPI(t *testing.T) {
	t.Run("high risk", func(t *testing.T) {
		s, _ := newTestServer(t, 1, 0.75)
		rec := postJSON(t, s, readingJSON)

		require.Equal(t, http.StatusOK, rec.Code)
		var got risk.Assessment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.FailureLikely)
		assert.Equal(t, risk.High, got.Band)
		assert.Equal(t, risk.AdviceHigh, got.Advice)
		assert.InDelta(t, 0.75, got.Probability, 1e-9)
		assert.NotEmpty(t, got.ID)
	})

	t.Run("malformed json", func(t *testing.T) {
		s, _ := newTestServer(t, 0, 0.1)
		rec := postJSON(t, s, `{"type":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_reading")
	})

	t.Run("out of range", func(t *testing.T) {
		s, stub := newTestServer(t, 0, 0.1)
		rec := postJSON(t, s, strings.Replace(readingJSON, `"torque":40.0`, `"torque":5`, 1))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var got apiError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "invalid_reading", got.Kind)
		require.Len(t, got.Details, 1)
		assert.Contains(t, got.Details[0], "torque")
		assert.Empty(t, stub.Calls())
	})

	t.Run("contract violation", func(t *testing.T) {
		s, _ := newTestServer(t, 2, 0.5)
		rec := postJSON(t, s, readingJSON)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var got apiError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "contract_violation", got.Kind)
	})
}

func TestHistoryAPI(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s, _ := newTestServer(t, 0, 0.1)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	history := &fakeHistory{items: []risk.Assessment{
		{ID: "b", Probability: 0.8, Band: risk.High, Reading: features.DefaultReading()},
		{ID: "a", Probability: 0.1, Band: risk.Low, Reading: features.DefaultReading()},
	}}

	t.Run("limit", func(t *testing.T) {
		s, _ := newTestServer(t, 0, 0.1, WithHistory(history, 20))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=1", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var got []risk.Assessment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].ID)
	})

	t.Run("bad limit", func(t *testing.T) {
		s, _ := newTestServer(t, 0, 0.1, WithHistory(history, 20))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=0", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("shown on form", func(t *testing.T) {
		s, _ := newTestServer(t, 0, 0.1, WithHistory(history, 20))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Contains(t, rec.Body.String(), "Recent Assessments")
		assert.Contains(t, rec.Body.String(), "0.80")
	})

	t.Run("store error", func(t *testing.T) {
		s, _ := newTestServer(t, 0, 0.1, WithHistory(&fakeHistory{err: errors.New("closed")}, 20))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealthAndModelInfo(t *testing.T) {
	s, _ := newTestServer(t, 0, 0.1)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"model_version":"stub"`)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info modelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, features.Names[:], info.Features)
	require.Len(t, info.RiskBands, 3)
	assert.Equal(t, risk.Medium, info.RiskBands[1].Band)
	assert.InDelta(t, 0.30, info.RiskBands[1].From, 1e-9)
}

func TestHealth_ClassifierDown(t *testing.T) {
	s, stub := newTestServer(t, 0, 0.1)
	stub.HealthErr = fmt.Errorf("%w: prediction timeout after 10s", ml.ErrClassifierUnavailable)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unavailable"`)
	assert.Contains(t, rec.Body.String(), "prediction timeout")
}

func TestMetricsEndpointAndMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry)
	wrapper := metrics.NewWrapper(m)

	model, _ := ml.NewStubModel(1, 0.75)
	assessor := risk.NewAssessor(model, risk.WithObserver(wrapper))
	s := NewServer(assessor, 0, WithMetrics(wrapper), WithGatherer(registry))

	postForm(t, s, defaultForm())
	bad := defaultForm()
	bad.Set("air_temperature", "400")
	postForm(t, s, bad)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Assessments.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidReadings))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "assessments_total")
	assert.Contains(t, rec.Body.String(), `route="/predict"`)
}

func TestWebSocket(t *testing.T) {
	fm := &fakeMetrics{}
	s, _ := newTestServer(t, 1, 0.75, WithMetrics(fm))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(readingJSON)))
	var got risk.Assessment
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, risk.High, got.Band)
	assert.True(t, got.FailureLikely)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Z"}`)))
	var failure apiError
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, "invalid_reading", failure.Kind)
	assert.NotEmpty(t, failure.Error)
}

func TestStartStop(t *testing.T) {
	s, _ := newTestServer(t, 0, 0.1)
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestRateLimit(t *testing.T) {
	s, stub := newTestServer(t, 0, 0.1, WithRateLimit(0.001, 1))

	first := postJSON(t, s, readingJSON)
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, s, readingJSON)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "rate_limited")

	third := postForm(t, s, defaultForm())
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Contains(t, third.Body.String(), "Too many requests")
	assert.NotContains(t, third.Body.String(), "Risk Level")

	assert.Len(t, stub.Calls(), 2, "only the first assessment reaches the classifier")
}
