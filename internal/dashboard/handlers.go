package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"predictive-maintenance/internal/common"
	"predictive-maintenance/internal/features"
	"predictive-maintenance/internal/risk"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 16

var errInvalidInput = errors.New("invalid input")

// Form field names shared by the template and parseForm.
const (
	fieldType               = "type"
	fieldAirTemperature     = "air_temperature"
	fieldProcessTemperature = "process_temperature"
	fieldRotationalSpeed    = "rotational_speed"
	fieldTorque             = "torque"
	fieldToolWear           = "tool_wear"
)

// pageData is everything the form template renders.
type pageData struct {
	Title        string
	Subtitle     string
	Footer       string
	ModelVersion string
	Types        []features.ProductType
	Limits       limitsView
	Reading      features.Reading
	Errors       []string
	Result       *risk.Assessment
	Failure      *failureView
	History      []risk.Assessment
}

type failureView struct {
	Title  string
	Detail string
}

type limitsView struct {
	AirTemperature     features.Range
	ProcessTemperature features.Range
	RotationalSpeed    features.Range
	Torque             features.Range
	ToolWear           features.Range
}

func (s *Server) newPage(r features.Reading) pageData {
	return pageData{
		Title:        common.PageTitle,
		Subtitle:     common.PageSubtitle,
		Footer:       common.PageFooter,
		ModelVersion: s.assessor.Model().Metadata.Version,
		Types:        features.ProductTypes,
		Limits: limitsView{
			AirTemperature:     features.Limits.AirTemperature,
			ProcessTemperature: features.Limits.ProcessTemperature,
			RotationalSpeed:    features.Limits.RotationalSpeed,
			Torque:             features.Limits.Torque,
			ToolWear:           features.Limits.ToolWear,
		},
		Reading: r,
		History: s.recent(),
	}
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Failed to render page")
	}
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, s.newPage(features.DefaultReading()))
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	reading, parseErr := parseForm(r)
	if err := errors.Join(parseErr, reading.Validate()); err != nil {
		s.invalidReading()
		page := s.newPage(reading)
		page.Errors = errorLines(err)
		s.render(w, http.StatusBadRequest, page)
		return
	}

	if !s.allow() {
		page := s.newPage(reading)
		page.Failure = &failureView{
			Title:  "Too many requests",
			Detail: "Assessments are rate limited. Please submit again shortly.",
		}
		s.render(w, http.StatusTooManyRequests, page)
		return
	}

	assessment, err := s.assessor.Assess(r.Context(), reading)
	if err != nil {
		page := s.newPage(reading)
		page.Failure = describeFailure(err)
		s.render(w, http.StatusInternalServerError, page)
		return
	}

	page := s.newPage(reading)
	page.Result = &assessment
	s.render(w, http.StatusOK, page)
}

// describeFailure keeps contract violations visibly apart from classifier
// outages. Neither shows a band.
func describeFailure(err error) *failureView {
	var ce *risk.ContractError
	if errors.As(err, &ce) {
		return &failureView{
			Title:  "Internal Error: invalid model output",
			Detail: fmt.Sprintf("The classifier returned label %d with probability %g, which is outside its contract. No risk band was assigned.", ce.Label, ce.Probability),
		}
	}
	return &failureView{
		Title:  "Internal Error: prediction failed",
		Detail: "The classifier could not score this reading. No risk band was assigned.",
	}
}

// parseForm reads the posted form into a Reading. Fields that fail to parse
// keep their default so the remaining fields can still be range checked.
func parseForm(r *http.Request) (features.Reading, error) {
	reading := features.DefaultReading()
	if err := r.ParseForm(); err != nil {
		return reading, fmt.Errorf("%w: malformed form: %v", errInvalidInput, err)
	}

	var errs []error
	float := func(name string, dst *float64) {
		raw := strings.TrimSpace(r.PostForm.Get(name))
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s %q is not a number", errInvalidInput, strings.ReplaceAll(name, "_", " "), raw))
			return
		}
		*dst = v
	}
	integer := func(name string, dst *int) {
		raw := strings.TrimSpace(r.PostForm.Get(name))
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s %q is not a whole number", errInvalidInput, strings.ReplaceAll(name, "_", " "), raw))
			return
		}
		*dst = v
	}

	reading.Type = features.ProductType(strings.TrimSpace(r.PostForm.Get(fieldType)))
	float(fieldAirTemperature, &reading.AirTemperature)
	float(fieldProcessTemperature, &reading.ProcessTemperature)
	integer(fieldRotationalSpeed, &reading.RotationalSpeed)
	float(fieldTorque, &reading.Torque)
	integer(fieldToolWear, &reading.ToolWear)

	return reading, errors.Join(errs...)
}

// errorLines flattens an errors.Join tree into one message per violation.
func errorLines(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var lines []string
		for _, e := range joined.Unwrap() {
			lines = append(lines, errorLines(e)...)
		}
		return lines
	}
	return []string{err.Error()}
}

type apiError struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// assessJSON decodes, validates and scores one reading. It returns the
// status code and the body for both the JSON API and the websocket.
func (s *Server) assessJSON(r *http.Request, body []byte) (int, any) {
	var reading features.Reading
	if err := json.Unmarshal(body, &reading); err != nil {
		s.invalidReading()
		return http.StatusBadRequest, apiError{Error: "malformed reading: " + err.Error(), Kind: "invalid_reading"}
	}
	if err := reading.Validate(); err != nil {
		s.invalidReading()
		return http.StatusBadRequest, apiError{Error: "reading out of range", Kind: "invalid_reading", Details: errorLines(err)}
	}

	if !s.allow() {
		return http.StatusTooManyRequests, apiError{Error: "assessment rate limit exceeded", Kind: "rate_limited"}
	}

	assessment, err := s.assessor.Assess(r.Context(), reading)
	if err != nil {
		if errors.Is(err, risk.ErrContractViolation) {
			return http.StatusInternalServerError, apiError{Error: err.Error(), Kind: "contract_violation"}
		}
		return http.StatusInternalServerError, apiError{Error: err.Error(), Kind: "prediction_failed"}
	}
	return http.StatusOK, assessment
}

func (s *Server) handleAssessAPI(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.invalidReading()
		writeJSON(w, http.StatusBadRequest, apiError{Error: "malformed reading: " + err.Error(), Kind: "invalid_reading"})
		return
	}
	status, resp := s.assessJSON(r, body)
	writeJSON(w, status, resp)
}

func (s *Server) handleHistoryAPI(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "history is disabled"})
		return
	}
	limit := s.historySize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > common.MaxHistorySize {
			writeJSON(w, http.StatusBadRequest, apiError{Error: fmt.Sprintf("limit must be between 1 and %d", common.MaxHistorySize)})
			return
		}
		limit = n
	}
	items, err := s.history.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read assessment history")
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "history unavailable"})
		return
	}
	if items == nil {
		items = []risk.Assessment{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.assessor.Model()
	body := map[string]any{
		"status":        "ok",
		"model_version": m.Metadata.Version,
		"model_format":  m.Format,
		"uptime":        time.Since(m.LoadedAt).Round(time.Second).String(),
	}
	if err := m.Healthy(); err != nil {
		body["status"] = "unavailable"
		body["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type modelInfo struct {
	Version   string     `json:"version"`
	Algorithm string     `json:"algorithm,omitempty"`
	Format    string     `json:"format"`
	Source    string     `json:"source"`
	Features  []string   `json:"features"`
	TrainedAt time.Time  `json:"trained_at,omitempty"`
	Accuracy  float64    `json:"accuracy,omitempty"`
	LoadedAt  time.Time  `json:"loaded_at"`
	RiskBands []bandInfo `json:"risk_bands"`
}

type bandInfo struct {
	Band   risk.Band `json:"band"`
	From   float64   `json:"from"`
	To     float64   `json:"to"`
	Advice string    `json:"advice"`
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	m := s.assessor.Model()
	writeJSON(w, http.StatusOK, modelInfo{
		Version:   m.Metadata.Version,
		Algorithm: m.Metadata.Algorithm,
		Format:    m.Format,
		Source:    m.Source,
		Features:  m.Metadata.Features,
		TrainedAt: m.Metadata.TrainedAt,
		Accuracy:  m.Metadata.Accuracy,
		LoadedAt:  m.LoadedAt,
		RiskBands: []bandInfo{
			{Band: risk.Low, From: 0, To: risk.MediumThreshold, Advice: risk.Low.Advice()},
			{Band: risk.Medium, From: risk.MediumThreshold, To: risk.HighThreshold, Advice: risk.Medium.Advice()},
			{Band: risk.High, From: risk.HighThreshold, To: 1, Advice: risk.High.Advice()},
		},
	})
}
