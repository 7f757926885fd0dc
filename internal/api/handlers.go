package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medivuehealth/flarecast/internal/anonymize"
	"github.com/medivuehealth/flarecast/internal/apperr"
	"github.com/medivuehealth/flarecast/internal/ml"
	"github.com/medivuehealth/flarecast/internal/nutrition"
	"github.com/medivuehealth/flarecast/internal/obs"
	"github.com/medivuehealth/flarecast/internal/store"
)

type predictRequest struct {
	UserID string `json:"user_id"`
	obs.Observation
}

type predictResponse struct {
	PredictionID    string   `json:"prediction_id"`
	Prediction      int      `json:"prediction"`
	Probability     float64  `json:"probability"`
	RiskLevel       string   `json:"risk_level"`
	Interpretation  string   `json:"interpretation"`
	Confidence      float64  `json:"confidence"`
	Recommendations []string `json:"recommendations"`
	ModelVersion    string   `json:"model_version"`
}

func interpretation(result ml.Result) string {
	if result.Label == 1 {
		return "Elevated flare risk. Review symptoms with your care team."
	}
	return "Flare risk is low based on the reported symptoms."
}

// confidence is the distance from the decision boundary, scaled to [0, 1].
func confidence(prob float64) float64 {
	d := prob - ml.DecisionThreshold
	if d < 0 {
		d = -d
	}
	return d * 2
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed request body", map[string]string{"body": err.Error()}))
		return
	}
	if req.UserID == "" {
		writeError(w, apperr.Validation("user_id is required", nil))
		return
	}

	observation := req.Observation.Normalize()
	if err := obs.Validate(observation); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.classifier.Predict(observation)
	if errors.Is(err, apperr.ErrModelNotLoaded) && s.settings.FallbackOK {
		result = s.fallback.Predict(observation)
		s.metrics.FallbackUse.Inc()
		err = nil
	}
	if err != nil {
		s.metrics.PredictionFailures.Inc()
		writeError(w, err)
		return
	}

	p := store.Prediction{
		ID:           uuid.NewString(),
		UserID:       s.anonymizer.AnonymousID(req.UserID),
		Timestamp:    time.Now().UTC(),
		Observation:  observation,
		Probability:  result.Probability,
		Label:        result.Label,
		RiskLevel:    result.RiskLevel,
		ModelVersion: result.ModelVersion,
	}
	if err := s.store.Record(r.Context(), p); err != nil {
		s.metrics.StorageErrors.Inc()
		writeError(w, err)
		return
	}

	s.metrics.PredictionsTotal.Inc()
	s.metrics.PredictionScores.Observe(result.Probability)
	s.metrics.PredictionLatency.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, predictResponse{
		PredictionID:    p.ID,
		Prediction:      result.Label,
		Probability:     result.Probability,
		RiskLevel:       result.RiskLevel,
		Interpretation:  interpretation(result),
		Confidence:      confidence(result.Probability),
		Recommendations: nutrition.Recommend(observation, result),
		ModelVersion:    result.ModelVersion,
	})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	q := store.Query{UserID: s.anonymizer.AnonymousID(userID), Limit: 100}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, apperr.Validation("limit must be a positive integer", nil))
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, apperr.Validation("since must be RFC 3339", nil))
			return
		}
		q.Since = ts
	}

	predictions, err := s.store.List(r.Context(), q)
	if err != nil {
		s.metrics.StorageErrors.Inc()
		writeError(w, err)
		return
	}
	if predictions == nil {
		predictions = []store.Prediction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": predictions,
		"count":       len(predictions),
	})
}

// outcomeRequest accepts the outcome verdict under either actual_flare or
// the stored field's name, flare_occurred.
type outcomeRequest struct {
	PredictionID  string   `json:"prediction_id"`
	ActualFlare   *bool    `json:"actual_flare"`
	FlareOccurred *bool    `json:"flare_occurred"`
	Symptoms      []string `json:"symptoms"`
	Severity      int      `json:"severity"`
	DurationDays  int      `json:"duration_days"`
	Notes         string   `json:"notes"`
	Source        string   `json:"source"`
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed request body", map[string]string{"body": err.Error()}))
		return
	}
	occurred := req.ActualFlare
	if occurred == nil {
		occurred = req.FlareOccurred
	}
	if req.PredictionID == "" || occurred == nil {
		writeError(w, apperr.Validation("prediction_id and actual_flare are required", nil))
		return
	}

	// Free text goes through the PHI scrub before anything is persisted.
	symptoms := make([]string, 0, len(req.Symptoms))
	for _, sym := range req.Symptoms {
		symptoms = append(symptoms, anonymize.ScrubNotes(sym))
	}
	if len(symptoms) == 0 {
		symptoms = nil
	}
	outcome := store.Outcome{
		FlareOccurred: *occurred,
		ReportedAt:    time.Now().UTC(),
		Source:        req.Source,
		Symptoms:      symptoms,
		Severity:      req.Severity,
		DurationDays:  req.DurationDays,
		Notes:         anonymize.ScrubNotes(req.Notes),
	}
	if err := s.store.AttachOutcome(r.Context(), req.PredictionID, outcome); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			s.metrics.OutcomeConflicts.Inc()
		}
		writeError(w, err)
		return
	}
	s.metrics.OutcomesTotal.Inc()

	// Every fresh outcome re-scores the trailing window and checks drift,
	// so degradation surfaces as soon as ground truth arrives.
	validation, err := s.validator.ValidateDays(r.Context(), s.settings.ValidationDays)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.ValidationRuns.Inc()

	drift, err := s.validator.DetectDrift(r.Context(), s.settings.DriftThreshold)
	if err != nil {
		writeError(w, err)
		return
	}
	if drift.DriftDetected {
		s.metrics.DriftAlerts.Inc()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "outcome recorded",
		"validation": validation,
		"drift":      drift,
	})
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	days := s.settings.ValidationDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, apperr.Validation("days must be a positive integer", nil))
			return
		}
		days = n
	}

	rec, err := s.validator.ValidateDays(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.ValidationRuns.Inc()
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	threshold := s.settings.DriftThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 1 {
			writeError(w, apperr.Validation("threshold must be in (0, 1)", nil))
			return
		}
		threshold = f
	}

	report, err := s.validator.DetectDrift(r.Context(), threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	if report.DriftDetected {
		s.metrics.DriftAlerts.Inc()
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.classifier.Info()
	if err != nil {
		if s.settings.FallbackOK {
			writeJSON(w, http.StatusOK, map[string]any{
				"model_version": "heuristic-fallback",
				"fallback":      true,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model_version": info.Version,
		"trained_at":    info.TrainedAt,
		"metrics":       info.Metrics,
		"features":      len(info.Weights),
		"fallback":      false,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.classifier.Loaded() && !s.settings.FallbackOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"model_loaded":   s.classifier.Loaded(),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}
