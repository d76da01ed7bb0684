package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liamcoop/offerrules/internal/logger"
	"github.com/liamcoop/offerrules/internal/metrics"
	"github.com/liamcoop/offerrules/rules"
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	unhealthy := func(err error) {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Error:  err.Error(),
		})
	}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			unhealthy(fmt.Errorf("database: %w", err))
			return
		}
	}
	if hc, ok := s.cache.(healthChecker); ok {
		if err := hc.HealthCheck(r.Context()); err != nil {
			unhealthy(fmt.Errorf("snapshot cache: %w", err))
			return
		}
	}

	snapshot, err := s.engine.Snapshot()
	if err != nil {
		unhealthy(err)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Rules:         len(snapshot.Rules),
		ProductGroups: len(snapshot.Groups),
	})
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	scenario := rules.Scenario{
		HeldCodes:    req.HeldCodes,
		RenewalCodes: req.RenewalCodes,
	}
	if req.AsOf != nil {
		if !req.AsOf.IsValid() {
			respondError(w, http.StatusBadRequest, "asOf is not a valid date", nil)
			return
		}
		scenario.AsOf = *req.AsOf
	}

	startTime := time.Now()

	result, err := s.engine.EvaluateScenario(scenario)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "evaluation failed", err)
		return
	}

	evaluationTime := time.Since(startTime)
	metrics.RecordEvaluation(result, evaluationTime)

	results := make([]FiredRuleResponse, 0, len(result.Fired))
	for _, f := range result.Fired {
		results = append(results, FiredRuleResponse{
			RuleID:           f.Rule.ID,
			RuleName:         f.Rule.Name,
			RecommendationID: f.RecommendationID,
			URL:              s.artifactURL(f),
		})
	}

	diagnostics := result.Diagnostics
	if diagnostics == nil {
		diagnostics = []rules.Diagnostic{}
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		AsOf:           result.AsOf,
		Results:        results,
		Diagnostics:    diagnostics,
		CodeSets:       result.CodeSets,
		RulesEvaluated: result.RulesEvaluated,
		EvaluationTime: evaluationTime.String(),
	})
}

// artifactURL is the recommendation's URL, or a link under the artifact base URL
// when the recommendation has none or cannot be read
func (s *Server) artifactURL(f rules.FiredResult) string {
	rec, err := s.recommendations.Get(f.RecommendationID)
	if err == nil && rec.URL != "" {
		return rec.URL
	}
	if err != nil && !errors.Is(err, rules.ErrNotFound) {
		logger.Warn("failed to load recommendation", "recommendation_id", f.RecommendationID, "error", err)
	}

	u, err := url.JoinPath(s.cfg.ArtifactBaseURL, "rules", f.Rule.ID)
	if err != nil {
		return s.cfg.ArtifactBaseURL
	}
	return u
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListRules()
	if err != nil {
		respondStoreError(w, "failed to list rules", err)
		return
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: nonNil(list)})
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	rule := req.toRule(id)

	if err := s.checkRecommendation(rule.RecommendationID); err != nil {
		respondStoreError(w, "failed to add rule", err)
		return
	}

	// Add rule (this validates and compiles it)
	if err := s.engine.AddRule(rule); err != nil {
		respondStoreError(w, "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondStoreError(w, "failed to get rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule(chi.URLParam(r, "ruleId"))

	if err := s.checkRecommendation(rule.RecommendationID); err != nil {
		respondStoreError(w, "failed to update rule", err)
		return
	}

	if err := s.engine.UpdateRule(rule); err != nil {
		respondStoreError(w, "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondStoreError(w, "failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkRecommendation rejects a rule pointing at a recommendation that does not exist.
// An empty ID is left to rule validation.
func (s *Server) checkRecommendation(id string) error {
	if id == "" {
		return nil
	}
	_, err := s.recommendations.Get(id)
	if errors.Is(err, rules.ErrNotFound) {
		return &rules.ValidationError{Problems: []string{fmt.Sprintf("recommendation %s does not exist", id)}}
	}
	return err
}

// List product groups handler
func (s *Server) handleListProductGroups(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListProductGroups()
	if err != nil {
		respondStoreError(w, "failed to list product groups", err)
		return
	}
	respondJSON(w, http.StatusOK, ProductGroupsListResponse{ProductGroups: nonNil(list)})
}

// Create product group handler
func (s *Server) handleCreateProductGroup(w http.ResponseWriter, r *http.Request) {
	var req ProductGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	group := &rules.ProductGroup{ID: id, Name: req.Name, Codes: req.Codes}

	if err := s.engine.AddProductGroup(group); err != nil {
		respondStoreError(w, "failed to add product group", err)
		return
	}

	respondJSON(w, http.StatusCreated, group)
}

// Get product group handler
func (s *Server) handleGetProductGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.engine.GetProductGroup(chi.URLParam(r, "groupId"))
	if err != nil {
		respondStoreError(w, "failed to get product group", err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// Update product group handler
func (s *Server) handleUpdateProductGroup(w http.ResponseWriter, r *http.Request) {
	var req ProductGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	group := &rules.ProductGroup{ID: chi.URLParam(r, "groupId"), Name: req.Name, Codes: req.Codes}

	if err := s.engine.UpdateProductGroup(group); err != nil {
		respondStoreError(w, "failed to update product group", err)
		return
	}

	respondJSON(w, http.StatusOK, group)
}

// Delete product group handler. Rules referencing the group keep evaluating;
// their conditions on it are skipped.
func (s *Server) handleDeleteProductGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteProductGroup(chi.URLParam(r, "groupId")); err != nil {
		respondStoreError(w, "failed to delete product group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List recommendations handler
func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	list, err := s.recommendations.List()
	if err != nil {
		respondStoreError(w, "failed to list recommendations", err)
		return
	}
	respondJSON(w, http.StatusOK, RecommendationsListResponse{Recommendations: nonNil(list)})
}

// Create recommendation handler
func (s *Server) handleCreateRecommendation(w http.ResponseWriter, r *http.Request) {
	var req RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	rec := &rules.Recommendation{ID: id, Name: req.Name, URL: req.URL}

	if err := rules.ValidateRecommendation(rec); err != nil {
		respondStoreError(w, "failed to add recommendation", err)
		return
	}
	if err := s.recommendations.Add(rec); err != nil {
		respondStoreError(w, "failed to add recommendation", err)
		return
	}

	respondJSON(w, http.StatusCreated, rec)
}

// Get recommendation handler
func (s *Server) handleGetRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recommendations.Get(chi.URLParam(r, "recommendationId"))
	if err != nil {
		respondStoreError(w, "failed to get recommendation", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Update recommendation handler
func (s *Server) handleUpdateRecommendation(w http.ResponseWriter, r *http.Request) {
	var req RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rec := &rules.Recommendation{ID: chi.URLParam(r, "recommendationId"), Name: req.Name, URL: req.URL}

	if err := rules.ValidateRecommendation(rec); err != nil {
		respondStoreError(w, "failed to update recommendation", err)
		return
	}
	if err := s.recommendations.Update(rec); err != nil {
		respondStoreError(w, "failed to update recommendation", err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// Delete recommendation handler. Refuses while a rule still points at it.
func (s *Server) handleDeleteRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recommendationId")

	list, err := s.engine.ListRules()
	if err != nil {
		respondStoreError(w, "failed to delete recommendation", err)
		return
	}
	for _, rule := range list {
		if rule.RecommendationID == id {
			err := fmt.Errorf("recommendation with ID %s is referenced by rule %s: %w", id, rule.ID, rules.ErrInUse)
			respondStoreError(w, "failed to delete recommendation", err)
			return
		}
	}

	if err := s.recommendations.Delete(id); err != nil {
		respondStoreError(w, "failed to delete recommendation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	metrics.RecordHTTPError(status)

	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	if status >= http.StatusInternalServerError {
		logger.Error(message, "status", status, "error", err)
	}
	respondJSON(w, status, response)
}

// respondStoreError maps store and validation errors to their HTTP status
func respondStoreError(w http.ResponseWriter, message string, err error) {
	respondError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	var verr *rules.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrAlreadyExists), errors.Is(err, rules.ErrInUse):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// nonNil makes empty lists encode as [] rather than null
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
