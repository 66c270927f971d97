package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/catalog"
)

type subscriptionRequest struct {
	Name      string `json:"name"`
	TargetURL string `json:"target_url"`
	EventType string `json:"event_type"`
	Enabled   *bool  `json:"enabled"`
}

func (req subscriptionRequest) validate() string {
	if req.Name == "" {
		return "name is required"
	}
	parsed, err := url.Parse(req.TargetURL)
	if err != nil || parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return "target_url must be an absolute http(s) URL"
	}
	if !catalog.KnownEventType(catalog.EventType(req.EventType)) {
		return "unknown event_type"
	}
	return ""
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.subs.ListSubscriptions(r.Context())
	if err != nil {
		s.logger.Error("list subscriptions failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(s.logger, w, http.StatusBadRequest, msg)
		return
	}

	id, err := s.idGen.NewID()
	if err != nil {
		s.logger.Error("generate subscription id failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to allocate subscription")
		return
	}
	now := s.clock.Now().UTC()
	sub := catalog.Subscription{
		ID:        id,
		Name:      req.Name,
		TargetURL: req.TargetURL,
		EventType: catalog.EventType(req.EventType),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}
	if err := s.subs.CreateSubscription(r.Context(), sub); err != nil {
		s.logger.Error("create subscription failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to create subscription")
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, map[string]any{"subscription": sub})
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscription_id")
	sub, err := s.subs.GetSubscription(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "subscription not found")
			return
		}
		s.logger.Error("get subscription failed", zap.String("subscription_id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"subscription": sub})
}

func (s *Server) updateSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscription_id")
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(s.logger, w, http.StatusBadRequest, msg)
		return
	}

	sub, err := s.subs.GetSubscription(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "subscription not found")
			return
		}
		s.logger.Error("get subscription failed", zap.String("subscription_id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load subscription")
		return
	}

	sub.Name = req.Name
	sub.TargetURL = req.TargetURL
	sub.EventType = catalog.EventType(req.EventType)
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}
	sub.UpdatedAt = s.clock.Now().UTC()

	if err := s.subs.UpdateSubscription(r.Context(), sub); err != nil {
		s.logger.Error("update subscription failed", zap.String("subscription_id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to update subscription")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"subscription": sub})
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscription_id")
	if err := s.subs.DeleteSubscription(r.Context(), id); err != nil {
		if isNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "subscription not found")
			return
		}
		s.logger.Error("delete subscription failed", zap.String("subscription_id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// testSubscription handles POST /v1/webhooks/{subscription_id}/test. It
// delivers a synthetic payload synchronously so operators can verify an
// endpoint without waiting for a real event.
func (s *Server) testSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscription_id")
	sub, err := s.subs.GetSubscription(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "subscription not found")
			return
		}
		s.logger.Error("get subscription failed", zap.String("subscription_id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load subscription")
		return
	}

	payload := map[string]any{
		"type":      string(sub.EventType),
		"test":      true,
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
	}
	outcome, err := s.hooks.Test(r.Context(), sub, payload)
	if err != nil {
		s.logger.Error("test delivery failed", zap.String("subscription_id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to deliver test event")
		return
	}

	resp := map[string]any{
		"subscription_id": id,
		"delivered":       outcome.Error == "",
		"response_ms":     outcome.ElapsedMs,
	}
	if outcome.StatusCode != nil {
		resp["status_code"] = *outcome.StatusCode
	}
	if outcome.Error != "" {
		resp["error"] = outcome.Error
	}
	writeJSON(s.logger, w, http.StatusOK, resp)
}
