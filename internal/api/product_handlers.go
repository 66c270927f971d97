package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/products"
)

type productRequest struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (req productRequest) toInput() products.Input {
	return products.Input{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	}
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, err := s.products.Create(r.Context(), req.toInput())
	if err != nil {
		if errors.Is(err, products.ErrInvalidInput) {
			writeError(s.logger, w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("create product failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to create product")
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, map[string]any{"product": p})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	p, err := s.products.Get(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "product not found")
			return
		}
		s.logger.Error("get product failed", zap.String("product_id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load product")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"product": p})
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, err := s.products.Update(r.Context(), id, req.toInput())
	if err != nil {
		switch {
		case errors.Is(err, products.ErrInvalidInput):
			writeError(s.logger, w, http.StatusBadRequest, err.Error())
		case isNotFound(err):
			writeError(s.logger, w, http.StatusNotFound, "product not found")
		default:
			s.logger.Error("update product failed", zap.String("product_id", id), zap.Error(err))
			writeError(s.logger, w, http.StatusInternalServerError, "failed to update product")
		}
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"product": p})
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	if err := s.products.Delete(r.Context(), id); err != nil {
		if isNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "product not found")
			return
		}
		s.logger.Error("delete product failed", zap.String("product_id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
