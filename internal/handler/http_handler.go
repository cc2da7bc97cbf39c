package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/aspecsweb/nano-tags/internal/agent"
	"github.com/aspecsweb/nano-tags/internal/platform"
)

const maxBodyBytes = 1 << 20

// Applier performs page signals.
type Applier interface {
	Apply(ctx context.Context, sig agent.Signal, source string) (string, error)
}

type HTTPHandler struct {
	agent Applier
}

func NewHTTPHandler(a Applier) *HTTPHandler {
	return &HTTPHandler{agent: a}
}

type SignalResponse struct {
	Success bool     `json:"success"`
	PageID  string   `json:"page_id,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

type EntriesRequest struct {
	Entries []platform.Entry `json:"entries"`
}

// Router builds the ingress routes.
func Router(h *HTTPHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(CORSMiddleware)

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/pages", func(r chi.Router) {
		r.Post("/", h.HandleActivate)
		r.Route("/{pageID}", func(r chi.Router) {
			r.Post("/entries", h.HandleEntries)
			r.Post("/lifecycle", h.HandleLifecycle)
			r.Post("/events", h.HandleEvent)
			r.Delete("/", h.HandleDeactivate)
		})
	})
	return r
}

func (h *HTTPHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	var a agent.Activation
	if !decode(w, r, &a) {
		return
	}
	if a.UserAgent == "" {
		a.UserAgent = r.Header.Get("User-Agent")
	}
	if a.Referrer == "" {
		a.Referrer = r.Header.Get("Referer")
	}
	h.apply(w, r, agent.Signal{Type: agent.SignalActivate, Activation: &a}, http.StatusCreated)
}

func (h *HTTPHandler) HandleEntries(w http.ResponseWriter, r *http.Request) {
	var req EntriesRequest
	if !decode(w, r, &req) {
		return
	}
	h.apply(w, r, agent.Signal{
		Type:    agent.SignalEntries,
		PageID:  chi.URLParam(r, "pageID"),
		Entries: req.Entries,
	}, http.StatusAccepted)
}

func (h *HTTPHandler) HandleLifecycle(w http.ResponseWriter, r *http.Request) {
	var l agent.LifecycleSignal
	if !decode(w, r, &l) {
		return
	}
	h.apply(w, r, agent.Signal{
		Type:      agent.SignalLifecycle,
		PageID:    chi.URLParam(r, "pageID"),
		Lifecycle: &l,
	}, http.StatusAccepted)
}

func (h *HTTPHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var e agent.EventSignal
	if !decode(w, r, &e) {
		return
	}
	h.apply(w, r, agent.Signal{
		Type:   agent.SignalEvent,
		PageID: chi.URLParam(r, "pageID"),
		Event:  &e,
	}, http.StatusAccepted)
}

func (h *HTTPHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, agent.Signal{
		Type:   agent.SignalDeactivate,
		PageID: chi.URLParam(r, "pageID"),
	}, http.StatusOK)
}

func (h *HTTPHandler) apply(w http.ResponseWriter, r *http.Request, sig agent.Signal, okStatus int) {
	pageID, err := h.agent.Apply(r.Context(), sig, "http")
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("page_id", pageID).Str("type", string(sig.Type)).Msg("Failed to apply signal")
		}
		writeJSON(w, status, SignalResponse{
			Success: false,
			PageID:  pageID,
			Errors:  []string{err.Error()},
		})
		return
	}
	writeJSON(w, okStatus, SignalResponse{Success: true, PageID: pageID})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, agent.ErrInvalidSignal):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Project-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
