package patient

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/careloop/patientsync/pkg/common/logger"
	"github.com/careloop/patientsync/pkg/common/models"
	"github.com/careloop/patientsync/pkg/upstream"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/patients", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/patients", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/patients/copy", h.handleCopy).Methods(http.MethodPost)
	r.HandleFunc("/patients/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}/process", h.handleProcess).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/delete", h.handleDelete).Methods(http.MethodDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)
	list, err := h.service.List(r.Context(), page)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list patients")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePatientRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	resp, err := h.service.Create(r.Context(), req)
	if err != nil {
		if !IsValidationError(err) {
			logger.Log.WithError(err).Error("failed to create patient")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req models.CopyPatientRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	patient, err := h.service.Copy(r.Context(), req.ThirdPartyID)
	if err != nil {
		if !IsValidationError(err) {
			logger.Log.WithError(err).WithField("third_party_id", req.ThirdPartyID).Error("failed to copy patient")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	patient, err := h.service.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Log.WithError(err).WithField("id", id).Error("failed to get patient")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req models.ProcessRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	result, err := h.service.Process(r.Context(), id, req)
	if err != nil {
		if !IsValidationError(err) && !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrUnsupportedOperation) {
			logger.Log.WithError(err).WithField("id", id).Error("failed to process patient")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.Delete(r.Context(), id); err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUnsupportedOperation) {
			logger.Log.WithError(err).WithField("id", id).Error("failed to delete patient")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DeleteResponse{Success: true, Message: "patient deleted"})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute patient stats")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decode(w http.ResponseWriter, r *http.Request, out interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(out)
}

func parsePage(r *http.Request) int {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return 1
}

// writeError maps domain errors onto the HTTP surface: invalid input is 400,
// gated operations are 403, unknown identities 404, throttled process calls
// 429, and an unreachable third-party store 502. Everything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedOperation):
		status = http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, upstream.ErrUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
