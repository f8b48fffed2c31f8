package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/urgentcareq/backend/internal/application/services"
)

// StaffQueueService defines the queue operations reserved for clinic staff
type StaffQueueService interface {
	Reset(ctx context.Context) (*services.ResetResult, error)
	Admit(ctx context.Context, name string) (*services.AdmitResult, error)
	Checkout(ctx context.Context, name string) (*services.CheckoutResult, error)
	GetQueueView(ctx context.Context) (*services.QueueView, error)
}

// StaffHandler handles the staff-facing queue requests
type StaffHandler struct {
	service StaffQueueService
}

// NewStaffHandler creates a new staff handler
func NewStaffHandler(service StaffQueueService) *StaffHandler {
	return &StaffHandler{service: service}
}

// GetQueue handles GET /api/staff/queue
func (h *StaffHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetQueueView(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

// Reset handles POST /api/staff/reset
func (h *StaffHandler) Reset(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Reset(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

type patientNameRequest struct {
	PatientName string `json:"patient_name"`
}

// Admit handles POST /api/staff/admit
func (h *StaffHandler) Admit(w http.ResponseWriter, r *http.Request) {
	var req patientNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.Admit(r.Context(), req.PatientName)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// Checkout handles POST /api/staff/checkout
func (h *StaffHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req patientNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.Checkout(r.Context(), req.PatientName)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
