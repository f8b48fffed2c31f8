package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/urgentcareq/backend/internal/application/services"
)

// PatientQueueService defines the queue operations patients can trigger
type PatientQueueService interface {
	JoinQueue(ctx context.Context, req services.JoinRequest) (*services.JoinResult, error)
	CheckIn(ctx context.Context, name, dob string) (*services.CheckInResult, error)
}

// PatientHandler handles the patient-facing queue requests
type PatientHandler struct {
	service PatientQueueService
}

// NewPatientHandler creates a new patient handler
func NewPatientHandler(service PatientQueueService) *PatientHandler {
	return &PatientHandler{service: service}
}

// JoinQueue handles POST /api/patient/joinqueue
func (h *PatientHandler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	var req services.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.JoinQueue(r.Context(), req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

type checkInRequest struct {
	PatientName string `json:"patient_name"`
	DOB         string `json:"dob"`
}

// CheckIn handles POST /api/patient/checkin
func (h *PatientHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.CheckIn(r.Context(), req.PatientName, req.DOB)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
