package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/djbooking/funnel/internal/domain"
	"github.com/djbooking/funnel/internal/service"
	"github.com/djbooking/funnel/pkg/httputil"
	"github.com/djbooking/funnel/pkg/validator"
)

// Error messages of the booking step endpoints. The booking form shows them
// verbatim.
const (
	msgFlowIDInvalid    = "FlowId missing or invalid."
	msgStepIDInvalid    = "StepId missing or invalid."
	msgValidationFailed = "Validation failed"
	msgInvalidJSON      = "Invalid JSON body."
	msgBodyTooLarge     = "Request body too large."
)

// BookingStepHandler handles HTTP requests for the booking step endpoints.
type BookingStepHandler struct {
	service *service.BookingStepService
	logger  *slog.Logger
}

// NewBookingStepHandler creates a new booking step HTTP handler.
func NewBookingStepHandler(svc *service.BookingStepService, logger *slog.Logger) *BookingStepHandler {
	return &BookingStepHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request / response DTOs ---

// validateStepBody is the raw request body. Ids are decoded loosely so that a
// non-string id is reported like a missing one.
type validateStepBody struct {
	FlowID  any `json:"flowId"`
	StepID  any `json:"stepId"`
	Payload any `json:"payload"`
}

// ValidateStepRequest holds the normalized ids of a validate call.
type ValidateStepRequest struct {
	FlowID string `json:"flowId" validate:"required,max=128"`
	StepID string `json:"stepId" validate:"required,max=128"`
}

// FlowProgressRequest holds the path parameter of the progress endpoint.
type FlowProgressRequest struct {
	FlowID string `json:"flowId" validate:"required,max=128"`
}

// ErrorBody is the error response of the booking step endpoints.
type ErrorBody struct {
	Error   string              `json:"error"`
	Details []domain.FieldError `json:"details,omitempty"`
}

// ValidateStepResponse is returned when a step was validated and saved.
type ValidateStepResponse struct {
	Success   bool                  `json:"success"`
	FlowID    string                `json:"flowId"`
	StepID    string                `json:"stepId"`
	Persisted bool                  `json:"persisted"`
	Progress  []domain.StepProgress `json:"progress"`
}

// FlowProgressResponse lists the saved steps of one flow.
type FlowProgressResponse struct {
	FlowID   string                `json:"flowId"`
	Progress []domain.StepProgress `json:"progress"`
}

// StepCatalogueResponse lists the funnel steps.
type StepCatalogueResponse struct {
	Steps []service.StepInfo `json:"steps"`
}

// --- Handlers ---

// ValidateStep handles POST /booking-steps/validate.
func (h *BookingStepHandler) ValidateStep(w http.ResponseWriter, r *http.Request) {
	var body validateStepBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, ErrorBody{Error: msgBodyTooLarge})
			return
		}
		httputil.WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: msgInvalidJSON})
		return
	}

	req := ValidateStepRequest{
		FlowID: idString(body.FlowID),
		StepID: idString(body.StepID),
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: idErrorMessage(err)})
		return
	}

	result, err := h.service.Submit(r.Context(), req.FlowID, req.StepID, body.Payload)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if !result.Validation.Valid {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, ErrorBody{
			Error:   msgValidationFailed,
			Details: result.Validation.Errors,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ValidateStepResponse{
		Success:   true,
		FlowID:    req.FlowID,
		StepID:    req.StepID,
		Persisted: result.Persisted,
		Progress:  result.Progress,
	})
}

// GetFlowProgress handles GET /booking-steps/{flowId}/progress.
func (h *BookingStepHandler) GetFlowProgress(w http.ResponseWriter, r *http.Request) {
	req := FlowProgressRequest{FlowID: strings.TrimSpace(chi.URLParam(r, "flowId"))}
	if err := validator.Validate(req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: msgFlowIDInvalid})
		return
	}

	progress, err := h.service.GetFlowProgress(r.Context(), req.FlowID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FlowProgressResponse{
		FlowID:   req.FlowID,
		Progress: progress,
	})
}

// ListSteps handles GET /booking-steps.
func (h *BookingStepHandler) ListSteps(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StepCatalogueResponse{Steps: h.service.StepCatalogue()})
}

// idString returns the trimmed id, or "" when v is not a string.
func idString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// idErrorMessage picks the message for the first invalid id, flowId first.
func idErrorMessage(err error) string {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) && !valErr.HasField("flowId") {
		return msgStepIDInvalid
	}
	return msgFlowIDInvalid
}
