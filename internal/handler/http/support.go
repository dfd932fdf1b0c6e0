package http

import (
	"net/http"

	"github.com/djbooking/funnel/pkg/httputil"
)

// SupportInfo holds the contact details shown next to the booking form.
type SupportInfo struct {
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	WhatsApp string `json:"whatsapp"`
	Hours    string `json:"hours"`
}

// SupportHandler serves static support contact details.
type SupportHandler struct {
	info SupportInfo
}

// NewSupportHandler creates a handler serving info.
func NewSupportHandler(info SupportInfo) *SupportHandler {
	return &SupportHandler{info: info}
}

// GetSupportInfo handles GET /support-info.
func (h *SupportHandler) GetSupportInfo(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.info)
}
