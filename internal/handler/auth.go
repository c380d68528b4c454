package handler

import "net/http"

// SendOTP issues a one-time code for a phone number. Delivery is mocked via
// the log.
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" {
		writeError(w, http.StatusBadRequest, "phone required")
		return
	}

	if err := h.otp.Send(r.Context(), req.Phone); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// VerifyOTP checks a submitted code. A successful verification consumes the
// code; session issuance is handled by the auth gateway upstream.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "phone and code required")
		return
	}

	if err := h.otp.Verify(r.Context(), req.Phone, req.Code); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}
