package http

import (
	"net/http"

	"github.com/GertsDev/burgerverse-backend/internal/application"
)

func (h *Handler) passwordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req application.PasswordResetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBodyError(r.Context(), w, "password_reset_request", err)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email, requestMeta(r)); err != nil {
		writeMappedError(r.Context(), w, "password_reset_request", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "if the email is registered, a reset code has been sent",
	})
}

func (h *Handler) passwordReset(w http.ResponseWriter, r *http.Request) {
	var req application.PasswordResetSubmit
	if err := decodeBody(w, r, &req); err != nil {
		writeBodyError(r.Context(), w, "password_reset", err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req, requestMeta(r)); err != nil {
		writeMappedError(r.Context(), w, "password_reset", err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}
