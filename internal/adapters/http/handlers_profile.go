package http

import (
	"net/http"

	"github.com/GertsDev/burgerverse-backend/internal/application"
	"github.com/GertsDev/burgerverse-backend/internal/domain"
)

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "get_user", domain.ErrUnauthorized)
		return
	}
	user, err := h.service.GetProfile(r.Context(), principal.IdentityID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_user", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: user})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "update_user", domain.ErrUnauthorized)
		return
	}
	var req application.UpdateProfileRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBodyError(r.Context(), w, "update_user", err)
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), principal.IdentityID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "update_user", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: user})
}
