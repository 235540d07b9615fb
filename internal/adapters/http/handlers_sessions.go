package http

import (
	"net/http"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
)

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "list_sessions", domain.ErrUnauthorized)
		return
	}
	sessions, err := h.service.ListSessions(r.Context(), principal.IdentityID)
	if err != nil {
		writeMappedError(r.Context(), w, "list_sessions", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) revokeAllSessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "revoke_all_sessions", domain.ErrUnauthorized)
		return
	}
	revoked, err := h.service.LogoutAll(r.Context(), principal.IdentityID)
	if err != nil {
		writeMappedError(r.Context(), w, "revoke_all_sessions", err)
		return
	}
	h.clearRefreshCookie(w)
	writeSuccess(w, http.StatusOK, map[string]any{"revoked": revoked})
}
