package http

import (
	"net/http"

	"github.com/GertsDev/burgerverse-backend/internal/application"
)

type refreshTokenRequest struct {
	Token string `json:"token"`
}

func requestMeta(r *http.Request) application.RequestMeta {
	return application.RequestMeta{IPAddress: readIP(r), UserAgent: r.UserAgent()}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBodyError(r.Context(), w, "register", err)
		return
	}

	res, err := h.service.Register(r.Context(), req, requestMeta(r))
	if err != nil {
		writeMappedError(r.Context(), w, "register", err)
		return
	}

	h.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusCreated, sessionResponse{Success: true, User: res.User, AccessToken: res.AccessToken})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBodyError(r.Context(), w, "login", err)
		return
	}

	res, err := h.service.Login(r.Context(), req, requestMeta(r))
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}

	h.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, sessionResponse{Success: true, User: res.User, AccessToken: res.AccessToken})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := decodeOptionalBody(w, r, &req); err != nil {
		writeBodyError(r.Context(), w, "refresh", err)
		return
	}

	res, err := h.service.Refresh(r.Context(), h.refreshTokenFromRequest(r, req.Token))
	if err != nil {
		h.clearRefreshCookie(w)
		writeMappedError(r.Context(), w, "refresh", err)
		return
	}

	h.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, sessionResponse{Success: true, AccessToken: res.AccessToken})
}

// logout never fails: a malformed body is treated like an absent one.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	_ = decodeOptionalBody(w, r, &req)

	_ = h.service.Logout(r.Context(), h.refreshTokenFromRequest(r, req.Token))
	h.clearRefreshCookie(w)
	writeSuccess(w, http.StatusOK, nil)
}
