package handler

import (
	"net/http"

	"github.com/campus-identity/internal/application/reset"
)

// PasswordResetHandler serves the forgotten-password flow. The two-step
// token endpoints answer 404 unless a TokenService is configured.
type PasswordResetHandler struct {
	svc    reset.Service
	tokens reset.TokenService
}

func NewPasswordResetHandler(svc reset.Service, tokens reset.TokenService) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc, tokens: tokens}
}

func (h *PasswordResetHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req reset.InitiateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Initiate(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PasswordResetHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req reset.VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Verify(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKEnvelope{OK: true})
}

func (h *PasswordResetHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
		return
	}
	var req reset.VerifyCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.tokens.VerifyCode(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PasswordResetHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
		return
	}
	var req reset.SetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.tokens.SetPassword(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKEnvelope{OK: true})
}
