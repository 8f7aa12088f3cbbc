package handler

import (
	"fmt"
	"net/http"

	"github.com/campus-identity/internal/application/account"
	"github.com/campus-identity/internal/domain"
	"github.com/campus-identity/internal/pkg/validate"
)

// SignupHandler creates student and faculty accounts from a Google sign-in.
type SignupHandler struct {
	svc account.Service
}

func NewSignupHandler(svc account.Service) *SignupHandler {
	return &SignupHandler{svc: svc}
}

func (h *SignupHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req account.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		httpError(w, fmt.Errorf("%v: %w", err, domain.ErrBadRequest))
		return
	}
	res, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
