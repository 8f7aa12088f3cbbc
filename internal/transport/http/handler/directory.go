package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/campus-identity/internal/domain"
	"github.com/go-chi/chi/v5"
)

type directoryReader interface {
	Resolve(ctx context.Context, loginID string) (*domain.DirectoryEntry, error)
}

// DirectoryHandler lets administrators look up who a login ID belongs to.
type DirectoryHandler struct {
	dir directoryReader
}

func NewDirectoryHandler(dir directoryReader) *DirectoryHandler {
	return &DirectoryHandler{dir: dir}
}

func (h *DirectoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	loginID := strings.TrimSpace(chi.URLParam(r, "loginId"))
	if loginID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "loginId required")
		return
	}
	e, err := h.dir.Resolve(r.Context(), loginID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
