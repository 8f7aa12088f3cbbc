package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/campus-identity/internal/domain"
)

const (
	codeInvalidArgument = "invalid_argument"
	codeNotFound        = "not_found"
	codeExpired         = "expired"
	codeLockedOut       = "locked_out"
	codeInvalidCode     = "invalid_code"
	codeMutationFailed  = "mutation_failed"
	codeDeliveryFailed  = "delivery_failed"
	codeUnauthorized    = "unauthorized"
	codeForbidden       = "forbidden"
	codeConflict        = "conflict"
	codeInternal        = "internal"
)

// msgGone is shared by unknown, expired and locked-out outcomes so callers
// cannot tell them apart.
const msgGone = "not found or no longer valid"

type errorKind struct {
	target error
	status int
	code   string
	msg    string // empty: use the error text
}

// Order matters: the first match wins.
var errorKinds = []errorKind{
	{domain.ErrBadRequest, http.StatusBadRequest, codeInvalidArgument, ""},
	{domain.ErrNotFound, http.StatusNotFound, codeNotFound, msgGone},
	{domain.ErrExpired, http.StatusGone, codeExpired, msgGone},
	{domain.ErrLockedOut, http.StatusTooManyRequests, codeLockedOut, msgGone},
	{domain.ErrInvalidCode, http.StatusUnauthorized, codeInvalidCode, "incorrect code"},
	{domain.ErrMutationFailed, http.StatusBadGateway, codeMutationFailed, "could not update the password, please try again"},
	{domain.ErrDeliveryFailed, http.StatusBadGateway, codeDeliveryFailed, "could not send the reset code, please try again"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized, ""},
	{domain.ErrForbidden, http.StatusForbidden, codeForbidden, ""},
	{domain.ErrConflict, http.StatusConflict, codeConflict, ""},
}

// httpError maps a service error to a status code and envelope. Anything
// without a domain sentinel is logged and reported as a generic 500.
func httpError(w http.ResponseWriter, err error) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.target) {
			continue
		}
		msg := k.msg
		if msg == "" {
			msg = err.Error()
		}
		if k.status >= http.StatusInternalServerError {
			slog.Warn("downstream failure", "code", k.code, "err", err)
		}
		writeError(w, k.status, k.code, msg)
		return
	}
	slog.Error("unhandled error", "err", err)
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
