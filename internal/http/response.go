package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/cartstore/internal/catalog"
	"github.com/fjod/cartstore/internal/service"
	"github.com/fjod/cartstore/internal/store"
	pkgerrors "github.com/fjod/cartstore/pkg/errors"
	"github.com/fjod/cartstore/pkg/logger"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// responder writes JSON bodies and logs what the client does not see.
type responder struct {
	log *logger.Logger
}

func (rs responder) respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rs.log.Error(r.Context(), "failed to encode response", err)
	}
}

func (rs responder) respondError(w http.ResponseWriter, r *http.Request, err error) {
	coded := toCoded(err)
	meta := pkgerrors.MetadataFor(coded.Code())
	if meta.HTTPStatus >= http.StatusInternalServerError {
		rs.log.Error(r.Context(), "request failed", err)
	}

	resp := ErrorResponse{
		Error:     meta.PublicMessage,
		Code:      string(coded.Code()),
		RequestID: getRequestID(r.Context()),
	}
	if meta.DetailsAllowed {
		resp.Error = coded.Message()
		resp.Details = coded.Details()
	}
	rs.respondJSON(w, r, meta.HTTPStatus, resp)
}

func invalidSessionError() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid session id").
		WithDetails(map[string]string{HeaderSessionID: "must be at most 128 characters"})
}

// toCoded maps domain errors onto the public error codes.
func toCoded(err error) *pkgerrors.Error {
	if coded := pkgerrors.As(err); coded != nil {
		return coded
	}

	switch {
	case errors.Is(err, service.ErrInvalidSession):
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "session required")
	case errors.Is(err, service.ErrProductNotFound), errors.Is(err, catalog.ErrProductNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
	case errors.Is(err, service.ErrInsufficientStock):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "insufficient stock").
			WithDetails(map[string]string{"reason": err.Error()})
	case errors.Is(err, service.ErrEmptyCart):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "cart is empty")
	case errors.Is(err, service.ErrStorageUnavailable):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart storage unavailable")
	case errors.Is(err, store.ErrPersist):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart updated but not saved")
	case errors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "internal server error")
}
