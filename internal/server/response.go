package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/me/apron/internal/scheduler"
	"github.com/me/apron/pkg/model"
)

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

// respondSchedulerError maps scheduler and model errors to a status and code.
func respondSchedulerError(w http.ResponseWriter, reqID string, err error) {
	var (
		apiErr      *model.APIError
		invalid     *model.InvalidIndexError
		unavailable *model.UnitUnavailableError
	)
	switch {
	case errors.As(err, &apiErr):
		respondError(w, reqID, http.StatusBadRequest, apiErr)
	case errors.Is(err, model.ErrEmptyQueue):
		respondError(w, reqID, http.StatusConflict, &model.APIError{Code: model.ErrQueueEmpty, Message: err.Error()})
	case errors.As(err, &invalid):
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{Code: model.ErrInvalidIndex, Message: err.Error()})
	case errors.As(err, &unavailable):
		respondError(w, reqID, http.StatusConflict, &model.APIError{Code: model.ErrUnitUnavailable, Message: err.Error()})
	case errors.Is(err, model.ErrFlightNotFound):
		respondError(w, reqID, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: err.Error()})
	case errors.Is(err, model.ErrDuplicateFlight), errors.Is(err, model.ErrGateNotPending):
		respondError(w, reqID, http.StatusConflict, &model.APIError{Code: model.ErrConflict, Message: err.Error()})
	case errors.Is(err, scheduler.ErrClosed):
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
	default:
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
	}
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// decodeOptional decodes a JSON body into v. An empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
