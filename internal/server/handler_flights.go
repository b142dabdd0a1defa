package server

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/me/apron/internal/policy"
	"github.com/me/apron/pkg/model"
)

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	flights := s.sched.Reporter().Queue()
	if r.URL.Query().Get("order") == "priority" {
		sort.Slice(flights, func(i, j int) bool { return model.Less(&flights[i], &flights[j]) })
	}
	respondOK(w, reqID, flights)
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.AdmitRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	// Admit validates the direction along with the other fields.
	dir, _ := model.ParseDirection(req.Direction)
	f := model.NewFlight(req.ID, dir, req.Priority, req.Emergency)
	if err := s.sched.Admit(r.Context(), f); err != nil {
		respondSchedulerError(w, reqID, err)
		return
	}

	admitted, _ := s.sched.Flight(f.ID)
	respondCreated(w, reqID, admitted)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.ScheduleRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	a, err := s.sched.ScheduleNext(r.Context(), policy.FromOneBased(req.Runway))
	if err != nil {
		respondSchedulerError(w, reqID, err)
		return
	}
	respondOK(w, reqID, a)
}

func (s *Server) handleListFlights(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.sched.Reporter().InFlight())
}

func (s *Server) handleGetFlight(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	f, ok := s.sched.Flight(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("flight", id))
		return
	}
	respondOK(w, reqID, f)
}

func (s *Server) handleAssignGate(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req model.GateRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	a, err := s.sched.AssignGate(r.Context(), id, policy.FromOneBased(req.Gate))
	if err != nil {
		respondSchedulerError(w, reqID, err)
		return
	}
	respondOK(w, reqID, a)
}
