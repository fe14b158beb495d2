package handlers

import (
	"errors"
	"net/http"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/logx"
	"ferry77-dispatch/internal/service/view"
)

// JobsHandler serves the driver job board and the accept/complete
// transitions.
type JobsHandler struct {
	dispatch dispatchUsecase
	board    boardUsecase
	logger   logx.Logger
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(logger logx.Logger, dispatch dispatchUsecase, board boardUsecase) *JobsHandler {
	return &JobsHandler{dispatch: dispatch, board: board, logger: logger}
}

// List handles GET /jobs?tab=&sort=&search=.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	driverID, err := driverIDFromRequest(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	params := r.URL.Query()
	q := view.Query{
		Tab:    view.Tab(params.Get("tab")),
		Sort:   view.Sort(params.Get("sort")),
		Search: params.Get("search"),
	}

	list, err := h.board.List(r.Context(), driverID, q)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, jobsToResponse(list))
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid query")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Accept handles POST /jobs/{source}/{id}/accept.
func (h *JobsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	driverID, err := driverIDFromRequest(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	ref, err := jobRefFromURL(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.dispatch.Accept(r.Context(), ref, driverID)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, acceptResultToResponse(res))
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "job not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "job already taken")
	case errors.Is(err, apperr.ErrPreconditionFailed):
		writeErrorReason(h.logger, w, r, http.StatusUnprocessableEntity,
			"precondition failed", apperr.PreconditionReason(err))
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Complete handles POST /jobs/{source}/{id}/complete.
func (h *JobsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	driverID, err := driverIDFromRequest(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	ref, err := jobRefFromURL(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.dispatch.Complete(r.Context(), ref, driverID)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, completeResultToResponse(res))
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "job not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "job state changed")
	case errors.Is(err, apperr.ErrPreconditionFailed):
		writeErrorReason(h.logger, w, r, http.StatusUnprocessableEntity,
			"precondition failed", apperr.PreconditionReason(err))
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}
