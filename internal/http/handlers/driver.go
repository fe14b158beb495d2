package handlers

import (
	"errors"
	"net/http"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
)

// DriverHandler serves the driver profile endpoints.
type DriverHandler struct {
	uc     driverUsecase
	logger logx.Logger
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(logger logx.Logger, uc driverUsecase) *DriverHandler {
	return &DriverHandler{uc: uc, logger: logger}
}

// Get handles GET /driver.
func (h *DriverHandler) Get(w http.ResponseWriter, r *http.Request) {
	driverID, err := driverIDFromRequest(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := h.uc.Get(r.Context(), driverID)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, driverToDTO(profile))
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "driver not found")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// SetStatus handles PUT /driver/status.
func (h *DriverHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	driverID, err := driverIDFromRequest(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req setStatusRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	profile, err := h.uc.SetStatus(r.Context(), driverID, domain.DriverStatus(req.Status))
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, driverToDTO(profile))
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid status")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "driver not found")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// ReportLocation handles PUT /driver/location.
func (h *DriverHandler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	driverID, err := driverIDFromRequest(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req reportLocationRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	err = h.uc.ReportLocation(r.Context(), driverID, domain.Coordinates{Lat: req.Lat, Lng: req.Lng})
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid location")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "driver not found")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}
