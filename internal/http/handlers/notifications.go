package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/logx"
)

// NotificationsHandler serves per-recipient notification feeds.
type NotificationsHandler struct {
	uc     feedUsecase
	logger logx.Logger
}

// NewNotificationsHandler creates a new NotificationsHandler.
func NewNotificationsHandler(logger logx.Logger, uc feedUsecase) *NotificationsHandler {
	return &NotificationsHandler{uc: uc, logger: logger}
}

func recipientFromURL(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "recipientID"))
	if id == "" {
		return "", errors.New("invalid recipient id")
	}
	return id, nil
}

// List handles GET /notifications/{recipientID}?limit=.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	recipientID, err := recipientFromURL(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(h.logger, w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	f, err := h.uc.List(r.Context(), recipientID, limit)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, feedToResponse(f))
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// MarkAllRead handles POST /notifications/{recipientID}/read-all.
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	recipientID, err := recipientFromURL(r)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	marked, err := h.uc.MarkAllRead(r.Context(), recipientID)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, markReadResponse{Marked: marked})
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}
