package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
)

func reqID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return "-"
}

func writeJSON(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		logger.Error("json encode failed",
			logx.String("req_id", reqID(r.Context())),
			logx.Err(err),
		)
	}
}

type errResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeError(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, msg string) {
	logger.Warn("http error",
		logx.String("req_id", reqID(r.Context())),
		logx.Int("status", status),
		logx.String("msg", msg),
	)
	writeJSON(logger, w, r, status, errResponse{Error: msg})
}

// writeErrorReason is writeError with the failed-precondition reason attached,
// so clients can distinguish "driver busy" from "job already taken".
func writeErrorReason(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, msg, reason string) {
	logger.Warn("http error",
		logx.String("req_id", reqID(r.Context())),
		logx.Int("status", status),
		logx.String("msg", msg),
		logx.String("reason", reason),
	)
	writeJSON(logger, w, r, status, errResponse{Error: msg, Reason: reason})
}

const bodyLimit = 1 << 20

func decodeJSON[T any](logger logx.Logger, w http.ResponseWriter, r *http.Request, dst *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(logger, w, r, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		writeError(logger, w, r, http.StatusBadRequest, "invalid json: trailing data")
		return false
	}
	return true
}

// driverIDHeader carries the authenticated driver identity. Session handling
// lives upstream; this service trusts the gateway-injected header.
const driverIDHeader = "X-Driver-ID"

func driverIDFromRequest(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(driverIDHeader))
	if id == "" {
		return "", errors.New("missing " + driverIDHeader + " header")
	}
	return id, nil
}

func jobRefFromURL(r *http.Request) (domain.JobRef, error) {
	source := domain.SourceCollection(chi.URLParam(r, "source"))
	if !source.Valid() {
		return domain.JobRef{}, errors.New("invalid source collection")
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		return domain.JobRef{}, errors.New("invalid job id")
	}
	return domain.JobRef{ID: id, Source: source}, nil
}
