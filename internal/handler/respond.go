package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ecofood/foodshare/internal/ctxkeys"
	"github.com/ecofood/foodshare/internal/model"
	"github.com/ecofood/foodshare/internal/service"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a single JSON object into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: request body is empty", service.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("%w: malformed request body", service.ErrValidation)
	}
	return nil
}

// statusFor maps service errors onto HTTP statuses.
var statusFor = []struct {
	err    error
	status int
}{
	{service.ErrValidation, http.StatusBadRequest},
	{service.ErrCodeMismatch, http.StatusBadRequest},
	{service.ErrUnauthorized, http.StatusForbidden},
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrInvalidState, http.StatusConflict},
	{service.ErrUnavailable, http.StatusServiceUnavailable},
}

const unavailableMessage = "service temporarily unavailable, try again"

// handleError writes the response for err. Only client errors carry the
// service's message; 5xx detail stays in the log.
func handleError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range statusFor {
		if !errors.Is(err, m.err) {
			continue
		}
		if m.status >= http.StatusInternalServerError {
			slog.Warn(op+" unavailable", "error", err, "request_id", chimw.GetReqID(r.Context()))
			writeError(w, m.status, unavailableMessage)
			return
		}
		writeError(w, m.status, userMessage(err, m.err))
		return
	}

	slog.Error(op+" failed", "error", err, "request_id", chimw.GetReqID(r.Context()))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// userMessage strips the sentinel prefix: "invalid state: listing is no
// longer available" becomes "listing is no longer available".
func userMessage(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}

// actorFrom returns the authenticated caller. Routes that reach a handler
// always run behind Authenticate.
func actorFrom(r *http.Request) model.Actor {
	actor, _ := ctxkeys.Actor(r.Context())
	return actor
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", service.ErrValidation, key)
	}
	return n, nil
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", service.ErrValidation, key)
	}
	return &f, nil
}
