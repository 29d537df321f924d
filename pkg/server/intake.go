package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/erain9/arbsignal/pkg/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds an intake request body.
const maxBodyBytes = 1 << 16

// HealthFunc reports whether the publisher can serve.
type HealthFunc func() error

// NewHandler returns the intake routes:
//
//	POST /opportunity  queue an OpportunitySignal, 202 on success
//	GET  /healthz      200 when health returns nil
func NewHandler(w *Worker, health HealthFunc, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/opportunity", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.Header().Set("Allow", http.MethodPost)
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		reqLogger := logger.With().
			Str("request_id", requestID).
			Str("remote_addr", r.RemoteAddr).
			Logger()

		sig, err := decodeSignal(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			reqLogger.Warn().Err(err).Msg("Rejected opportunity")
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}

		switch err := w.Submit(requestID, sig); {
		case errors.Is(err, ErrQueueFull):
			reqLogger.Warn().Int("backlog", w.Backlog()).Msg("Opportunity queue full")
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(rw).Encode(map[string]string{"request_id": requestID})
	})

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		rw.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(rw, "ok\n")
	})
	return mux
}

func decodeSignal(r io.Reader) (core.OpportunitySignal, error) {
	var sig core.OpportunitySignal
	if err := json.NewDecoder(r).Decode(&sig); err != nil {
		return sig, fmt.Errorf("invalid opportunity: %w", err)
	}
	if sig.Kask == "" || sig.Kbid == "" {
		return sig, fmt.Errorf("invalid opportunity: kask and kbid are required")
	}
	return sig, nil
}
