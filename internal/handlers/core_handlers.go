package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"devfeed/internal/engine"
	appmw "devfeed/internal/middleware"
	"devfeed/internal/utils"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleStatus reports the selected store and engine statistics.
func (s *Server) HandleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":       "ok",
			"store":        s.StoreName,
			"aiConfigured": s.Generator.Available(),
			"workers":      s.Engine.Workers(),
			"serverTime":   time.Now().UTC(),
		}
		if s.Metrics != nil {
			status["uptimeSeconds"] = int64(s.Metrics.Uptime().Seconds())
			status["requests"] = s.Metrics.CounterTotal("devfeed_requests_total", "", "")
			status["errors"] = s.Metrics.CounterTotal("devfeed_errors_total", "", "")
			status["conflictRetries"] = s.Metrics.CounterTotal("devfeed_conflict_retries_total", "", "")
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// request sends msg to the engine, writing the error response on failure.
func (s *Server) request(w http.ResponseWriter, r *http.Request, msg engine.Message) (interface{}, bool) {
	result, err := s.Engine.RequestContext(r.Context(), msg, s.RequestTimeout)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return result, true
}

// callerID returns the authenticated user id; Authenticate guarantees it is set.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := appmw.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, utils.NewUnauthorizedError("missing identity"))
	}
	return userID, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, utils.NewValidationError("invalid request body"))
		return false
	}
	return true
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, utils.NewValidationError("%s must be an integer", name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	appErr := utils.AsAppError(err)
	status := utils.AppErrorToHTTPStatus(appErr.Code)
	message := appErr.Message
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", appErr.Code).Msg("request failed")
		if appErr.Code == utils.ErrInternal {
			message = "Internal server error"
		}
	}
	writeJSON(w, status, map[string]string{"error": message, "code": appErr.Code})
}
