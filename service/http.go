package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hive13/rfremote/relay"
	"hive13/rfremote/rfremote"
)

const (
	// URL to inject a command:
	triggerURL = "/trigger"
	// Form key for the command bits:
	triggerKeyCommand = "command"
	// URL for receiver statistics:
	statusURL = "/status"
)

// Status is the reply to GET /status.
type Status struct {
	Stats rfremote.Stats `json:"stats"`
	Last  *Last          `json:"last,omitempty"`
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	if s.triggers == nil {
		s.init()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(triggerURL, s.triggerHandler)
	mux.HandleFunc(statusURL, s.statusHandler)
	return mux
}

func (s *Service) httpError(w http.ResponseWriter, url string, code int, msg string) {
	s.Log.Warn().Str("component", "http").Str("url", url).Int("code", code).Msg(msg)
	http.Error(w, msg, code)
}

// HTTP handler for a request to /trigger:
func (s *Service) triggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.httpError(w, triggerURL, http.StatusMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported.", r.Method))
		return
	}

	if err := r.ParseForm(); err != nil {
		s.httpError(w, triggerURL, http.StatusBadRequest, fmt.Sprintf("Error parsing form: %s", err))
		return
	}

	bits := r.Form.Get(triggerKeyCommand)
	if bits == "" {
		s.httpError(w, triggerURL, http.StatusBadRequest,
			fmt.Sprintf("Form key '%s' is missing", triggerKeyCommand))
		return
	}

	cmd, err := rfremote.ParseCommand(bits)
	if err != nil {
		s.httpError(w, triggerURL, http.StatusBadRequest, fmt.Sprintf("Error parsing command: %s", err))
		return
	}

	// Hand it to the main loop, which might be busy decoding:
	err = s.Trigger(cmd, 15*time.Second)
	var unbound UnboundCommandError
	var unknown relay.UnknownRelayError
	switch {
	case err == nil:
	case errors.Is(err, errTimeout):
		s.httpError(w, triggerURL, http.StatusServiceUnavailable, err.Error())
		return
	case errors.As(err, &unbound), errors.As(err, &unknown):
		s.httpError(w, triggerURL, http.StatusNotFound, err.Error())
		return
	default:
		s.httpError(w, triggerURL, http.StatusInternalServerError, err.Error())
		return
	}

	fmt.Fprintf(w, "OK")
}

// HTTP handler for a request to /status:
func (s *Service) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.httpError(w, statusURL, http.StatusMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported.", r.Method))
		return
	}

	st := Status{Stats: s.Receiver.Stats()}
	if last := s.LastCommand(); last.Command != "" || !last.Time.IsZero() {
		st.Last = &last
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.Log.Warn().Str("component", "http").Err(err).Msg("unable to write status")
	}
}
