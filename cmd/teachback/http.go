package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	sessionapi "github.com/oratio/teachback/api/session"
	"github.com/oratio/teachback/internal/gateway"
	"github.com/oratio/teachback/internal/identity"
	"github.com/oratio/teachback/internal/session"
)

// apiServer is the user-facing HTTP surface over the session controller.
type apiServer struct {
	controller *session.Controller
	gateway    *gateway.Gateway
	verifier   *identity.Verifier
}

func newAPIServer(controller *session.Controller, gw *gateway.Gateway, verifier *identity.Verifier) *apiServer {
	return &apiServer{controller: controller, gateway: gw, verifier: verifier}
}

func (s *apiServer) Handler() http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/sessions", s.handleCreate).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/turns", s.handleTurn).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/acknowledge", s.handleAcknowledge).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/exam", s.handleExam).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/summary", s.handleSummary).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", s.handleAbort).Methods(http.MethodDelete)
	v1.HandleFunc("/insights/{id}", s.handleInsights).Methods(http.MethodGet)
	return r
}

func (s *apiServer) claims(r *http.Request) (identity.Claims, error) {
	return s.verifier.Verify(r.Header.Get("Authorization"))
}

// authorizeSession verifies the bearer token and that the session in the
// URL belongs to the caller. On failure it writes the error response and
// returns ok=false.
func (s *apiServer) authorizeSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, err := s.claims(r)
	if err != nil {
		writeAPIError(w, err)
		return "", false
	}
	sessionID := mux.Vars(r)["id"]
	if err := s.controller.VerifyOwner(r.Context(), sessionID, claims.UserID); err != nil {
		writeAPIError(w, err)
		return "", false
	}
	return sessionID, true
}

type createRequest struct {
	InputMode  string `json:"input_mode"`
	OutputMode string `json:"output_mode"`
}

type createResponse struct {
	SessionID  string              `json:"session_id"`
	InputMode  string              `json:"input_mode"`
	OutputMode string              `json:"output_mode"`
	Notices    []sessionapi.Notice `json:"notices,omitempty"`
}

func (s *apiServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims, err := s.claims(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, errBadRequest("malformed body: "+err.Error()))
		return
	}

	out, err := s.controller.Create(r.Context(), session.CreateInput{
		UserID:     claims.UserID,
		Plan:       claims.Plan,
		InputMode:  sessionapi.InputMode(req.InputMode),
		OutputMode: sessionapi.OutputMode(req.OutputMode),
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeBody(w, http.StatusCreated, createResponse{
		SessionID:  out.SessionID,
		InputMode:  string(out.InputMode),
		OutputMode: string(out.OutputMode),
		Notices:    out.Notices,
	})
}

type turnRequest struct {
	Text     string `json:"text,omitempty"`
	AudioB64 string `json:"audio_b64,omitempty"`
}

type turnResponse struct {
	Text        string              `json:"text"`
	AudioB64    string              `json:"audio_b64,omitempty"`
	Interrupted bool                `json:"interrupted"`
	Notices     []sessionapi.Notice `json:"notices,omitempty"`
}

func (s *apiServer) handleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.authorizeSession(w, r)
	if !ok {
		return
	}
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, errBadRequest("malformed body: "+err.Error()))
		return
	}
	var audio []byte
	if req.AudioB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.AudioB64)
		if err != nil {
			writeAPIError(w, errBadRequest("audio_b64 is not valid base64"))
			return
		}
		audio = decoded
	}

	resp, err := s.controller.SubmitTurn(r.Context(), sessionID, sessionapi.TurnRequest{
		Text:  req.Text,
		Audio: audio,
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeBody(w, http.StatusOK, encodeTurn(resp))
}

func (s *apiServer) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.authorizeSession(w, r)
	if !ok {
		return
	}
	if err := s.controller.AcknowledgeCorrection(r.Context(), sessionID); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleExam(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.authorizeSession(w, r)
	if !ok {
		return
	}
	resp, err := s.controller.EndTeaching(r.Context(), sessionID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeBody(w, http.StatusOK, encodeTurn(resp))
}

func (s *apiServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.authorizeSession(w, r)
	if !ok {
		return
	}
	summary, err := s.controller.EndSession(r.Context(), sessionID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeBody(w, http.StatusOK, summary)
}

func (s *apiServer) handleAbort(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.authorizeSession(w, r)
	if !ok {
		return
	}
	if err := s.controller.Abort(r.Context(), sessionID); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleInsights(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.authorizeSession(w, r)
	if !ok {
		return
	}
	insights, err := s.gateway.Insights(r.Context(), sessionID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeBody(w, http.StatusOK, insights)
}

func encodeTurn(resp sessionapi.TurnResponse) turnResponse {
	out := turnResponse{
		Text:        resp.Text,
		Interrupted: resp.Interrupted,
		Notices:     resp.Notices,
	}
	if len(resp.Audio) > 0 {
		out.AudioB64 = base64.StdEncoding.EncodeToString(resp.Audio)
	}
	return out
}

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func errBadRequest(msg string) error { return badRequestError{msg: msg} }

func writeAPIError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var quotaErr *sessionapi.QuotaExceededError
	var badReq badRequestError
	switch {
	case errors.As(err, &badReq), errors.Is(err, sessionapi.ErrInvalidMode):
		status = http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, sessionapi.ErrFeatureDisabled):
		status = http.StatusForbidden
	case errors.Is(err, sessionapi.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.As(err, &quotaErr):
		status = http.StatusTooManyRequests
	case errors.Is(err, sessionapi.ErrActiveSessionExists),
		errors.Is(err, sessionapi.ErrSessionTerminal),
		errors.Is(err, sessionapi.ErrUnresolvedInterruption),
		errors.Is(err, sessionapi.ErrNoTeachingTurns),
		errors.Is(err, sessionapi.ErrSessionNotCompleted),
		errors.Is(err, sessionapi.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, sessionapi.ErrMaintenanceMode),
		errors.Is(err, sessionapi.ErrSessionPaused):
		status = http.StatusServiceUnavailable
	}

	writeBody(w, status, map[string]string{"error": err.Error()})
}

func writeBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
