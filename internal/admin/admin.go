// Package admin is the operator HTTP surface: runtime flags, quota
// overrides, maintenance mode, and model health inspection. It operates on
// configuration and health state only; session internals are out of reach.
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oratio/teachback/internal/config"
	"github.com/oratio/teachback/internal/modelrouter"
	"github.com/oratio/teachback/internal/observability/telemetry"
	"github.com/oratio/teachback/internal/quota"
)

// ModelAdmin is the slice of the model router the admin surface needs.
type ModelAdmin interface {
	ClearMaintenance()
	Health() *modelrouter.Health
}

// Config tunes the server.
type Config struct {
	// Token, when set, is required as a bearer token on /admin routes.
	Token string
}

// Server serves the admin API.
type Server struct {
	flags  *config.Flags
	guard  *quota.Guard
	models ModelAdmin
	cfg    Config
}

// NewServer wires the admin surface.
func NewServer(flags *config.Flags, guard *quota.Guard, models ModelAdmin, cfg Config) *Server {
	return &Server{flags: flags, guard: guard, models: models, cfg: cfg}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.authorize)
	admin.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	admin.HandleFunc("/flags/feature", s.handleFlag(s.flags.SetFeature)).Methods(http.MethodPost)
	admin.HandleFunc("/flags/voice", s.handleFlag(s.flags.SetVoice)).Methods(http.MethodPost)
	admin.HandleFunc("/quota/{user}", s.handleSetOverride).Methods(http.MethodPut)
	admin.HandleFunc("/quota/{user}", s.handleClearOverride).Methods(http.MethodDelete)
	admin.HandleFunc("/maintenance/clear", s.handleClearMaintenance).Methods(http.MethodPost)
	return r
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Model          modelrouter.Snapshot `json:"model"`
	FeatureEnabled bool                 `json:"feature_enabled"`
	VoiceEnabled   bool                 `json:"voice_enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Model:          s.models.Health().Snapshot(),
		FeatureEnabled: s.flags.FeatureEnabled(),
		VoiceEnabled:   s.flags.VoiceEnabled(),
	})
}

type flagRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleFlag(set func(bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req flagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
			return
		}
		set(req.Enabled)
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
	}
}

type overrideRequest struct {
	Units         int64 `json:"units"`
	WindowSeconds int64 `json:"window_seconds"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	if req.Units <= 0 || req.WindowSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "units and window_seconds must be positive")
		return
	}
	s.guard.SetOverride(user, quota.Limit{
		Units:  req.Units,
		Window: time.Duration(req.WindowSeconds) * time.Second,
	})
	telemetry.DefaultEmitter().EmitLog(
		"quota_override_set", "info", "override applied",
		map[string]string{"units": strconv.FormatInt(req.Units, 10)},
		telemetry.Correlation{UserID: user, Component: "admin"},
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	s.guard.ClearOverride(user)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearMaintenance(w http.ResponseWriter, _ *http.Request) {
	s.models.ClearMaintenance()
	writeJSON(w, http.StatusOK, s.models.Health().Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
