// Package httpapi exposes the daemon over HTTP: the OpenAI-compatible chat
// surface, bounded agent runs, fleet operations and observability endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fleetd/internal/health"
	"fleetd/internal/lifecycle"
	"fleetd/internal/runlog"
	"fleetd/pkg/types"
)

// ChatService routes completion requests to a backend.
type ChatService interface {
	Complete(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error)
	StreamTo(ctx context.Context, req types.ChatCompletionRequest, w io.Writer, flush func()) error
	Active(providerID string) int64
}

// FleetService exposes scheduler state and fleet-wide controls.
type FleetService interface {
	Containers() []types.ContainerStatus
	GamingMode() bool
	SetGamingMode(ctx context.Context, enabled bool) error
	StopAll(ctx context.Context) error
}

// HealthService exposes the last published probe snapshot.
type HealthService interface {
	Records() []health.Record
}

// AgentRunner executes one bounded agent run.
type AgentRunner interface {
	Run(ctx context.Context, req types.AgentRunRequest) (*types.AgentRunResponse, error)
}

// RunArchive lists persisted agent runs, newest first.
type RunArchive interface {
	Recent(ctx context.Context, limit int) ([]runlog.Run, error)
}

// EventSource delivers lifecycle events to subscribers.
type EventSource interface {
	Subscribe() (<-chan lifecycle.Event, func())
}

// RegistryView lists the configured fleet.
type RegistryView interface {
	Models() []types.Model
	Providers() []types.Provider
}

// Config wires the HTTP layer. Registry, Chat, Fleet, Health and Agent are
// required. A nil Runs disables the recent-runs endpoint, a nil Events
// disables the event stream, a nil Ready means always ready.
type Config struct {
	Registry RegistryView
	Chat     ChatService
	Fleet    FleetService
	Health   HealthService
	Agent    AgentRunner
	Runs     RunArchive
	Events   EventSource
	Ready    func() bool
	Logger   *zerolog.Logger
}

type server struct {
	reg    RegistryView
	chat   ChatService
	fleet  FleetService
	health HealthService
	agent  AgentRunner
	runs   RunArchive
	events EventSource
	ready  func() bool
	log    zerolog.Logger
	start  time.Time
}

// NewMux builds the daemon's HTTP handler.
func NewMux(cfg Config) http.Handler {
	s := &server{
		reg:    cfg.Registry,
		chat:   cfg.Chat,
		fleet:  cfg.Fleet,
		health: cfg.Health,
		agent:  cfg.Agent,
		runs:   cfg.Runs,
		events: cfg.Events,
		ready:  cfg.Ready,
		log:    zerolog.Nop(),
		start:  time.Now(),
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "http").Logger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(s.requestLogger)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/agent/runs", s.handleAgentRun)
	r.Get("/v1/agent/runs", s.handleRecentRuns)
	r.Get("/v1/agent/tools", s.handleAgentTools)
	r.Get("/status", s.handleStatus)
	r.Post("/v1/gaming-mode", s.handleGamingMode)
	r.Post("/v1/stop-all", s.handleStopAll)
	r.Get("/v1/events", s.handleEvents)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.ready == nil || s.ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeJSON enforces the JSON content type and body cap shared by every
// mutating endpoint. It writes the error response itself and reports whether
// decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, into any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "invalid_request", "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: s.reg.Models()})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusSnapshot())
}

// statusSnapshot merges the probe snapshot with the registry so providers
// that were never probed still show up, as degraded.
func (s *server) statusSnapshot() types.StatusResponse {
	recs := s.health.Records()
	byID := make(map[string]health.Record, len(recs))
	for _, rec := range recs {
		byID[rec.ProviderID] = rec
	}

	provs := s.reg.Providers()
	providers := make([]types.ProviderHealth, 0, len(provs))
	for _, p := range provs {
		ph := types.ProviderHealth{
			ProviderID:     p.ID,
			Status:         string(health.StatusDegraded),
			ActiveRequests: int(s.chat.Active(p.ID)),
			MaxConcurrent:  p.MaxConcurrent,
		}
		if rec, ok := byID[p.ID]; ok {
			ph.Status = string(rec.Status)
			ph.ResponseTimeMs = rec.ResponseTime.Milliseconds()
			ph.ConsecutiveFailures = rec.ConsecutiveFailures
			ph.ObservedAtUnix = rec.ObservedAt.Unix()
		}
		providers = append(providers, ph)
	}

	return types.StatusResponse{
		Providers:      providers,
		Containers:     s.fleet.Containers(),
		GamingMode:     s.fleet.GamingMode(),
		UptimeSeconds:  int64(time.Since(s.start).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
}

func (s *server) handleGamingMode(w http.ResponseWriter, r *http.Request) {
	var req types.GamingModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	var resp types.GamingModeResponse
	if err := s.fleet.SetGamingMode(ctx, req.Enabled); err != nil {
		// The switch is already flipped; the failures are per-container
		// fan-out detail for the operator.
		resp.Failures = strings.Split(err.Error(), "\n")
		s.log.Warn().Err(err).Bool("enabled", req.Enabled).Msg("gaming mode fan-out failed")
	}
	resp.Enabled = s.fleet.GamingMode()
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	out := types.StopAllResponse{Stopped: true}
	if err := s.fleet.StopAll(ctx); err != nil {
		out.Stopped = false
		out.Failures = strings.Split(err.Error(), "\n")
		s.log.Warn().Err(err).Msg("stop-all fan-out failed")
	}
	writeJSON(w, http.StatusOK, out)
}
