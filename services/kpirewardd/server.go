package kpirewardd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"auxrewards/crypto"
	"auxrewards/native/kpireward"
	"auxrewards/observability"
	"auxrewards/observability/logging"
	"auxrewards/storage/journal"
)

const maxBodyBytes = 1 << 20

// PartialStore lists and fetches journaled partial issuances.
type PartialStore interface {
	Partials(ctx context.Context, pendingOnly bool) ([]kpireward.PartialIssuance, error)
}

// ServerConfig wires the HTTP surface to its collaborators.
type ServerConfig struct {
	Engine   *kpireward.Engine
	Partials PartialStore
	Batch    *BatchProcessor
	Auth     *Authenticator
	Limiter  *RateLimiter
	Logger   *slog.Logger
}

// Server exposes claim submission, queries and admin controls.
type Server struct {
	engine   *kpireward.Engine
	partials PartialStore
	batch    *BatchProcessor
	logger   *slog.Logger
	router   chi.Router
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("kpirewardd: engine required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("kpirewardd: authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.Batch
	if batch == nil {
		batch = NewBatchProcessor(cfg.Engine, BatchConfig{MaxClaims: 50, Workers: 4}, logger)
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(RateLimitConfig{RequestsPerMinute: 120, Burst: 20})
	}
	s := &Server{engine: cfg.Engine, partials: cfg.Partials, batch: batch, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(observe("claims"))
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware("claims"))
			r.Post("/claims", s.handleClaim)
			r.Post("/claims/batch", s.handleBatch)
		})
		r.Get("/program", s.handleProgram)
		r.Get("/founders/{founder}", s.handleFounder)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(observe("admin"))
		r.Use(cfg.Auth.Middleware)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Get("/status", s.handleStatus)
		r.Get("/reconciliations", s.handleListPartials)
		r.Post("/reconciliations/{id}/reconcile", s.handleReconcile)
	})

	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped with OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s, "kpirewardd")
}

func observe(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			route := r.Method + " " + r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = r.Method + " " + rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			observability.ModuleMetrics().Observe(module, route, status, time.Since(start))
		})
	}
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var payload claimPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		badRequest(w, fmt.Errorf("decode claim: %w", err))
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		badRequest(w, err)
		return
	}
	evt, err := s.engine.ClaimReward(r.Context(), req)
	if err != nil {
		status, body := classify(err)
		s.logger.Info("kpirewardd: claim rejected",
			slog.String("founder", req.Founder.String()),
			slog.String("code", body.Code),
			logging.MaskField("signature", payload.Signature))
		writeError(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var payload batchPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		badRequest(w, fmt.Errorf("decode batch: %w", err))
		return
	}
	if len(payload.Claims) == 0 {
		badRequest(w, errors.New("batch must contain at least one claim"))
		return
	}
	items := make([]batchItem, len(payload.Claims))
	requests := make([]kpireward.ClaimRequest, 0, len(payload.Claims))
	positions := make([]int, 0, len(payload.Claims))
	for i, claim := range payload.Claims {
		items[i].Index = i
		req, err := claim.toRequest()
		if err != nil {
			items[i].Error = &errorResponse{Code: "invalid_request", Error: err.Error()}
			continue
		}
		requests = append(requests, req)
		positions = append(positions, i)
	}
	results, err := s.batch.Process(r.Context(), requests)
	if err != nil {
		badRequest(w, err)
		return
	}
	for j, res := range results {
		item := &items[positions[j]]
		if res.Err != nil {
			_, body := classify(res.Err)
			item.Error = &body
			continue
		}
		item.Event = res.Event
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (s *Server) handleProgram(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ProgramState())
}

func (s *Server) handleFounder(w http.ResponseWriter, r *http.Request) {
	founder, err := crypto.ParseIdentity(chi.URLParam(r, "founder"))
	if err != nil {
		badRequest(w, fmt.Errorf("founder: %w", err))
		return
	}
	state, err := s.engine.RewardState(founder)
	if err != nil {
		status, body := classify(err)
		writeError(w, status, body)
		return
	}
	remaining, err := s.engine.RemainingDaily(founder)
	if err != nil {
		status, body := classify(err)
		writeError(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, founderResponse{Founder: founder.String(), State: state, RemainingDaily: remaining})
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.engine.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.engine.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := statusResponse{
		Paused:          s.engine.IsPaused(kpireward.ModuleName),
		Program:         s.engine.ProgramState(),
		MaxRewardAmount: kpireward.MaxRewardAmount,
		MaxDailyRewards: kpireward.MaxDailyRewards,
		MaxClaimAgeSecs: kpireward.MaxClaimAge,
		BurnDivisor:     kpireward.BurnDivisor,
	}
	if s.partials != nil {
		pending, err := s.partials.Partials(r.Context(), true)
		if err != nil {
			writeError(w, http.StatusInternalServerError, errorResponse{Code: "internal", Error: err.Error()})
			return
		}
		status.PendingPartials = len(pending)
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListPartials(w http.ResponseWriter, r *http.Request) {
	if s.partials == nil {
		writeJSON(w, http.StatusOK, map[string]any{"records": []kpireward.PartialIssuance{}})
		return
	}
	pendingOnly := r.URL.Query().Get("all") != "true"
	records, err := s.partials.Partials(r.Context(), pendingOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorResponse{Code: "internal", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	evt, err := s.engine.Reconcile(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, errorResponse{Code: "not_found", Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("kpirewardd: reconcile failed", slog.String("record", id), slog.Any("error", err))
		status, body := classify(err)
		writeError(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}
