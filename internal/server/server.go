package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/scheduler"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// Tasks reports scheduled task state.
type Tasks interface {
	Tasks() []scheduler.TaskStatus
}

// Positions reports the live position table.
type Positions interface {
	Running() bool
	Snapshots() []types.PositionSnapshot
}

// Batches returns the latest nightly batch result.
type Batches interface {
	LatestBatch() (types.BatchResult, error)
}

// BatchSummary is the part of the latest batch shown on /status.
type BatchSummary struct {
	TradeDate   string       `json:"trade_date"`
	ScanDate    string       `json:"scan_date"`
	Regime      types.Regime `json:"regime"`
	Candidates  int          `json:"candidates"`
	SignalCount int          `json:"signal_count"`
	Stale       bool         `json:"stale"`
	StaleSource string       `json:"stale_source,omitempty"`
	RunID       string       `json:"run_id"`
}

// Status is the /status document.
type Status struct {
	Time           time.Time                `json:"time"`
	MonitorRunning bool                     `json:"monitor_running"`
	Tasks          []scheduler.TaskStatus   `json:"tasks"`
	Positions      []types.PositionSnapshot `json:"positions"`
	Batch          *BatchSummary            `json:"batch,omitempty"`
}

type Deps struct {
	Addr      string
	Tasks     Tasks
	Positions Positions
	Batches   Batches
	// Metrics serves /metrics.
	Metrics http.Handler
	Now     func() time.Time
}

// Server exposes metrics, liveness and status for the dashboard.
type Server struct {
	router    *mux.Router
	http      *http.Server
	tasks     Tasks
	positions Positions
	batches   Batches
	now       func() time.Time
	logger    *logger.Logger
}

func New(deps Deps, log *logger.Logger) *Server {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		router:    mux.NewRouter(),
		tasks:     deps.Tasks,
		positions: deps.Positions,
		batches:   deps.Batches,
		now:       now,
		logger:    log.Component("server"),
	}

	s.routes(deps.Metrics)

	s.http = &http.Server{
		Addr:              deps.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.router.Use(s.requestID)
	s.router.Use(s.requestLogging)

	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentType)
	api.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)
	api.HandleFunc("/positions/{symbol}", s.position).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "cannot listen on %s", s.http.Addr)
	}

	s.logger.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- s.http.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.logger.Info("HTTP server stopped")

	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"time":            s.now(),
		"monitor_running": s.positions != nil && s.positions.Running(),
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	status := Status{
		Time:           s.now(),
		MonitorRunning: false,
		Tasks:          []scheduler.TaskStatus{},
		Positions:      []types.PositionSnapshot{},
		Batch:          nil,
	}

	if s.tasks != nil {
		status.Tasks = s.tasks.Tasks()
	}

	if s.positions != nil {
		status.MonitorRunning = s.positions.Running()
		status.Positions = s.positions.Snapshots()
	}

	if s.batches != nil {
		if batch, err := s.batches.LatestBatch(); err == nil {
			status.Batch = &BatchSummary{
				TradeDate:   batch.TradeDate,
				ScanDate:    batch.ScanDate,
				Regime:      batch.Regime,
				Candidates:  len(batch.Candidates),
				SignalCount: batch.SignalCount,
				Stale:       batch.Metadata.Stale,
				StaleSource: batch.Metadata.StaleSource,
				RunID:       batch.Metadata.RunID,
			}
		} else if !errors.IsArtifactNotFound(err) {
			s.logger.Warn("Failed to load latest batch for status", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) position(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if s.positions != nil {
		for _, p := range s.positions.Snapshots() {
			if p.Symbol == symbol {
				writeJSON(w, http.StatusOK, p)

				return
			}
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{"error": "position not held", "symbol": symbol})
}

type requestIDKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		id, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("Request served",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
