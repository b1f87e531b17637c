package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"polymarket-trade-bot-go/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIServer exposes a read-only HTTP view of the running bot.
type APIServer struct {
	server    *http.Server
	engine    *Engine
	db        *gorm.DB
	logger    *zap.Logger
	id        string
	startTime time.Time
}

// NewAPIServer creates a new APIServer. db may be nil, in which case the
// /trades endpoint reports an empty list.
func NewAPIServer(engine *Engine, db *gorm.DB, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine:    engine,
		db:        db,
		logger:    logger.Named("api-server"),
		id:        uuid.NewString(),
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/positions", s.positionsHandler)
	mux.HandleFunc("/trades", s.tradesHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		ID        string  `json:"id"`
		Strategy  string  `json:"strategy"`
		Mode      string  `json:"mode"`
		StartTime string  `json:"start_time"`
		Uptime    string  `json:"uptime"`
		Positions int     `json:"positions"`
		Exposure  float64 `json:"exposure"`
	}{
		ID:        s.id,
		Strategy:  s.engine.strategy.Name(),
		Mode:      string(s.engine.executor.mode),
		StartTime: s.startTime.Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).String(),
		Positions: len(s.engine.book.List()),
		Exposure:  s.engine.book.TotalExposure(),
	}
	s.writeJSON(w, status)
}

func (s *APIServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.engine.book.List())
}

func (s *APIServer) tradesHandler(w http.ResponseWriter, r *http.Request) {
	rows := []models.TradeRow{}
	if s.db != nil {
		if err := s.db.Order("id desc").Limit(100).Find(&rows).Error; err != nil {
			s.logger.Error("Failed to load trade rows", zap.Error(err))
			http.Error(w, "Failed to load trades", http.StatusInternalServerError)
			return
		}
	}
	s.writeJSON(w, rows)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
