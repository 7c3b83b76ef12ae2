package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/whale-tracker/pkg/analysis"
	"github.com/whale-tracker/pkg/db"
	"github.com/whale-tracker/pkg/poller"
)

type WhaleReader interface {
	RecentWhaleEvents(ctx context.Context, limit int) ([]db.WhaleEvent, error)
	Stats(ctx context.Context) (map[string]int64, error)
}

type WalletAnalyzer interface {
	GetOrCompute(ctx context.Context, address string) (analysis.Result, error)
}

type PriceBook interface {
	GetBulkPrices(ctx context.Context, symbols []string) map[string]float64
}

type PollerStatus interface {
	State() poller.State
	Cursor() uint64
}

type Server struct {
	whales   WhaleReader
	analyzer WalletAnalyzer
	prices   PriceBook
	status   PollerStatus
	metrics  http.Handler
	port     int
}

func New(whales WhaleReader, analyzer WalletAnalyzer, prices PriceBook, status PollerStatus, metrics http.Handler, port int) *Server {
	return &Server{whales: whales, analyzer: analyzer, prices: prices, status: status, metrics: metrics, port: port}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/wallet/analyze", cors(s.handleAnalyze))
	mux.HandleFunc("/api/whales", cors(s.handleWhales))
	mux.HandleFunc("/api/stats", cors(s.handleStats))
	mux.HandleFunc("/api/prices", cors(s.handlePrices))
	mux.HandleFunc("/api/status", cors(s.handleStatus))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", srv.Addr).Msg("🌐 api started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cors(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "wallet address is required")
		return
	}

	res, err := s.analyzer.GetOrCompute(r.Context(), address)
	if errors.Is(err, analysis.ErrInvalidAddress) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("addr", address).Msg("wallet analysis failed")
		writeError(w, http.StatusInternalServerError, "failed to analyze wallet")
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleWhales(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, 500)
	}
	events, err := s.whales.RecentWhaleEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []db.WhaleEvent{}
	}
	writeJSON(w, events)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.whales.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	for _, sym := range strings.Split(r.URL.Query().Get("symbols"), ",") {
		if sym = strings.TrimSpace(sym); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols is required")
		return
	}
	writeJSON(w, s.prices.GetBulkPrices(r.Context(), symbols))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"state":  s.status.State().String(),
		"cursor": s.status.Cursor(),
	})
}
