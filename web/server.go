package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"gexmap/analysis"
	"gexmap/chain"
	"gexmap/config"
	"gexmap/heat"
	"gexmap/massive"
	"gexmap/schwab"
)

const (
	defaultTimeframe = "5minute"
	defaultHeatDays  = 7
	maxHeatDays      = 365
	maxBins          = 5000
)

// ChainSource fetches option chains and spot prices
type ChainSource interface {
	GetOptionChain(ctx context.Context, q schwab.ChainQuery) (*chain.Payload, error)
	GetSpotPrice(ctx context.Context, symbol string) (float64, error)
}

// CandleSource fetches OHLCV bars
type CandleSource interface {
	Candles(ctx context.Context, ticker string, tf massive.Timeframe, from, to time.Time, limit int) ([]heat.Candle, error)
}

// Server is the dashboard API
type Server struct {
	cfg     *config.Settings
	chains  ChainSource
	candles CandleSource
	cache   Cache
	metrics *Metrics
	params  chain.Params
}

// NewServer wires the API; candles may be nil when no candle vendor is configured
func NewServer(cfg *config.Settings, chains ChainSource, candles CandleSource, cache Cache, metrics *Metrics) *Server {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		cfg:     cfg,
		chains:  chains,
		candles: candles,
		cache:   cache,
		metrics: metrics,
		params:  cfg.NormalizerParams(),
	}
}

// Routes returns the HTTP handler serving every endpoint
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.requestLogger, ZstdMiddleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/gex/{ticker}", s.handleGEX).Methods(http.MethodGet)
	api.HandleFunc("/heat/{ticker}", s.handleHeat).Methods(http.MethodGet)
	api.HandleFunc("/timeframes", s.handleTimeframes).Methods(http.MethodGet)

	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.HTTP.Addr).Str("cache", s.cache.Name()).Msg("Server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"}, false)
}

func (s *Server) handleTimeframes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string][]string{
		"timeframes": massive.Timeframes(),
		"expirations": {
			string(analysis.FilterToday),
			string(analysis.FilterNextFriday),
			string(analysis.FilterTwoFridays),
			string(analysis.FilterAll),
		},
	}, false)
}

// handleGEX serves the gamma exposure report for a ticker
func (s *Server) handleGEX(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])

	filter, err := analysis.ParseExpirationFilter(r.URL.Query().Get("expiration"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	key := fmt.Sprintf("gex:%s:%s", ticker, filter)
	if s.serveCached(w, r, key) {
		return
	}

	now := s.params.CurrentTime()
	payload, err := s.chains.GetOptionChain(ctx, schwab.ChainQuery{
		Symbol: ticker,
		ToDate: analysis.Cutoff(filter, now),
	})
	if err != nil {
		s.metrics.UpstreamErrors.WithLabelValues("schwab").Inc()
		log.Error().Err(err).Str("ticker", ticker).Msg("Failed to fetch option chain")
		writeError(w, r, http.StatusBadGateway, err)
		return
	}

	spot := payload.UnderlyingPrice
	if spot <= 0 {
		if spot, err = s.chains.GetSpotPrice(ctx, ticker); err != nil {
			s.metrics.UpstreamErrors.WithLabelValues("schwab").Inc()
			log.Warn().Err(err).Str("ticker", ticker).Msg("No spot price, exposure will be zero")
		}
	}

	report, err := BuildGEXReport(ticker, payload, GEXOptions{
		Filter:       filter,
		Params:       s.params,
		SpotPrice:    spot,
		StrikeWindow: s.cfg.Stream.StrikesRange,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, analysis.ErrEmptyInput) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, r, status, err)
		return
	}
	if dropped := report.Chain.Dropped; dropped > 0 {
		s.metrics.DroppedRecords.WithLabelValues(ticker).Add(float64(dropped))
	}

	s.storeAndServe(w, r, key, report)
}

// handleHeat serves the heat field for a ticker's recent candles
func (s *Server) handleHeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])
	q := r.URL.Query()

	if s.candles == nil {
		writeError(w, r, http.StatusServiceUnavailable, errors.New("candle provider is not configured"))
		return
	}

	label := q.Get("timeframe")
	if label == "" {
		label = defaultTimeframe
	}
	tf, err := massive.ParseTimeframe(label)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	days, err := intParam(q.Get("days"), defaultHeatDays, 1, maxHeatDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("days: %w", err))
		return
	}
	bins, err := intParam(q.Get("bins"), heat.DefaultBins, 2, maxBins)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("bins: %w", err))
		return
	}

	key := fmt.Sprintf("heat:%s:%s:%d:%d", ticker, tf.Label, days, bins)
	if s.serveCached(w, r, key) {
		return
	}

	to := s.params.CurrentTime()
	candles, err := s.candles.Candles(ctx, ticker, tf, to.AddDate(0, 0, -days), to, 0)
	if err != nil {
		s.metrics.UpstreamErrors.WithLabelValues("massive").Inc()
		log.Error().Err(err).Str("ticker", ticker).Msg("Failed to fetch candles")
		writeError(w, r, http.StatusBadGateway, err)
		return
	}

	start := time.Now()
	report, err := BuildHeatReport(ticker, tf.Label, candles, bins)
	s.metrics.HeatBuild.Observe(time.Since(start).Seconds())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, heat.ErrNoCandles) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, r, status, err)
		return
	}

	s.storeAndServe(w, r, key, report)
}

// serveCached writes a cached report and reports whether it did
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key string) bool {
	data, ok, err := s.cache.Get(r.Context(), key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}
	if !ok {
		s.metrics.CacheMisses.WithLabelValues(s.cache.Name()).Inc()
		return false
	}
	s.metrics.CacheHits.WithLabelValues(s.cache.Name()).Inc()
	writeJSON(w, r, http.StatusOK, json.RawMessage(data), true)
	return true
}

func (s *Server) storeAndServe(w http.ResponseWriter, r *http.Request, key string, report any) {
	data, err := json.Marshal(report)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if err := s.cache.Set(r.Context(), key, data, s.cfg.Cache.TTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	writeJSON(w, r, http.StatusOK, json.RawMessage(data), false)
}

func intParam(raw string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", v, lo, hi)
	}
	return v, nil
}

func writeJSON[T any](w http.ResponseWriter, r *http.Request, status int, data T, cached bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := Response[T]{
		Data: data,
		Meta: Meta{
			RequestID:   RequestID(r.Context()),
			GeneratedAt: time.Now().UTC(),
			Cached:      cached,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, r, status, ErrorBody{Error: err.Error()}, false)
}
