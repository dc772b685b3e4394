package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/wanikani-client/internal/config"
	"github.com/Sternrassler/wanikani-client/pkg/client"
	"github.com/Sternrassler/wanikani-client/pkg/metrics"
	"github.com/Sternrassler/wanikani-client/pkg/query"
	"github.com/Sternrassler/wanikani-client/pkg/vocab"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the learned vocabulary, health and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wk, cleanup, err := a.newClient()
			if err != nil {
				return err
			}
			defer cleanup()

			s := &server{
				source:   wk,
				defaults: a.vocabConfig(),
				logger:   a.logger,
			}
			if a.redis != nil {
				rdb := a.redis
				s.ready = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
			}
			return s.run(cmd.Context(), a.cfg.Server.Addr)
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	mustBind(a.v, config.KeyServerAddr, cmd.Flags().Lookup("addr"))
	return cmd
}

// server exposes vocabulary assembly over HTTP.
type server struct {
	source   vocab.Source
	defaults vocab.Config
	// ready checks dependencies; nil means always ready.
	ready  func(context.Context) error
	logger zerolog.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/vocabulary", s.handleVocabulary)
	})
	return r
}

func (s *server) run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write health response")
	}
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Not ready")
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type vocabularyResponse struct {
	Count   int           `json:"count"`
	Entries []vocab.Entry `json:"entries"`
}

// handleVocabulary accepts optional level and min_stage query parameters.
func (s *server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	cfg := s.defaults

	level, err := intParam(r, "level", 0, query.MaxLevel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minStage, err := intParam(r, "min_stage", query.MinSRSStage, query.MaxSRSStage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.URL.Query().Has("min_stage") {
		cfg.MinSRSStage = minStage
	}

	b := vocab.NewBuilder(s.source, cfg)
	var entries []vocab.Entry
	if level > 0 {
		entries, err = b.BuildForLevel(r.Context(), level)
	} else {
		entries, err = b.Build(r.Context())
	}
	if err != nil {
		s.logger.Error().Err(err).Str("error_class", string(client.ClassOf(err))).Msg("Vocabulary request failed")
		writeError(w, upstreamStatus(err), err.Error())
		return
	}

	if entries == nil {
		entries = []vocab.Entry{}
	}
	writeJSON(w, http.StatusOK, vocabularyResponse{Count: len(entries), Entries: entries})
}

// upstreamStatus maps a client failure onto the status returned to callers.
func upstreamStatus(err error) int {
	switch client.ClassOf(err) {
	case client.ErrorClassConfiguration:
		return http.StatusInternalServerError
	case client.ErrorClassRateLimit:
		return http.StatusTooManyRequests
	case client.ErrorClassNetwork:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func intParam(r *http.Request, name string, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
