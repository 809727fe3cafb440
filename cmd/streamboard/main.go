package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/streamboard/streamboard/internal/app/api"
	"github.com/streamboard/streamboard/internal/app/enrich"
	"github.com/streamboard/streamboard/internal/app/mirror"
	"github.com/streamboard/streamboard/internal/app/orgs"
	"github.com/streamboard/streamboard/internal/app/reconcile"
	"github.com/streamboard/streamboard/internal/app/store"
	"github.com/streamboard/streamboard/internal/platform/env"
	"github.com/streamboard/streamboard/internal/platform/localslot"
	"github.com/streamboard/streamboard/internal/platform/logging"
	"github.com/streamboard/streamboard/internal/platform/metrics"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.New(env.String("LOG_LEVEL", "info"))

	addr := env.String("STREAMBOARD_ADDR", env.DefaultAddr)
	dataDir := env.String("STREAMBOARD_DATA_DIR", env.DefaultDataDir)
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	streamSlot := localslot.New(filepath.Join(dataDir, "streams.json"))
	orgSlot := localslot.New(filepath.Join(dataDir, "organizations.json"))
	mirrorSlot := localslot.New(filepath.Join(dataDir, "mirror.json"))

	var mirrorCfg mirror.Config
	if _, err := mirrorSlot.Load(&mirrorCfg); err != nil {
		log.Fatal().Err(err).Msg("load mirror config")
	}

	session := api.NewSession()
	mirrorHandle, err := mirror.NewHandle(mirrorCfg, session.OwnerID, log)
	if err != nil {
		// A broken saved config must not keep the local store offline.
		log.Warn().Err(err).Msg("saved mirror config is invalid, starting without a mirror")
		mirrorHandle, err = mirror.NewHandle(mirror.Config{}, session.OwnerID, log)
		if err != nil {
			log.Fatal().Err(err).Msg("init mirror")
		}
	}

	streamSvc, err := store.NewService(streamSlot, mirrorHandle, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init stream store")
	}
	streamSvc.OwnerID = session.OwnerID

	orgSvc, err := orgs.NewService(orgSlot)
	if err != nil {
		log.Fatal().Err(err).Msg("init organization store")
	}

	handler := &api.Handler{
		Streams:    streamSvc,
		Orgs:       orgSvc,
		Enrich:     enrich.NewService(),
		Reconciler: reconcile.NewCoordinator(streamSvc, mirrorHandle, log),
		Mirror:     mirrorHandle,
		MirrorSlot: mirrorSlot,
		Session:    session,
		Log:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", addr).Str("data_dir", dataDir).Msg("streamboard listening")
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("server failed")
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
