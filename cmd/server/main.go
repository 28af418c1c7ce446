package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"face2face/internal/adapter/driven/history/badger"
	handler "face2face/internal/adapter/driving/http"
	"face2face/internal/auth"
	"face2face/internal/config"
	"face2face/internal/core/service"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to load config")
	}

	history, err := badger.Open(cfg.HistoryPath)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to open call history store")
	}
	defer history.Close()

	coord := service.NewCoordinator(history, cfg.RingTimeout)
	go coord.Run()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	h := handler.NewHandler(coord, history, verifier, handler.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
		HistoryLimit:   cfg.HistoryLimit,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.Addr).Msg("Starting signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	coord.Stop()
	l.Info().Msg("Server exited")
}
