// Package main is the entry point for the mesh interchange daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/config"
	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/convert"
	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/logger"
	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/server"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	session := convert.NewSession(logger.Log)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(session, logger.Log, cfg.Server.MaxUploadMB).Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Log.Info("listening", zap.String("addr", cfg.Server.Addr))
		errc <- srv.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	case sig := <-sigc:
		logger.Log.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Log.Error("shutdown error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Log.Info("server closed normally")
}
