package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/network/pkg/client"
	"github.com/campuslink/network/pkg/config"
	"github.com/campuslink/network/pkg/logging"
	"github.com/campuslink/network/pkg/monitoring"
)

func setupLogger() *logging.ColoredLogger {
	logger, err := logging.NewColoredLogger(logging.ComponentGeneral, true)
	if err != nil {
		panic(err)
	}
	return logger
}

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	logger := setupLogger()

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.ComponentError(logging.ComponentGeneral, "failed to load config", zap.Error(err))
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	c, err := client.NewClient(cfg)
	if err != nil {
		logger.ComponentError(logging.ComponentGeneral, "failed to assemble client", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		logger.ComponentError(logging.ComponentGeneral, "failed to start client", zap.Error(err))
		os.Exit(1)
	}

	// SIGUSR1 backgrounds, SIGUSR2 foregrounds. This stands in for the host
	// platform's lifecycle notifications and makes resume behavior testable
	// from a shell.
	src := newSignalSource()
	go c.Realtime().Run(ctx, src)

	sampler := monitoring.NewSampler(c.Realtime().Channels, logger, time.Minute)
	go sampler.Run(ctx)

	var server *http.Server
	if cfg.Status.Enabled {
		server = &http.Server{
			Addr:    cfg.Status.ListenAddr,
			Handler: newStatusRouter(c, sampler),
		}
		go func() {
			logger.ComponentInfo(logging.ComponentGeneral, "status server starting",
				zap.String("addr", cfg.Status.ListenAddr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.ComponentError(logging.ComponentGeneral, "status server error", zap.Error(err))
				os.Exit(1)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.ComponentInfo(logging.ComponentGeneral, "shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ComponentError(logging.ComponentGeneral, "status server shutdown error", zap.Error(err))
		}
	}
	if err := c.Disconnect(shutdownCtx); err != nil {
		logger.ComponentError(logging.ComponentGeneral, "client shutdown error", zap.Error(err))
	}
	logger.ComponentInfo(logging.ComponentGeneral, "shutdown complete")
}
