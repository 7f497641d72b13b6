package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrsingh-rishi/voice-bot/call"
	"github.com/mrsingh-rishi/voice-bot/config"
	"github.com/mrsingh-rishi/voice-bot/logging"
	"github.com/mrsingh-rishi/voice-bot/metrics"
	"github.com/mrsingh-rishi/voice-bot/server"
	"github.com/mrsingh-rishi/voice-bot/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	providers, err := telemetry.Setup(cfg.Telemetry, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to set up telemetry: %v", err)
	}
	logger := logging.New(cfg.Logging, providers.Logs())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	deps, err := call.NewDependencies(cfg, m)
	if err != nil {
		logger.Error("Failed to build call dependencies", "error", err)
		providers.Shutdown(context.Background())
		os.Exit(1)
	}

	srv := server.New(cfg, call.NewRegistry(m), deps, server.NewTwilioCaller(cfg), reg, logger, m)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		logger.Info("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
		if err := providers.Shutdown(ctx); err != nil {
			log.Printf("Telemetry shutdown error: %v", err)
		}
	}()

	if err := srv.Listen(); err != nil {
		logger.Error("Server stopped", "error", err)
		providers.Shutdown(context.Background())
		os.Exit(1)
	}

	<-stopped
}
