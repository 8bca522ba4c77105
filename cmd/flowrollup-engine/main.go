package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"FlowRollup/internal/bus"
	"FlowRollup/internal/config"
	"FlowRollup/internal/model"
	"FlowRollup/internal/offsets"
	"FlowRollup/internal/pipeline"
	"FlowRollup/internal/sink"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the engine's YAML config file")
	flag.Parse()

	log.Println("Starting flowrollup-engine...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	source, err := bus.NewJetStreamSource(cfg.Bus.BootstrapServers, cfg.Bus.FlowSourceTopic, cfg.Bus.GroupID, cfg.Bus.AutoCommit)
	if err != nil {
		log.Fatalf("Failed to create bus source: %v", err)
	}

	docSink, err := newDocumentSink(cfg)
	if err != nil {
		log.Fatalf("Failed to create document sink: %v", err)
	}

	var topicSink bus.TopicSink
	if cfg.Bus.FlowDestTopic != "" {
		topicSink, err = bus.NewJetStreamTopicSink(cfg.Bus.BootstrapServers, cfg.Bus.FlowDestTopic)
		if err != nil {
			log.Fatalf("Failed to create topic sink: %v", err)
		}
	}

	var offsetStore *offsets.Store
	if !cfg.Bus.AutoCommit {
		offsetStore, err = offsets.New(cfg.Redis.Addr, cfg.Redis.DB, cfg.Bus.GroupID)
		if err != nil {
			log.Fatalf("Failed to create offset store: %v", err)
		}
	}

	p := pipeline.New(cfg, source, docSink, topicSink, offsetStore)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	go serveHealthAndMetrics(cfg.MetricsAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping pipeline...")
	cancel()
	p.Stop()
	log.Println("Shutdown complete.")
}

func newDocumentSink(cfg *config.Config) (sink.DocumentSink, error) {
	switch cfg.Sink.Driver {
	case "sqlite", "":
		return sink.NewSQLiteSink(cfg.Sink.URL, cfg.Sink.FlowIndex, model.IndexStrategy(cfg.Sink.IndexStrategy))
	case "clickhouse":
		return sink.NewClickHouseSink(cfg.Sink.URL, cfg.Sink.FlowIndex, model.IndexStrategy(cfg.Sink.IndexStrategy))
	default:
		return nil, fmt.Errorf("unknown sink.driver %q", cfg.Sink.Driver)
	}
}

func serveHealthAndMetrics(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("serving /healthz and /metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("health/metrics server stopped: %v", err)
	}
}
