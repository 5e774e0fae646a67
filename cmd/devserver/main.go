// Command devserver runs the in-memory feed service on a local port, so the
// feed client can be used without the real backend.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/apitest"
	"campusfeed/pkg/config"
	"campusfeed/pkg/eventlog"
)

func main() {
	var (
		configPath     string
		censorConfPath string
		seedPath       string
		httpAddr       string
		logLevel       string
		kafkaAddr      string
		kafkaTopic     string
		kafkaBatch     int
	)

	flag.StringVar(&configPath, "config", "cmd/devserver/config.toml", "Path to TOML config file")
	flag.StringVar(&censorConfPath, "censconf", "", "Path to JSON banned words file")
	flag.StringVar(&seedPath, "seed", "", "Path to JSON seed data file")
	flag.StringVar(&httpAddr, "http", "", "HTTP server address in the form 'host:port'.")
	flag.StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.StringVar(&kafkaAddr, "kafka", "", "Kafka server address in the form 'host:port'.")
	flag.StringVar(&kafkaTopic, "topic", "", "Kafka topic.")
	flag.IntVar(&kafkaBatch, "batch", 0, "Kafka batch size.")
	flag.Parse()

	cfg := config.DefaultDevServer()
	if err := config.Load(configPath, &cfg, true); err != nil {
		log.Fatalf("[devserver] %v", err)
	}

	// Override config with flags if set
	if censorConfPath != "" {
		cfg.CensorConfPath = censorConfPath
	}
	if seedPath != "" {
		cfg.SeedPath = seedPath
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if kafkaAddr != "" {
		cfg.KafkaAddr = kafkaAddr
	}
	if kafkaTopic != "" {
		cfg.KafkaTopic = kafkaTopic
	}
	if kafkaBatch != 0 {
		cfg.KafkaBatch = kafkaBatch
	}

	if err := config.SetLogLevel(cfg.LogLevel); err != nil {
		log.Fatalf("[devserver] %v", err)
	}
	if !cfg.IsValid() {
		log.Fatalf("[devserver] invalid configuration, use ':' before port number, e.g. ':8080': %+v", cfg)
	}

	var censor apitest.Censor
	if cfg.CensorConfPath != "" {
		if err := censor.LoadFromJSON(cfg.CensorConfPath); err != nil {
			log.Fatalf("[devserver] failed to load censor config file %s: %v", cfg.CensorConfPath, err)
		}
	}

	api := apitest.New(&censor)

	if cfg.SeedPath != "" {
		seed, err := apitest.LoadSeed(cfg.SeedPath)
		if err != nil {
			log.Fatalf("[devserver] %v", err)
		}
		if err := api.Apply(seed); err != nil {
			log.Fatalf("[devserver] failed to apply seed %s: %v", cfg.SeedPath, err)
		}
		log.Infof("[devserver] seeded %d users and %d posts", len(seed.Users), len(seed.Posts))
	}

	var recorder *eventlog.KafkaRecorder
	if cfg.KafkaEnabled() {
		w := eventlog.NewKafkaWriter(cfg.KafkaAddr, cfg.KafkaTopic, cfg.KafkaBatch)
		defer w.Close()

		if err := eventlog.CreateTopic(context.Background(), cfg.KafkaAddr, cfg.KafkaTopic); err != nil {
			log.Warnf("[devserver] failed to create Kafka topic: %v", err)
		}
		recorder = eventlog.NewKafkaRecorder(w)
		api.SetRecorder(cfg.ServiceName, recorder)
	} else {
		log.Warn("[devserver] kafka was not configured, logs will not be sent to Kafka")
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Infof("[devserver] starting on %v", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[devserver] failed to start: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[devserver] HTTP server shutdown error: %v", err)
	} else {
		log.Info("[devserver] HTTP server shut down gracefully")
	}

	if recorder != nil {
		recorder.Wait()
	}
}
