package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/elastic/go-elasticsearch/v8"
	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/config"
	"campusfeed/pkg/eventlog"
)

func main() {
	var (
		configPath string
		logLevel   string
		brokers    string
		topic      string
		numWorkers int
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("[logkeeper] shutting down gracefully...")
		cancel()
	}()

	flag.StringVar(&configPath, "config", "cmd/logkeeper/config.toml", "Path to TOML config file")
	flag.StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.StringVar(&brokers, "kafka", "", "Comma separated Kafka brokers in the form 'host:port'.")
	flag.StringVar(&topic, "topic", "", "Kafka topic.")
	flag.IntVar(&numWorkers, "workers", 0, "Number of indexing workers.")
	flag.Parse()

	cfg := config.DefaultKeeper()
	if err := config.Load(configPath, &cfg, false); err != nil {
		log.Fatalf("[logkeeper] %v", err)
	}

	// Override config with flags if set
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if topic != "" {
		cfg.KafkaTopic = topic
	}
	if numWorkers != 0 {
		cfg.NumWorkers = numWorkers
	}

	if err := config.SetLogLevel(cfg.LogLevel); err != nil {
		log.Fatalf("[logkeeper] %v", err)
	}
	if !cfg.IsValid() {
		log.Fatalf("[logkeeper] invalid configuration: %v", cfg)
	}
	log.Debugf("[logkeeper] config: %v", cfg)

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.ElasticSearchNodes,
		Username:  cfg.ElasticSearchUser,
		Password:  cfg.ElasticSearchPassword,
	})
	if err != nil {
		log.Fatalf("[logkeeper] error creating the client: %s", err)
	}

	r := eventlog.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer r.Close()

	eventlog.NewKeeper(r, es, cfg.ElasticSearchIndex, cfg.NumWorkers).Run(ctx)
}
