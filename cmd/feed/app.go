package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/config"
	"campusfeed/pkg/eventlog"
	"campusfeed/pkg/feed"
	"campusfeed/pkg/gateway"
	"campusfeed/pkg/invalidation"
	"campusfeed/pkg/session"
)

// options are the global flags. Zero values leave the configuration untouched.
type options struct {
	configPath string
	baseURL    string
	tokenPath  string
	logLevel   string
	timeoutSec int
	kafkaAddr  string
	kafkaTopic string
}

// app holds the services shared by every command of one run.
type app struct {
	cfg     config.Client
	session *session.Session
	gw      *gateway.Client
	store   *feed.Store

	kw  *kafka.Writer
	rec *eventlog.KafkaRecorder
}

func (a *app) init(ctx context.Context, opts options, configRequired bool) error {
	cfg := config.DefaultClient()
	if err := config.Load(opts.configPath, &cfg, !configRequired); err != nil {
		return err
	}

	// Override config with flags if set
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	if opts.tokenPath != "" {
		cfg.TokenPath = opts.tokenPath
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.timeoutSec != 0 {
		cfg.TimeoutSec = opts.timeoutSec
	}
	if opts.kafkaAddr != "" {
		cfg.KafkaAddr = opts.kafkaAddr
	}
	if opts.kafkaTopic != "" {
		cfg.KafkaTopic = opts.kafkaTopic
	}

	if err := config.SetLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if !cfg.IsValid() {
		return fmt.Errorf("invalid configuration: %+v", cfg)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.session = session.New(session.NewFileStore(cfg.TokenPath))

	a.gw, err = gateway.New(gateway.Config{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout(),
		ServiceName: cfg.ServiceName,
	}, a.session)
	if err != nil {
		return err
	}

	if cfg.KafkaEnabled() {
		a.kw = eventlog.NewKafkaWriter(cfg.KafkaAddr, cfg.KafkaTopic, cfg.KafkaBatch)
		if err := eventlog.CreateTopic(ctx, cfg.KafkaAddr, cfg.KafkaTopic); err != nil {
			log.Warnf("[feed] failed to create Kafka topic: %v", err)
		}
		a.rec = eventlog.NewKafkaRecorder(a.kw)
		a.gw.SetRecorder(a.rec)
	} else {
		log.Debug("[feed] kafka was not configured, request logs will not be sent to Kafka")
	}

	a.store = feed.New(a.gw, invalidation.New(), feed.WithLocation(loc))

	if err := a.session.Start(ctx, a.gw); err != nil {
		if !errors.Is(err, session.ErrInvalidSession) {
			return err
		}
		log.Warnf("[feed] stored session is no longer valid, please log in again")
	}

	return nil
}

func (a *app) close() {
	if a.rec != nil {
		a.rec.Wait()
	}
	if a.kw != nil {
		if err := a.kw.Close(); err != nil {
			log.Errorf("[feed] failed to close Kafka writer: %v", err)
		}
	}
}

// loadFeed fills the store before a command acts on it.
func (a *app) loadFeed(ctx context.Context) error {
	if err := a.store.LoadFeed(ctx); err != nil {
		if gateway.Classify(err) == gateway.ClassUnauthorized {
			return errors.New("not logged in or session expired, run 'feed login <token>'")
		}
		return fmt.Errorf("failed to load feed: %w", err)
	}
	return nil
}
