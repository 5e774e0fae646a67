// Package config holds the TOML configuration of the campusfeed binaries.
// Values are read from a file first; command-line flags override them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

var ErrUnknownLogLevel = errors.New("unknown log level")

// Client configures the feed command line client.
type Client struct {
	ServiceName string `toml:"serviceName"`
	BaseURL     string `toml:"baseURL"`
	TimeoutSec  int    `toml:"timeoutSec"`
	TokenPath   string `toml:"tokenPath"`
	TimeZone    string `toml:"timeZone"`
	LogLevel    string `toml:"logLevel"`

	KafkaAddr  string `toml:"kafkaAddr"`
	KafkaTopic string `toml:"kafkaTopic"`
	KafkaBatch int    `toml:"kafkaBatch"`
}

// Keeper configures the log keeper moving request entries from Kafka to Elasticsearch.
type Keeper struct {
	LogLevel     string   `toml:"logLevel"`
	KafkaBrokers []string `toml:"kafkaBrokers"`
	KafkaTopic   string   `toml:"kafkaTopic"`
	KafkaGroupID string   `toml:"kafkaGroupID"`

	ElasticSearchIndex    string   `toml:"elasticSearchIndex"`
	ElasticSearchNodes    []string `toml:"elasticSearchNodes"`
	ElasticSearchUser     string   `toml:"elasticSearchUser"`
	ElasticSearchPassword string   `toml:"elasticSearchPassword"`

	NumWorkers int `toml:"numWorkers"`
}

// DevServer configures the local in-memory feed service.
type DevServer struct {
	ServiceName    string `toml:"serviceName"`
	HTTPAddr       string `toml:"httpAddr"`
	LogLevel       string `toml:"logLevel"`
	CensorConfPath string `toml:"censorConfPath"`
	SeedPath       string `toml:"seedPath"`

	KafkaAddr  string `toml:"kafkaAddr"`
	KafkaTopic string `toml:"kafkaTopic"`
	KafkaBatch int    `toml:"kafkaBatch"`
}

func DefaultClient() Client {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Client{
		ServiceName: "feedclient",
		BaseURL:     "http://localhost:8080",
		TimeoutSec:  10,
		TokenPath:   filepath.Join(home, ".campusfeed", "session.toml"),
		TimeZone:    "Local",
		LogLevel:    "warn",
	}
}

func DefaultKeeper() Keeper {
	return Keeper{
		LogLevel:           "info",
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaTopic:         "feed-logs",
		KafkaGroupID:       "logkeeper",
		ElasticSearchIndex: "feed-logs",
		ElasticSearchNodes: []string{"http://localhost:9200"},
		NumWorkers:         4,
	}
}

func DefaultDevServer() DevServer {
	return DevServer{
		ServiceName: "feedapi",
		HTTPAddr:    ":8080",
		LogLevel:    "info",
	}
}

// Load decodes the TOML file at path over cfg, so fields missing from the
// file keep their current values. A missing file is not an error when
// optional is set.
func Load(path string, cfg any, optional bool) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			log.Debugf("[config] %s not found, using defaults", path)
			return nil
		}
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	for _, key := range md.Undecoded() {
		log.Warnf("[config] unknown key %q in %s", key.String(), path)
	}
	return nil
}

// SetLogLevel switches the global logger to one of debug, info, warn or error.
func SetLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLogLevel, level)
	}
	return nil
}

func (c *Client) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Location resolves TimeZone, defaulting to the local zone.
func (c *Client) Location() (*time.Location, error) {
	if c.TimeZone == "" || strings.EqualFold(c.TimeZone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// KafkaEnabled reports whether request entries should be published.
func (c *Client) KafkaEnabled() bool {
	return c.KafkaAddr != "" && c.KafkaTopic != ""
}

func (c *Client) IsValid() bool {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	if c.TimeoutSec < 0 || c.KafkaBatch < 0 || c.TokenPath == "" {
		return false
	}
	if _, err := c.Location(); err != nil {
		return false
	}
	return true
}

func (c *Keeper) IsValid() bool {
	if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" || c.KafkaGroupID == "" {
		return false
	}
	if c.ElasticSearchIndex == "" || len(c.ElasticSearchNodes) == 0 {
		return false
	}
	if c.ElasticSearchUser != "" && c.ElasticSearchPassword == "" {
		return false
	}
	return c.NumWorkers >= 0
}

func (c Keeper) String() string {
	c.ElasticSearchPassword = strings.Repeat("*", len([]rune(c.ElasticSearchPassword)))
	return fmt.Sprintf("%#v", c)
}

func (c *DevServer) IsValid() bool {
	if !strings.Contains(c.HTTPAddr, ":") {
		return false
	}
	return c.KafkaBatch >= 0
}

func (c *DevServer) KafkaEnabled() bool {
	return c.KafkaAddr != "" && c.KafkaTopic != ""
}
