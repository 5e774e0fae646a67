package eventlog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

// Recorder receives one entry per completed outbound request.
type Recorder interface {
	Record(Entry)
}

// MessageWriter is the subset of *kafka.Writer used by KafkaRecorder.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaRecorder publishes entries as JSON messages. Writes happen in the
// background so a slow broker never delays the request path.
type KafkaRecorder struct {
	w  MessageWriter
	wg sync.WaitGroup
}

func NewKafkaRecorder(w MessageWriter) *KafkaRecorder {
	return &KafkaRecorder{w: w}
}

// NewKafkaWriter builds a writer for the given broker and topic.
func NewKafkaWriter(addr, topic string, batch int) *kafka.Writer {
	return &kafka.Writer{
		Addr:      kafka.TCP(addr),
		Topic:     topic,
		BatchSize: batch,
	}
}

// CreateTopic creates the topic with a single partition. An existing topic is not an error.
func CreateTopic(ctx context.Context, broker, topic string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}

func (r *KafkaRecorder) Record(entry Entry) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		jsonEntry, err := json.Marshal(entry)
		if err != nil {
			log.Errorf("[KafkaRecorder] failed to marshal log entry for request %s", entry.RequestID)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		err = r.w.WriteMessages(ctx, kafka.Message{Key: []byte(entry.RequestID), Value: jsonEntry})
		if err != nil {
			log.Errorf("[KafkaRecorder] failed to write log to Kafka: %v", err)
			return
		}
		log.Debugf("[KafkaRecorder] log entry sent to Kafka request_id:%s", Shorten(entry.RequestID))
	}()
}

// Wait blocks until every entry recorded so far has been written or has failed.
func (r *KafkaRecorder) Wait() {
	r.wg.Wait()
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(Entry)

func (f RecorderFunc) Record(e Entry) {
	f(e)
}
