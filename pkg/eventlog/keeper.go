package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// MessageReader is the subset of *kafka.Reader used by Keeper.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Keeper consumes request log entries from Kafka and indexes them in Elasticsearch
// using a fixed pool of workers.
type Keeper struct {
	r          MessageReader
	index      esapi.Index
	esIndex    string
	numWorkers int
}

func NewKeeper(r MessageReader, es *elasticsearch.Client, esIndex string, numWorkers int) *Keeper {
	return newKeeper(r, es.Index, esIndex, numWorkers)
}

func newKeeper(r MessageReader, index esapi.Index, esIndex string, numWorkers int) *Keeper {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Keeper{r: r, index: index, esIndex: esIndex, numWorkers: numWorkers}
}

// NewKafkaReader builds a consumer group reader for the log topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}

// Run reads messages until ctx is cancelled, then waits for the workers to
// index what was already read.
func (k *Keeper) Run(ctx context.Context) {
	jobs := make(chan kafka.Message, k.numWorkers*5) // buffer is needed to increase throughput
	var wg sync.WaitGroup
	wg.Add(k.numWorkers)
	for workerID := 0; workerID < k.numWorkers; workerID++ {
		go func(id int) {
			defer wg.Done()
			k.worker(jobs, id)
		}(workerID)
	}

	log.Info("[logkeeper] accepting logs...")
loop:
	for {
		msg, err := k.r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			log.Errorf("[logkeeper] failed to read message from Kafka: %v", err)
			continue
		}
		log.Debugf("[logkeeper] received message: %s", string(msg.Value))

		select {
		case jobs <- msg:
		case <-ctx.Done():
			break loop
		}
	}

	close(jobs)
	wg.Wait()
}

// worker indexes jobs until Run closes the channel, so entries already read
// from Kafka are still indexed after ctx is cancelled.
func (k *Keeper) worker(jobs <-chan kafka.Message, workerID int) {
	for msg := range jobs {
		k.indexMessage(msg, workerID)
	}
	log.Infof("[logkeeper][workerID:%d] jobs channel closed, exiting worker", workerID)
}

func (k *Keeper) indexMessage(msg kafka.Message, workerID int) bool {
	var entry Entry
	if err := json.Unmarshal(msg.Value, &entry); err != nil {
		log.Errorf("[logkeeper][workerID:%d] failed to unmarshal log entry: %v", workerID, err)
		return false
	}

	res, err := k.index(
		k.esIndex,
		strings.NewReader(string(msg.Value)),
		k.index.WithDocumentID(entry.DocumentID()),
	)
	if res != nil {
		res.Body.Close()
	}
	if err != nil || (res != nil && res.IsError()) {
		log.Errorf("[logkeeper][workerID:%d] failed to index document: %v", workerID, err)
		return false
	}

	log.Infof("[logkeeper][workerID:%d][%s] log entry indexed", workerID, Shorten(entry.RequestID))
	return true
}
