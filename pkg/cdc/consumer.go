// Package cdc is the alternative projection driver of spec §4.5/§6.5:
// it tails Debezium-style change events off circle_snapshots and
// upserts the read cache directly, independent of the in-process
// publisher. Grounded on ToxicToastTV's
// AI/services/webhook-service/internal/consumer.KafkaConsumer (reader
// config, worker-pool fan-out, commit-after-process) and on the
// original katayama8000/axum-cqrs-rust cdc-consumer's envelope
// decoding, reimplemented with segmentio/kafka-go instead of rdkafka
// and go-redis instead of the redis crate.
package cdc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/loofy147/circles/internal/circle"
	"github.com/loofy147/circles/pkg/readmodel"
)

// Config configures the consumer's Kafka reader.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	WorkerCount int
}

// envelope is the Debezium change-event shape for circle_snapshots.
// Only the after image is consumed; before and op are read but never
// acted on beyond deciding whether after is present.
type envelope struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Op     string          `json:"op"`
}

// snapshotRow is the after-image shape of a circle_snapshots row.
type snapshotRow struct {
	CircleID string          `json:"circle_id"`
	State    json.RawMessage `json:"state"`
}

// Consumer tails the CDC topic and upserts the read cache.
type Consumer struct {
	reader       *kafka.Reader
	views        *readmodel.ReadModel
	breaker      *gobreaker.CircuitBreaker
	fetchLimiter *rate.Limiter
	workerCount  int

	wg       sync.WaitGroup
	messages chan kafka.Message
	cancel   context.CancelFunc
}

func New(cfg Config, views *readmodel.ReadModel) *Consumer {
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 5
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupTopics: []string{cfg.Topic},
		GroupID:     cfg.GroupID,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cdc-kafka",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Consumer{
		reader:       reader,
		views:        views,
		breaker:      breaker,
		fetchLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		workerCount:  cfg.WorkerCount,
		messages:     make(chan kafka.Message, 100),
	}
}

// Start begins reading and processing in the background.
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.readLoop(ctx)

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
}

// Stop drains and stops the consumer, and closes the underlying reader.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Printf("cdc: fetch failed: %v", err)
				// A broker outage would otherwise spin this loop as fast
				// as FetchMessage can fail; wait lets it retry at a fixed
				// rate instead.
				if err := c.fetchLimiter.Wait(ctx); err != nil {
					return
				}
				continue
			}
			select {
			case c.messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.messages:
			if !ok {
				return
			}
			if err := c.process(ctx, msg); err != nil {
				log.Printf("cdc: worker %d failed to process offset %d: %v", id, msg.Offset, err)
				continue
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Printf("cdc: worker %d failed to commit offset %d: %v", id, msg.Offset, err)
			}
		}
	}
}

// process decodes a Debezium envelope and, if it carries an after
// image, upserts the read cache. Operations without an after image
// (deletes) and decode failures are ignored rather than retried —
// circle_snapshots rows are never deleted by this system.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		log.Printf("cdc: malformed envelope at offset %d: %v", msg.Offset, err)
		return nil
	}
	if len(env.After) == 0 || string(env.After) == "null" {
		return nil
	}

	var row snapshotRow
	if err := json.Unmarshal(env.After, &row); err != nil {
		log.Printf("cdc: malformed snapshot row at offset %d: %v", msg.Offset, err)
		return nil
	}

	var state circle.Circle
	if err := json.Unmarshal(row.State, &state); err != nil {
		log.Printf("cdc: malformed circle state at offset %d: %v", msg.Offset, err)
		return nil
	}

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.views.Set(ctx, state)
	})
	if err != nil {
		return fmt.Errorf("write read cache for circle %s: %w", row.CircleID, err)
	}
	return nil
}
