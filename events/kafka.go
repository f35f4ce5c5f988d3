package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/segmentio/kafka-go"
	"github.com/warp/timesheet-analytics/performance"
)

// KafkaConfig selects the brokers, topic and consumer group.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a synchronous writer that waits for the partition leader.
func NewWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// NewReader returns a consumer-group reader with explicit commits.
func NewReader(cfg KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// =============================================================================
// PUBLISHER
// =============================================================================

// KafkaPublisher writes events to a topic, retrying transient write failures
// with exponential backoff.
type KafkaPublisher struct {
	writer   messageWriter
	retry    retry.Config
	log      *slog.Logger
	observer PublishObserver
}

func NewKafkaPublisher(w messageWriter, log *slog.Logger, obs PublishObserver) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaPublisher{
		writer: w,
		retry: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		log:      log.With(slog.String("component", "kafka-publisher")),
		observer: obs,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev performance.Event) (err error) {
	defer func() {
		if p.observer != nil {
			p.observer.ObservePublish(string(ev.Kind), err)
		}
	}()

	value, err := Encode(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: Key(ev), Value: value, Time: ev.OccurredAt}

	r := retry.New[struct{}](p.retry)
	_, err = r.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		p.log.Error("publish failed", eventAttrs(ev), slog.Any("error", err))
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	p.log.Debug("published", eventAttrs(ev))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// =============================================================================
// CONSUMER
// =============================================================================

// Consumer reads events from a topic and runs the recomputation chain for
// each. An event whose chain fails is logged and committed: recomputation is
// re-derivable, and the next event for the same subject repairs it.
type Consumer struct {
	reader  messageReader
	handler Handler
	log     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewConsumer(r messageReader, h Handler, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		reader:  r,
		handler: h,
		log:     log.With(slog.String("component", "kafka-consumer")),
	}
}

// Start begins consuming in a background goroutine.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)

	c.log.Info("started")
}

// Stop cancels the consumer, waits for the in-flight event, and closes the
// reader.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	c.cancel = nil
	c.log.Info("stopped")
	return c.reader.Close()
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.log.Warn("fetch failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.process(ctx, msg)
	}
}

// process handles one message and commits it.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ev, err := Decode(msg.Value)
	if err != nil {
		c.log.Error("dropping malformed event",
			slog.Int64("offset", msg.Offset), slog.Any("error", err))
	} else if err := c.handler.Handle(ctx, ev); err != nil {
		c.log.Error("recompute failed", eventAttrs(ev), slog.Any("error", err))
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.log.Warn("commit failed", slog.Int64("offset", msg.Offset), slog.Any("error", err))
	}
}
