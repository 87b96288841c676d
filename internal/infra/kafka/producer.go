package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authguard/internal/infra/config"
)

// Producer owns the shared async Sarama producer and the goroutine draining
// its error channel.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
}

// NewProducer connects the async producer and starts the error drain.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, asyncProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := &Producer{producer: producer, logger: logger, cfg: cfg}
	go p.drainErrors()

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("async", cfg.Async),
	)

	return p, nil
}

// asyncProducerConfig favors throughput over per-message guarantees, which
// suits best-effort event fan-out. Durable audit writes go through Postgres,
// not the broker.
func asyncProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0

	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	cfg.Producer.Flush.Messages = 100
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	cfg.Metadata.Retry.Max = 3
	cfg.Metadata.Retry.Backoff = 250 * time.Millisecond

	return cfg
}

// drainErrors logs delivery failures until the producer closes the channel.
func (p *Producer) drainErrors() {
	for perr := range p.producer.Errors() {
		if perr == nil {
			continue
		}
		p.logger.Error("kafka delivery failed",
			zap.Error(perr.Err),
			zap.String("topic", perr.Msg.Topic),
			zap.Int32("partition", perr.Msg.Partition),
			zap.Int64("offset", perr.Msg.Offset),
		)
	}
}

// Producer exposes the underlying Sarama producer for publishers.
func (p *Producer) Producer() sarama.AsyncProducer {
	return p.producer
}

// Close flushes pending messages and stops the error drain.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")

	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}

	return nil
}

// TopicName prefixes eventType with the configured topic prefix, leaving it
// untouched when already prefixed.
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}

	prefix := p.cfg.TopicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}

	return prefix + eventType
}
