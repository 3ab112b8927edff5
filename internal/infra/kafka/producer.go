package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/infra/config"
)

// Producer wraps a Sarama AsyncProducer and drains its error channel.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
	done     chan struct{}
}

func newSaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0

	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true

	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	return saramaConfig
}

// NewProducer connects an async producer to the configured brokers.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, newSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := newProducer(producer, cfg, logger)

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return p, nil
}

func newProducer(producer sarama.AsyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	p := &Producer{
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	go p.handleErrors()
	return p
}

func (p *Producer) handleErrors() {
	for {
		select {
		case err, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			if err != nil {
				p.logger.Error("kafka producer error",
					zap.Error(err.Err),
					zap.String("topic", err.Msg.Topic),
				)
			}
		case <-p.done:
			return
		}
	}
}

// Input is the channel messages are queued on.
func (p *Producer) Input() chan<- *sarama.ProducerMessage {
	return p.producer.Input()
}

// Close flushes pending messages and stops the producer.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	close(p.done)

	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the full topic name with prefix.
func (p *Producer) TopicName(eventType string) string {
	return topicName(p.cfg.TopicPrefix, eventType)
}

func topicName(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}

	prefix += "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}
	return prefix + eventType
}
