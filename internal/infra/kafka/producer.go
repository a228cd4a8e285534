package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/infra/config"
)

// Producer delivers account events to Kafka. With async enabled messages are queued and delivery
// errors are only logged; otherwise Send blocks until the leader and replicas acknowledge.
type Producer struct {
	async  sarama.AsyncProducer
	sync   sarama.SyncProducer
	logger *zap.Logger
	prefix string
	wg     sync.WaitGroup
}

func saramaConfig(cfg config.KafkaSettings) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_5_0_0
	sc.ClientID = "identity-service"
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Errors = true
	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond

	if cfg.Async {
		sc.Producer.RequiredAcks = sarama.WaitForLocal
		sc.Producer.Flush.Frequency = 100 * time.Millisecond
		sc.Producer.Flush.Messages = 100
		sc.Producer.Return.Successes = false
	} else {
		// reset tokens must not be lost silently
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Producer.Return.Successes = true
	}
	return sc
}

// NewProducer connects to the configured brokers.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("create kafka producer: no brokers configured")
	}

	p := &Producer{logger: logger, prefix: cfg.TopicPrefix}
	sc := saramaConfig(cfg)

	if cfg.Async {
		async, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		p.async = async
		p.wg.Add(1)
		go p.logErrors()
	} else {
		syncProducer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		p.sync = syncProducer
	}

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("async", cfg.Async),
	)
	return p, nil
}

func (p *Producer) logErrors() {
	defer p.wg.Done()
	for perr := range p.async.Errors() {
		key := ""
		if perr.Msg.Key != nil {
			if raw, err := perr.Msg.Key.Encode(); err == nil {
				key = string(raw)
			}
		}
		p.logger.Error("kafka delivery failed",
			zap.Error(perr.Err),
			zap.String("topic", perr.Msg.Topic),
			zap.String("account_id", key),
		)
	}
}

// Send hands msg to Kafka. Context cancellation aborts a pending enqueue.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	if p.sync != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, _, err := p.sync.SendMessage(msg); err != nil {
			return fmt.Errorf("send %s: %w", msg.Topic, err)
		}
		return nil
	}

	select {
	case p.async.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered messages and releases broker connections.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	if p.sync != nil {
		if err := p.sync.Close(); err != nil {
			return fmt.Errorf("close kafka producer: %w", err)
		}
		return nil
	}

	p.async.AsyncClose()
	p.wg.Wait()
	return nil
}

// TopicName prefixes eventType with the configured topic prefix once.
func (p *Producer) TopicName(eventType string) string {
	if p.prefix == "" {
		return eventType
	}

	prefix := p.prefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}
	return prefix + eventType
}
