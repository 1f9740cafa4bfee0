package dropcopy

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// Publisher drains mirrored responses from the order server's
// drop-copy queue and produces them to Kafka, keyed by client id so
// one client's events stay ordered on a partition.
type Publisher struct {
	client *kgo.Client
	logger *zap.Logger
	topic  string

	responses *common.Consumer[wire.ClientResponse]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	produceCount atomic.Int64
	errorCount   atomic.Int64
}

// NewPublisher connects a Kafka producer for the drop-copy topic.
func NewPublisher(brokers []string, topic string, responses *common.Consumer[wire.ClientResponse], logger *zap.Logger) (*Publisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		client:    client,
		logger:    logger,
		topic:     topic,
		responses: responses,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	logger.Info("drop-copy publisher initialized",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
	)
	return p, nil
}

// Start launches the drain loop. Drop-copy is best effort; produce
// failures are counted and logged, never retried on the hot path.
func (p *Publisher) Start() {
	go p.run()
	go p.logStats()
}

// Close stops the drain loop and the Kafka client.
func (p *Publisher) Close() {
	p.cancel()
	<-p.done
	p.client.Close()
	p.logger.Info("drop-copy publisher closed",
		zap.Int64("produced", p.produceCount.Load()),
		zap.Int64("errors", p.errorCount.Load()),
	)
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		resp := p.responses.Peek()
		if resp == nil {
			time.Sleep(time.Millisecond)
			continue
		}

		event := NewEvent(*resp, common.NowNanos())
		p.responses.CommitRead()

		if err := p.produce(event); err != nil {
			p.errorCount.Add(1)
			p.logger.Error("drop-copy produce failed",
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			continue
		}
		p.produceCount.Add(1)
	}
}

func (p *Publisher) produce(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatUint(uint64(event.ClientID), 10)),
		Value: data,
	}

	produceCtx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(produceCtx, record)
	if result.FirstErr() != nil {
		return fmt.Errorf("producing event: %w", result.FirstErr())
	}
	return nil
}

func (p *Publisher) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.logger.Info("drop-copy publisher stats",
				zap.Int64("produced", p.produceCount.Load()),
				zap.Int64("errors", p.errorCount.Load()),
			)
		}
	}
}
