package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rustyeddy/tradedesk/market"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer reads JSON ticks from a topic:
//
//	{"symbol":"AAPL","price":190.12,"volume":300,"timestamp":"2024-05-06T14:30:00Z"}
type KafkaConsumer struct {
	reader MessageReader
	log    *zap.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, log *zap.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        250 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})
	return NewKafkaConsumerWithReader(reader, log)
}

func NewKafkaConsumerWithReader(r MessageReader, log *zap.Logger) *KafkaConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaConsumer{reader: r, log: log.Named("feed.kafka")}
}

// Run delivers ticks until ctx is cancelled. Undecodable messages and
// handler errors are logged and skipped.
func (c *KafkaConsumer) Run(ctx context.Context, h Handler) error {
	c.log.Info("kafka tick consumer started")
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read tick: %w", err)
		}

		t, err := DecodeTick(msg)
		if err != nil {
			c.log.Warn("bad tick message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		if err := h.OnTick(ctx, t); err != nil {
			c.log.Warn("tick rejected", zap.String("symbol", t.Symbol), zap.Error(err))
		}
	}
}

// DecodeTick parses a message value. A missing timestamp falls back to the
// message time; a missing symbol falls back to the message key.
func DecodeTick(msg kafka.Message) (market.Tick, error) {
	var t market.Tick
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		return market.Tick{}, fmt.Errorf("unmarshal tick: %w", err)
	}
	if t.Symbol == "" {
		t.Symbol = string(msg.Key)
	}
	t.Symbol = market.NormalizeSymbol(t.Symbol)
	if err := market.ValidateSymbol(t.Symbol); err != nil {
		return market.Tick{}, err
	}
	if t.Price <= 0 {
		return market.Tick{}, fmt.Errorf("tick %s: price %.4f must be positive", t.Symbol, t.Price)
	}
	if t.Time.IsZero() {
		t.Time = msg.Time
	}
	return t, nil
}
