package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes alerts as JSON, keyed by symbol.
type KafkaSink struct {
	writer MessageWriter
	log    *zap.Logger
}

// NewKafkaSink creates an asynchronous producer for topic.
func NewKafkaSink(brokers []string, topic string, log *zap.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
	return NewKafkaSinkWithWriter(writer, log)
}

func NewKafkaSinkWithWriter(w MessageWriter, log *zap.Logger) *KafkaSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaSink{writer: w, log: log}
}

func (s *KafkaSink) Notify(ctx context.Context, a Alert) {
	data, err := json.Marshal(a)
	if err != nil {
		s.log.Error("marshal alert", zap.Error(err))
		return
	}

	key := a.Symbol
	if key == "" {
		key = string(a.Severity)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  a.Time,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.log.Warn("publish alert to kafka", zap.Error(err))
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
