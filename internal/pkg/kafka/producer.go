package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const DefaultTopic = "caption-events"

// CaptionEvent is the telemetry record of one captioned image. It carries
// metadata only, never image bytes or caption text.
type CaptionEvent struct {
	RequestID  string    `json:"request_id"`
	Style      string    `json:"style"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Confidence float64   `json:"confidence"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Format     string    `json:"format,omitempty"`
	Bytes      int       `json:"bytes"`
	Words      int       `json:"words,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	Batch      bool      `json:"batch"`
	Time       time.Time `json:"time"`
}

type Producer interface {
	Publish(ctx context.Context, event CaptionEvent) error
	Close() error
}

type Config struct {
	Brokers string
	Topic   string
	Enabled bool
}

type kafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer connects to the brokers and ensures the topic exists. When the
// brokers are unreachable or telemetry is disabled it returns a producer
// that only logs.
func NewProducer(cfg Config) Producer {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if !cfg.Enabled || cfg.Brokers == "" {
		logrus.Info("Caption telemetry disabled, using mock producer")
		return &mockProducer{}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		logrus.WithError(err).Warn("Kafka connection failed, using mock producer")
		return &mockProducer{}
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.Topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		logrus.WithError(err).Debug("Could not create topic (might already exist)")
	}

	logrus.WithFields(logrus.Fields{"brokers": cfg.Brokers, "topic": cfg.Topic}).Info("Connected to Kafka")
	return &kafkaProducer{writer: writer, topic: cfg.Topic}
}

// message keys events by request id, so the items of one batch land on
// the same partition.
func message(event CaptionEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.RequestID),
		Value: value,
		Time:  event.Time,
	}, nil
}

func (p *kafkaProducer) Publish(ctx context.Context, event CaptionEvent) error {
	msg, err := message(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logrus.WithError(err).WithField("topic", p.topic).Warn("Failed to write caption event")
		return err
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

// mockProducer is used when Kafka is not available.
type mockProducer struct{}

func (m *mockProducer) Publish(_ context.Context, event CaptionEvent) error {
	logrus.WithFields(logrus.Fields{
		"request_id": event.RequestID,
		"style":      event.Style,
		"success":    event.Success,
		"latency_ms": event.LatencyMS,
	}).Debug("MOCK: caption event")
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}
