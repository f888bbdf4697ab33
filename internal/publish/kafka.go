package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/i474232898/umbrella-rain-service/internal/reading"
)

// KafkaPublisher produces scored events to a topic, keyed by device so a
// device's events stay on one partition in write order.
type KafkaPublisher struct {
	writer *kafkago.Writer
}

// NewKafkaPublisher creates a producer for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: time.Second,
	}
	return &KafkaPublisher{writer: w}
}

// Publish writes ev synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, ev reading.Event) error {
	msg, err := serializeToMessage(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// wireEvent is the published payload. Timestamps are RFC 3339 instants;
// the display shift applied by the query endpoints is not part of it.
type wireEvent struct {
	ID          string  `json:"id"`
	DeviceID    string  `json:"device_id"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	Seq         int64   `json:"seq"`
	Timestamp   string  `json:"timestamp"`
}

func serializeToMessage(ev reading.Event) (kafkago.Message, error) {
	data, err := json.Marshal(wireEvent{
		ID:          ev.ID,
		DeviceID:    ev.DeviceID,
		Temperature: ev.Temperature,
		Humidity:    ev.Humidity,
		Prediction:  ev.Prediction,
		Probability: ev.Probability,
		Seq:         ev.Seq,
		Timestamp:   ev.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize reading event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.DeviceID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "prediction", Value: []byte(strconv.Itoa(ev.Prediction))},
			{Key: "seq", Value: []byte(strconv.FormatInt(ev.Seq, 10))},
		},
	}, nil
}
