package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

var Kafka *KafkaService

// KafkaService mirrors engine events to the rest of the platform
// (royalty bookkeeping, dashboards) over Kafka topics.
type KafkaService struct {
	writer *kafka.Writer
}

func NewKafkaService() error {
	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")

	Kafka = &KafkaService{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}

	return nil
}

func (k *KafkaService) Publish(topic string, key, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
	})
}

func (k *KafkaService) Close() error {
	return k.writer.Close()
}
