package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/lcampos/redditcurator/internal/models"
)

// KafkaPublisher streams curated records to a topic for consumers that want
// them before the warehouse load lands. Optional; constructed only when a
// broker is configured.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

type curatedMessage struct {
	models.Record
	Sentiment *models.SentimentScore `json:"sentiment,omitempty"`
}

func NewKafkaPublisher(broker, topic string) (*KafkaPublisher, error) {
	slog.Info("[KafkaPublisher] Initializing producer...",
		slog.String("broker", broker),
		slog.String("topic", topic))

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   broker,
		"security.protocol":   "PLAINTEXT",
		"api.version.request": "true",
		"enable.idempotence":  true,
		"acks":                "all",
	})
	if err != nil {
		return nil, fmt.Errorf("[KafkaPublisher] Failed to create producer: %w", err)
	}

	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

func (kp *KafkaPublisher) Close() {
	slog.Info("[KafkaPublisher] Flushing producer before shutdown...")
	if remaining := kp.producer.Flush(5000); remaining > 0 {
		slog.Warn("[KafkaPublisher] Not all messages were delivered before shutdown",
			slog.Int("remaining", remaining))
	}
	kp.producer.Close()
}

// PublishBatch produces one message per curated record, keyed by record ID.
func (kp *KafkaPublisher) PublishBatch(records []models.Record, scores map[string]models.SentimentScore) error {
	for _, record := range records {
		msg := curatedMessage{Record: record}
		if score, ok := scores[record.ID]; ok {
			s := score
			msg.Sentiment = &s
		}

		jsonData, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("[KafkaPublisher] Failed to marshal record %s: %w", record.ID, err)
		}

		err = kp.producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &kp.topic, Partition: kafka.PartitionAny},
			Key:            []byte(record.ID),
			Value:          jsonData,
		}, nil)
		if err != nil {
			return fmt.Errorf("[KafkaPublisher] Failed to produce record %s: %w", record.ID, err)
		}
	}

	slog.Info("[KafkaPublisher] Batch published",
		slog.String("topic", kp.topic),
		slog.Int("records", len(records)))

	return nil
}
