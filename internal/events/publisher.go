// Package events публикует записи журнала заказа во внешние системы после коммита.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderpay/internal/model"
)

// Publisher доставляет уже сохранённые события. Ошибка публикации не отменяет
// изменение состояния: журнал в БД остаётся источником истины.
type Publisher interface {
	Publish(ctx context.Context, events []model.OrderEvent) error
	Close() error
}

// KafkaPublisher публикует события в топик Kafka. Ключом сообщения служит OrderID,
// поэтому события одного заказа попадают в одну партицию по порядку.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaPublisher создаёт синхронного продюсера для указанных брокеров.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer, topic, logger), nil
}

// NewKafkaPublisherWithProducer оборачивает готового продюсера.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish отправляет события одним пакетом.
func (p *KafkaPublisher) Publish(_ context.Context, events []model.OrderEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", e.ID, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(e.OrderID),
			Value: sarama.ByteEncoder(payload),
			Headers: []sarama.RecordHeader{
				{Key: []byte("event-type"), Value: []byte(e.EventType)},
			},
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("send events: %w", err)
	}

	p.logger.Debug("events published",
		zap.String("topic", p.topic),
		zap.String("orderID", events[0].OrderID),
		zap.Int("count", len(events)))
	return nil
}

// Close закрывает продюсера.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher пишет события в лог. Используется, когда Kafka не настроена.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт публикатор, пишущий события в logger.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish пишет каждое событие отдельной записью уровня Info.
func (p *LogPublisher) Publish(_ context.Context, events []model.OrderEvent) error {
	for _, e := range events {
		p.logger.Info("order event",
			zap.Int64("id", e.ID),
			zap.String("orderID", e.OrderID),
			zap.String("type", string(e.EventType)),
			zap.String("sourceID", e.SourceID),
			zap.String("from", e.PreviousStatus),
			zap.String("to", e.CurrentStatus),
			zap.String("actor", string(e.ActorType)))
	}
	return nil
}

// Close ничего не освобождает.
func (p *LogPublisher) Close() error {
	return nil
}
