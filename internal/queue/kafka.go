package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/sirupsen/logrus"
)

var _ Queue = (*Kafka)(nil)

// ErrProduceOnly is returned when a consumer-side queue is asked to enqueue.
var ErrProduceOnly = errors.New("kafka queue has no producer")

const consumerPollTimeout = 2 * time.Second

// Kafka carries tasks between processes through a topic. The producer side
// serves the node service; the consumer side serves the worker. In-flight
// messages are not inspectable, so FindPending always misses and duplicate
// node-updated notifications collapse at the consumer instead.
type Kafka struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	topic    string
}

// NewKafka opens the producer side used by the node service.
func NewKafka(brokers, topic string) (*Kafka, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return nil, err
	}

	k := &Kafka{producer: producer, topic: topic}

	// Delivery failures are logged, never surfaced: enqueue is best effort.
	go func() {
		for e := range producer.Events() {
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				logrus.Errorf("task delivery failed: %v", m.TopicPartition.Error)
			}
		}
	}()

	return k, nil
}

// NewKafkaConsumer opens the consumer side the worker drains.
func NewKafkaConsumer(brokers, topic, group string) (*Kafka, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          group,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, err
	}
	if err := consumer.Subscribe(topic, nil); err != nil {
		consumer.Close()
		return nil, err
	}

	return &Kafka{consumer: consumer, topic: topic}, nil
}

func (k *Kafka) Enqueue(ctx context.Context, task *Task) error {
	if k.producer == nil {
		return ErrProduceOnly
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(task.NodeID),
		Value:          data,
	}, nil)
}

func (k *Kafka) FindPending(predicate func(*Task) bool) *Task {
	return nil
}

// Dequeue polls the topic briefly and returns nil when no message arrives
// within the window, matching the drain loop's empty-queue contract.
func (k *Kafka) Dequeue(ctx context.Context) (*Task, error) {
	if k.consumer == nil {
		return nil, nil
	}

	msg, err := k.consumer.ReadMessage(consumerPollTimeout)
	if err != nil {
		var kerr kafka.Error
		if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
			return nil, nil
		}
		return nil, err
	}

	var task Task
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (k *Kafka) Close() {
	if k.producer != nil {
		k.producer.Flush(5000)
		k.producer.Close()
	}
	if k.consumer != nil {
		if err := k.consumer.Close(); err != nil {
			logrus.Errorf("failed to close consumer: %v", err)
		}
	}
}
