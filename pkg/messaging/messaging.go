// Package messaging defines the broker-agnostic contract that every adapter
// in this tree (RabbitMQ, Kafka, NATS, SQS/SNS, Pub/Sub, Service Bus, Redis
// Streams, and the in-memory test double) implements.
//
// Callers depend only on Broker, Producer, and Consumer; the saga engine and
// participant wrapper in pkg/saga never import a concrete adapter package
// directly.
package messaging

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
)

// Message is the unit of transport. Topic is the routing key/topic/queue the
// message was published to or received from. The memory, RabbitMQ, Kafka and
// NATS adapters populate it on receive; Service Bus and SNS fill it from the
// message subject; SQS, Redis Streams and Pub/Sub leave it empty.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Headers   map[string]string
	Timestamp time.Time
	Metadata  MessageMetadata
}

// MessageMetadata carries broker-specific delivery bookkeeping that doesn't
// belong in the portable Message fields above.
type MessageMetadata struct {
	// DeliveryCount is the number of times this message has been delivered,
	// when the broker tracks it (SQS approximate receive count, NATS
	// JetStream redelivery count, ...).
	DeliveryCount int

	// ReceiptHandle identifies this specific delivery for brokers that ack
	// by handle rather than by offset (SQS, SNS, Redis Streams, Pub/Sub).
	ReceiptHandle string

	// Offset is the stream/partition offset for brokers that expose one.
	Offset int64

	// Raw is the adapter-native delivery object, for callers that need
	// broker-specific behavior the portable interface doesn't expose.
	Raw interface{}
}

// MessageHandler processes one delivered message. Returning a non-nil error
// signals the adapter to retry or dead-letter the message according to its
// own policy; the saga engine never inspects this return value directly.
type MessageHandler func(ctx context.Context, msg *Message) error

// Producer publishes messages to the topic it was created for.
type Producer interface {
	Publish(ctx context.Context, msg *Message) error
	PublishBatch(ctx context.Context, msgs []*Message) error
	Close() error
}

// Consumer delivers messages from the topic/group it was created for.
// Consume blocks, dispatching each delivery to handler, until ctx is done or
// the underlying subscription is closed.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

// Broker is the factory every adapter implements: it mints Producers and
// Consumers scoped to a topic (and, for Consumer, a consumer group / queue
// name — the empty string means "exclusive, broker-assigned").
type Broker interface {
	Producer(topic string) (Producer, error)
	Consumer(topic string, group string) (Consumer, error)
	Close() error
	Healthy(ctx context.Context) bool
}

// Error codes specific to messaging failures.
const (
	CodeConnectionFailed = "MESSAGING_CONNECTION_FAILED"
	CodePublishFailed    = "MESSAGING_PUBLISH_FAILED"
	CodeConsumeFailed    = "MESSAGING_CONSUME_FAILED"
	CodeClosed           = "MESSAGING_CLOSED"
	CodeTimeout          = "MESSAGING_TIMEOUT"
	CodeTopicNotFound    = "MESSAGING_TOPIC_NOT_FOUND"
	CodeInvalidConfig    = "MESSAGING_INVALID_CONFIG"
)

// ErrConnectionFailed wraps a transport-level connection error.
func ErrConnectionFailed(err error) *errors.AppError {
	return errors.New(CodeConnectionFailed, "failed to connect to broker", err)
}

// ErrPublishFailed wraps a publish-time failure.
func ErrPublishFailed(err error) *errors.AppError {
	return errors.New(CodePublishFailed, "failed to publish message", err)
}

// ErrConsumeFailed wraps a subscribe/consume-time failure.
func ErrConsumeFailed(err error) *errors.AppError {
	return errors.New(CodeConsumeFailed, "failed to consume messages", err)
}

// ErrClosed is returned by a Broker/Producer/Consumer that has already had
// Close called on it.
func ErrClosed(err error) *errors.AppError {
	return errors.New(CodeClosed, "broker is closed", err)
}

// ErrTimeout wraps a context deadline exceeded/cancellation during op.
func ErrTimeout(op string, err error) *errors.AppError {
	return errors.New(CodeTimeout, "timed out during "+op, err)
}

// ErrTopicNotFound is returned when a named topic/queue/subscription does
// not exist and the adapter can't or won't create it implicitly.
func ErrTopicNotFound(topic string, err error) *errors.AppError {
	return errors.New(CodeTopicNotFound, "topic not found: "+topic, err)
}

// ErrInvalidConfig is returned for adapter configurations that are
// structurally invalid (e.g. SNS consumption requested directly).
func ErrInvalidConfig(msg string, err error) *errors.AppError {
	return errors.New(CodeInvalidConfig, msg, err)
}
