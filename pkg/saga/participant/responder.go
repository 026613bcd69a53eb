package participant

import (
	"context"

	"github.com/chris-alexander-pop/system-design-library/pkg/concurrency"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
)

// BrokerResponder implements Responder over a messaging.Broker, lazily
// creating and caching one Producer per reply topic -- a participant
// replies to many distinct success/failure topics (one pair per command
// it handles) but shouldn't reconnect for each.
type BrokerResponder struct {
	broker    messaging.Broker
	mu        *concurrency.SmartMutex
	producers map[string]messaging.Producer
}

func NewBrokerResponder(broker messaging.Broker) *BrokerResponder {
	return &BrokerResponder{
		broker:    broker,
		mu:        concurrency.NewSmartMutex(concurrency.MutexConfig{Name: "SagaBrokerResponder"}),
		producers: make(map[string]messaging.Producer),
	}
}

func (r *BrokerResponder) Publish(ctx context.Context, msg *messaging.Message) error {
	producer, err := r.producerFor(msg.Topic)
	if err != nil {
		return err
	}
	return producer.Publish(ctx, msg)
}

func (r *BrokerResponder) producerFor(topic string) (messaging.Producer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.producers[topic]; ok {
		return p, nil
	}
	p, err := r.broker.Producer(topic)
	if err != nil {
		return nil, err
	}
	r.producers[topic] = p
	return p, nil
}

// Close releases every cached producer.
func (r *BrokerResponder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, p := range r.producers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
