package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, asyncProducer sarama.AsyncProducer) *EventPublisher {
	t.Helper()
	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "prod"}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = producer.Close() })

	return NewEventPublisher(producer, config.AppSettings{Name: "abac-auth-service", Env: "test"}, zaptest.NewLogger(t))
}

func TestPublishPolicyChanged(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	changedAt := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	event := domain.PolicyChangedEvent{
		EventID:   "event-123",
		Kind:      domain.PolicyCreated,
		PolicyID:  "policy-1",
		ActorID:   "u-admin",
		Origin:    "instance-a",
		ChangedAt: changedAt,
	}

	if err := publisher.PublishPolicyChanged(context.Background(), event); err != nil {
		t.Fatalf("PublishPolicyChanged returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "prod.abac.policy.changed" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "policy-1" {
			t.Fatalf("unexpected key: %s", key)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		if got := envelope["event_type"]; got != PolicyChangedEventType {
			t.Fatalf("unexpected event_type: %v", got)
		}
		if got := envelope["event_id"]; got != "event-123" {
			t.Fatalf("unexpected event_id: %v", got)
		}
		if got := envelope["timestamp"]; got != changedAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %v", got)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}
		if payload["kind"] != string(domain.PolicyCreated) || payload["origin"] != "instance-a" {
			t.Fatalf("unexpected payload: %v", payload)
		}

		metadata, ok := envelope["metadata"].(map[string]any)
		if !ok || metadata["service"] != "abac-auth-service" || metadata["environment"] != "test" {
			t.Fatalf("unexpected metadata: %v", envelope["metadata"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishPolicyChanged_ContextCancelled(t *testing.T) {
	asyncProducer := &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage),
		errors: make(chan *sarama.ProducerError, 1),
	}
	publisher := newTestPublisher(t, asyncProducer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishPolicyChanged(ctx, domain.PolicyChangedEvent{Kind: domain.PolicyDeleted})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopicName(t *testing.T) {
	cases := []struct {
		prefix, eventType, want string
	}{
		{"", "abac.policy.changed", "abac.policy.changed"},
		{"prod", "abac.policy.changed", "prod.abac.policy.changed"},
		{"prod", "prod.abac.policy.changed", "prod.abac.policy.changed"},
	}
	for _, tc := range cases {
		if got := topicName(tc.prefix, tc.eventType); got != tc.want {
			t.Fatalf("topicName(%q, %q) = %q, want %q", tc.prefix, tc.eventType, got, tc.want)
		}
	}
}
