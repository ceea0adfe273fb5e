package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/hallpass-app/api/internal/services"
)

// PubSubPassEventPublisher publishes pass lifecycle events to a Pub/Sub topic.
type PubSubPassEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPassEventPublisher constructs a Pub/Sub backed pass event publisher.
func NewPubSubPassEventPublisher(topic *pubsub.Topic) (*PubSubPassEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub pass event publisher: topic is required")
	}
	return &PubSubPassEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishPassEvent enqueues a pass event message on the configured topic.
func (p *PubSubPassEventPublisher) PublishPassEvent(ctx context.Context, message services.PassEventMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub pass event publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal pass event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", message.EventID)
	setAttr(attrs, "eventType", message.Type)
	setAttr(attrs, "passId", message.PassID)
	setAttr(attrs, "scope", message.Scope)
	setAttr(attrs, "studentId", message.StudentID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish pass event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
