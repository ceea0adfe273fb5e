package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hallpass-app/api/internal/services"
)

func TestPubSubPassEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "pass-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubPassEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPassEventPublisher: %v", err)
	}

	occurredAt := time.Date(2026, 2, 3, 10, 15, 0, 0, time.UTC)
	msg := services.PassEventMessage{
		EventID:     "evt_test",
		Type:        services.PassEventCreated,
		PassID:      "pass-1",
		Scope:       "Library",
		StudentID:   "stu-42",
		StudentName: "Jane Smith",
		Destination: "Nurse",
		OccurredAt:  occurredAt,
	}

	if _, err := publisher.PublishPassEvent(ctx, msg); err != nil {
		t.Fatalf("PublishPassEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.PassEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.PassID != msg.PassID || payload.Type != msg.Type {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["eventType"]; attr != services.PassEventCreated {
		t.Fatalf("expected event type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["scope"]; attr != "Library" {
		t.Fatalf("expected scope attribute, got %q", attr)
	}
}

func TestNewPubSubPassEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPassEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
