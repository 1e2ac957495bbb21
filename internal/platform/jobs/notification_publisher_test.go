package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/deskhub/api/internal/domain"
)

func newTestTopic(t *testing.T, opts ...pstest.ServerReactorOption) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer(opts...)
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "deskhub-test",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "booking-notifications")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubNotificationPublisherPublishesMessage(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, err := NewPubSubNotificationPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotificationPublisher: %v", err)
	}

	notification := domain.Notification{
		ID:        "ntf_01",
		UserID:    "coworker-1",
		Type:      domain.NotificationBooking,
		Title:     "Richiesta di prenotazione scaduta",
		Content:   "La tua richiesta è scaduta",
		Metadata:  map[string]string{"booking_id": "bk-1", "reason": "approval_expired"},
		CreatedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
	if _, err := publisher.Publish(context.Background(), notification); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload NotificationMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.UserID != "coworker-1" || payload.Metadata["reason"] != "approval_expired" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["bookingId"]; attr != "bk-1" {
		t.Fatalf("expected bookingId attribute, got %q", attr)
	}
}

func TestPubSubNotificationPublisherRetriesTransientErrors(t *testing.T) {
	reactor := &flakyReactor{failures: 2}
	_, topic := newTestTopic(t, pstest.ServerReactorOption{FuncName: "Publish", Reactor: reactor})

	publisher, err := NewPubSubNotificationPublisher(topic, WithInitialBackoff(time.Millisecond))
	if err != nil {
		t.Fatalf("NewPubSubNotificationPublisher: %v", err)
	}
	if _, err := publisher.Publish(context.Background(), domain.Notification{ID: "ntf_02", UserID: "u"}); err != nil {
		t.Fatalf("expected publish to succeed after retries, got %v", err)
	}
	if reactor.calls < 3 {
		t.Fatalf("expected at least 3 publish attempts, got %d", reactor.calls)
	}
}

func TestRetryable(t *testing.T) {
	if retryable(status.Error(codes.PermissionDenied, "no")) {
		t.Fatal("permission denied must not be retried")
	}
	if !retryable(status.Error(codes.Unavailable, "down")) {
		t.Fatal("unavailable must be retried")
	}
	if retryable(context.Canceled) {
		t.Fatal("cancellation must not be retried")
	}
}

type flakyReactor struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyReactor) React(_ interface{}) (bool, interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return true, nil, status.Error(codes.Unavailable, "temporarily unavailable")
	}
	return false, nil, nil
}
