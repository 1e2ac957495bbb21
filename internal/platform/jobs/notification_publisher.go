package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/deskhub/api/internal/domain"
)

const (
	defaultPublishAttempts = 4
	defaultInitialInterval = 200 * time.Millisecond
)

// NotificationMessage is the JSON payload consumed by the notification worker.
type NotificationMessage struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// PubSubNotificationPublisher publishes booking notifications to a Pub/Sub topic.
type PubSubNotificationPublisher struct {
	topic       *pubsub.Topic
	marshal     func(any) ([]byte, error)
	maxAttempts uint64
	initial     time.Duration
}

// PublisherOption customises the publisher.
type PublisherOption func(*PubSubNotificationPublisher)

// WithPublishAttempts bounds the number of publish attempts per message.
func WithPublishAttempts(attempts int) PublisherOption {
	return func(p *PubSubNotificationPublisher) {
		if attempts > 0 {
			p.maxAttempts = uint64(attempts)
		}
	}
}

// WithInitialBackoff overrides the first retry delay.
func WithInitialBackoff(d time.Duration) PublisherOption {
	return func(p *PubSubNotificationPublisher) {
		if d > 0 {
			p.initial = d
		}
	}
}

// NewPubSubNotificationPublisher constructs a Pub/Sub backed notification publisher.
func NewPubSubNotificationPublisher(topic *pubsub.Topic, opts ...PublisherOption) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	p := &PubSubNotificationPublisher{
		topic:       topic,
		marshal:     json.Marshal,
		maxAttempts: defaultPublishAttempts,
		initial:     defaultInitialInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Publish sends the notification, retrying transient failures with exponential backoff.
func (p *PubSubNotificationPublisher) Publish(ctx context.Context, notification domain.Notification) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub notification publisher: not initialised")
	}

	data, err := p.marshal(NotificationMessage{
		ID:        notification.ID,
		UserID:    notification.UserID,
		Type:      string(notification.Type),
		Title:     notification.Title,
		Content:   notification.Content,
		Metadata:  notification.Metadata,
		CreatedAt: notification.CreatedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "notificationId", notification.ID)
	setAttr(attrs, "userId", notification.UserID)
	setAttr(attrs, "type", string(notification.Type))
	setAttr(attrs, "bookingId", notification.Metadata["booking_id"])

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.initial
	policy.MaxElapsedTime = 0

	var id string
	operation := func() error {
		result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
		published, err := result.Get(ctx)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		id = published
		return nil
	}
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, p.maxAttempts-1), ctx)
	if err := backoff.Retry(operation, retry); err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return id, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition:
		return false
	default:
		return true
	}
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
