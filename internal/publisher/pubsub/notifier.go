// Package pubsub announces dataset flushes on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/review-scraper/internal/dataset"
)

// Notifier publishes one JSON message per committed flush.
type Notifier struct {
	topic *pubsub.Topic
}

var _ dataset.Notifier = (*Notifier)(nil)

// New creates a Notifier for the provided topic.
func New(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic}
}

// Notify marshals notice to JSON and waits for the server to accept it.
func (n *Notifier) Notify(ctx context.Context, notice dataset.FlushNotice) error {
	if n == nil || n.topic == nil {
		return errors.New("pubsub topic is not configured")
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal flush notice: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id":      notice.RunID,
			"destination": notice.Destination,
			"rows":        strconv.Itoa(notice.Rows),
		},
	}
	if _, err := n.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish flush notice: %w", err)
	}
	return nil
}

// Stop flushes pending publishes and releases the topic's goroutines.
func (n *Notifier) Stop() {
	if n != nil && n.topic != nil {
		n.topic.Stop()
	}
}
