// Package notify publishes campaign lifecycle events (scheduled, unscheduled,
// sent, rescheduled) so editors and other services can react to them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaignsync/internal/config"
	"github.com/ignite/campaignsync/internal/pkg/logger"
)

// EventType names a lifecycle event. It doubles as the AMQP routing key.
type EventType string

const (
	EventScheduled   EventType = "campaign.scheduled"
	EventUnscheduled EventType = "campaign.unscheduled"
	EventSent        EventType = "campaign.sent"
	EventRescheduled EventType = "campaign.rescheduled"
	EventFailed      EventType = "campaign.failed"
)

// Event is one published notification.
type Event struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	AudienceID string     `json:"audience_id"`
	CampaignID string     `json:"campaign_id,omitempty"`
	Message    string     `json:"message"`
	SendTime   *time.Time `json:"send_time,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewEvent stamps a fresh id and time on an event.
func NewEvent(t EventType, audienceID, message string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		AudienceID: audienceID,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events. Publish failures never roll back the
// operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Log writes events to the structured logger.
type Log struct {
	log *logger.Logger
}

// NewLog returns a Publisher that only logs.
func NewLog() *Log {
	return &Log{log: logger.With("component", "notify")}
}

func (l *Log) Publish(_ context.Context, e Event) error {
	fields := []interface{}{"event", string(e.Type), "audience_id", e.AudienceID, "message", e.Message}
	if e.CampaignID != "" {
		fields = append(fields, "campaign_id", e.CampaignID)
	}
	if e.SendTime != nil {
		fields = append(fields, "send_time", e.SendTime.Format(time.RFC3339))
	}
	l.log.Info("campaign event", fields...)
	return nil
}

func (l *Log) Close() error { return nil }

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

func encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", e.Type, err)
	}
	return body, nil
}

// New builds the publisher named by cfg.Type.
func New(cfg config.NotifyConfig) (Publisher, error) {
	switch cfg.Type {
	case "", "log":
		return NewLog(), nil
	case "none":
		return Nop{}, nil
	case "amqp":
		if cfg.AMQPURL == "" {
			return nil, fmt.Errorf("notify: amqp_url is required for type amqp")
		}
		return DialAMQP(cfg.AMQPURL, cfg.Exchange)
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("notify: redis_url is required for type redis")
		}
		return NewRedisFromURL(cfg.RedisURL, cfg.RedisChannel)
	default:
		return nil, fmt.Errorf("notify: unknown type %q", cfg.Type)
	}
}
