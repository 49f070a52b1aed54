package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Event is a fact emitted after a checkout step completed.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Notifier reacts to emitted events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus fans events out to its notifiers. It keeps nothing itself; delivery is best effort.
type Bus struct {
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit builds the event and hands it to every notifier. Notifier failures are joined into the
// returned error after all notifiers ran.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (Event, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b != nil && b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
		OccurredAt:  now().UTC(),
	}
	if b == nil {
		return ev, nil
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

// LogNotifier writes every event as a structured log line.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", event.Payload).
		Msg("domain_event")
	return nil
}

// RedisStreamNotifier appends events to a Redis stream for downstream consumers such as the
// account service.
type RedisStreamNotifier struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

func (n RedisStreamNotifier) Notify(ctx context.Context, event Event) error {
	if n.Client == nil {
		return errors.New("events: redis client not configured")
	}
	stream := n.Stream
	if stream == "" {
		stream = "checkout:events"
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"id":           event.ID.String(),
			"topic":        event.Topic,
			"aggregate_id": event.AggregateID,
			"payload":      string(event.Payload),
			"occurred_at":  event.OccurredAt.Format(time.RFC3339Nano),
		},
	}
	if n.MaxLen > 0 {
		args.MaxLen = n.MaxLen
		args.Approx = true
	}
	return n.Client.XAdd(ctx, args).Err()
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return validJSON(v)
	case json.RawMessage:
		return validJSON(v)
	case string:
		return validJSON([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) ([]byte, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), data...), nil
}
