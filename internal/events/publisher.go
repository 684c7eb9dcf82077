// Package events publishes run progress to a Redis stream so other services
// can react to finished categories.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/listing-harvester/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	EventTypeRunStarted   EventType = "HARVEST_RUN_STARTED"
	EventTypeCategoryDone EventType = "HARVEST_CATEGORY_DONE"
	EventTypeRunFinished  EventType = "HARVEST_RUN_FINISHED"
)

const DefaultStream = "harvest:events"

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	RunID     string          `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type Publisher struct {
	client RedisClient
	stream string
	maxLen int64
	now    func() time.Time
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, maxLen int64, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		now:    time.Now,
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) RunStarted(ctx context.Context, run models.RunInfo) error {
	return p.publish(ctx, EventTypeRunStarted, run.ID, run)
}

func (p *Publisher) CategoryDone(ctx context.Context, rep models.CategoryReport) error {
	return p.publish(ctx, EventTypeCategoryDone, rep.RunID, rep)
}

func (p *Publisher) RunFinished(ctx context.Context, run models.RunInfo) error {
	return p.publish(ctx, EventTypeRunFinished, run.ID, run)
}

func (p *Publisher) publish(ctx context.Context, eventType EventType, runID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	env := Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		RunID:     runID,
		Timestamp: p.now().UTC(),
		Payload:   data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_id":   env.EventID,
			"event_type": string(eventType),
			"run_id":     runID,
			"data":       string(body),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	p.logger.Debug("event published", "type", eventType, "event_id", env.EventID, "stream_id", id)
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
