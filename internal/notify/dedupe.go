// Package notify guards the notification dispatcher so each qualifying
// transition is delivered at most once, even when the same write is replayed.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"quorum/api/internal/engine"
	"quorum/api/internal/store"
)

// Deduper wraps a Dispatcher and suppresses repeat dispatches of the same
// event using Redis SETNX claims. Redis failures fail open: a duplicate mail
// beats a silently dropped one.
type Deduper struct {
	next   engine.Dispatcher
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDeduper creates a guard from a Redis URL.
func NewDeduper(next engine.Dispatcher, redisURL string, ttl time.Duration) (*Deduper, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewDeduperWithClient(next, client, ttl), nil
}

// NewDeduperWithClient creates a guard from an existing Redis client.
func NewDeduperWithClient(next engine.Dispatcher, client *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Deduper{next: next, client: client, prefix: "notify:", ttl: ttl}
}

func (d *Deduper) Close() error {
	return d.client.Close()
}

// claim returns true when this dispatch is the first for the key.
func (d *Deduper) claim(ctx context.Context, key string) bool {
	ok, err := d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		log.Printf("notify: claim %s: %v", key, err)
		return true
	}
	return ok
}

func (d *Deduper) CollaboratorAdded(ctx context.Context, event store.TrainingEvent, userID int64) error {
	if !d.claim(ctx, fmt.Sprintf("collaborator-added:%d:%d", event.ID, userID)) {
		return nil
	}
	return d.next.CollaboratorAdded(ctx, event, userID)
}

func (d *Deduper) PocAdded(ctx context.Context, event store.TrainingEvent, userID int64) error {
	if !d.claim(ctx, fmt.Sprintf("poc-added:%d:%d", event.ID, userID)) {
		return nil
	}
	return d.next.PocAdded(ctx, event, userID)
}

func (d *Deduper) SessionCreated(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	if !d.claim(ctx, fmt.Sprintf("session-created:%d:%d", event.ID, session.ID)) {
		return nil
	}
	return d.next.SessionCreated(ctx, event, session)
}

func (d *Deduper) SessionCompleted(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	if !d.claim(ctx, fmt.Sprintf("session-completed:%d:%d", event.ID, session.ID)) {
		return nil
	}
	return d.next.SessionCompleted(ctx, event, session)
}

func (d *Deduper) SessionPocComplete(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	if !d.claim(ctx, fmt.Sprintf("session-poc-complete:%d:%d", event.ID, session.ID)) {
		return nil
	}
	return d.next.SessionPocComplete(ctx, event, session)
}

func (d *Deduper) EventCompleted(ctx context.Context, event store.TrainingEvent) error {
	if !d.claim(ctx, fmt.Sprintf("event-completed:%d", event.ID)) {
		return nil
	}
	return d.next.EventCompleted(ctx, event)
}

func (d *Deduper) PocSignOff(ctx context.Context, event store.TrainingEvent) error {
	if !d.claim(ctx, fmt.Sprintf("poc-sign-off:%d", event.ID)) {
		return nil
	}
	return d.next.PocSignOff(ctx, event)
}
