// Package progress caches job progress in Redis and fans updates out over
// pub/sub so readers never have to poll the database.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncobase/jobstream/internal/job/structs"
)

// ErrNoSnapshot is returned when no cached snapshot exists for a job.
var ErrNoSnapshot = errors.New("no progress snapshot")

// Event is a single progress update, published on the update channel and
// mirrored into the per-job hash.
type Event struct {
	JobID    string         `json:"job_id"`
	Owner    string         `json:"owner"`
	Status   structs.Status `json:"status"`
	Progress int            `json:"progress"`
	Error    string         `json:"error,omitempty"`
}

// Publisher writes progress updates to Redis.
type Publisher struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

// NewPublisher creates a progress publisher.
func NewPublisher(client *redis.Client, channel string, ttl time.Duration) *Publisher {
	return &Publisher{client: client, channel: channel, ttl: ttl}
}

func snapshotKey(jobID string) string {
	return "job:" + jobID
}

// Publish caches the event as the job's current snapshot and broadcasts it
// on the update channel. The cache write and the broadcast are independent;
// a pub/sub failure does not invalidate the cache.
func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	key := snapshotKey(event.JobID)
	fields := map[string]any{
		"owner":    event.Owner,
		"status":   string(event.Status),
		"progress": event.Progress,
		"error":    event.Error,
	}

	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache progress: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("broadcast progress: %w", err)
	}
	return nil
}

// Snapshot reads the cached progress of a job. Returns ErrNoSnapshot when
// the cache entry is absent or expired.
func (p *Publisher) Snapshot(ctx context.Context, jobID string) (*structs.ProgressSnapshot, error) {
	fields, err := p.client.HGetAll(ctx, snapshotKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNoSnapshot
	}

	progress, _ := strconv.Atoi(fields["progress"])
	return &structs.ProgressSnapshot{
		JobID:    jobID,
		Status:   structs.Status(fields["status"]),
		Progress: progress,
		Error:    fields["error"],
	}, nil
}

// Subscribe delivers progress events to the returned channel until the
// context is cancelled. Malformed payloads are skipped.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan *Event, error) {
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	events := make(chan *Event, 64)
	go func() {
		defer close(events)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				event, err := DecodeEvent([]byte(msg.Payload))
				if err != nil {
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

// DecodeEvent parses an event payload from the update channel.
func DecodeEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	if event.JobID == "" {
		return nil, errors.New("event missing job_id")
	}
	return &event, nil
}
