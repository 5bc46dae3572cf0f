package realtime

import (
	"context"

	"github.com/ncobase/jobstream/internal/progress"
	"github.com/ncobase/jobstream/pkg/logger"
)

// Subscriber bridges the Redis update channel into the hub.
type Subscriber struct {
	source *progress.Publisher
	hub    *Hub
}

// NewSubscriber creates a subscriber feeding the hub.
func NewSubscriber(source *progress.Publisher, hub *Hub) *Subscriber {
	return &Subscriber{source: source, hub: hub}
}

// Run forwards progress events from Redis to the hub until the context is
// cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	events, err := s.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	logger.StdLogger().Info(ctx, "realtime subscriber started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.hub.Broadcast(event)
		}
	}
}
