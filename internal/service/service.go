// Package service implements the business rules above the repositories:
// ownership, activity capacity and the multi-item join sagas.
package service

import (
	"context"
	"time"

	"strivesync-backend/internal/events"
	"strivesync-backend/internal/infrastructure/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Publisher events.Publisher
	Metrics   *observability.Collector
	Logger    *zap.Logger
	Now       func() time.Time
	NewID     func() string
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = events.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// publish delivers events after the write has succeeded. Failures are logged
// and never surface to the caller.
func (d Deps) publish(ctx context.Context, logger *zap.Logger, evts ...events.Event) {
	if err := d.Publisher.Publish(ctx, evts...); err != nil {
		types := make([]string, len(evts))
		for i, e := range evts {
			types[i] = e.Type
		}
		logger.Warn("failed to publish events",
			zap.Strings("event_types", types),
			zap.Error(err))
	}
}
