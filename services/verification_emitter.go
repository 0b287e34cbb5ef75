package services

import (
	"context"

	"github.com/migoVanDingo/ed-user-management/domain"
	"github.com/migoVanDingo/ed-user-management/internal/metrics"
	"github.com/migoVanDingo/ed-user-management/log"
)

// VerificationEmitter publishes the one-time "user became verified" event to
// the external bus. Delivery is at-least-once and fire-and-forget: publish
// failures are logged and counted, never surfaced to the caller.
type VerificationEmitter struct {
	bus    domain.EventBus
	logger log.Logger
}

func NewVerificationEmitter(bus domain.EventBus, logger log.Logger) *VerificationEmitter {
	return &VerificationEmitter{bus: bus, logger: logger}
}

// EmitIfNewlyVerified publishes exactly when the not-verified -> verified
// transition happened in this request, including verified-at-creation.
func (e *VerificationEmitter) EmitIfNewlyVerified(ctx context.Context, user *domain.User, wasVerifiedBefore, created bool) {
	if !user.IsVerified {
		return
	}
	if !created && wasVerifiedBefore {
		return
	}

	e.logger.Info(ctx, "Emitting user_verified event", map[string]interface{}{
		"user_id":         user.ID,
		"organization_id": user.OrganizationID,
	})

	event := domain.Event{
		Type: domain.EventTypeUserVerified,
		Payload: map[string]any{
			"user_id":         user.ID,
			"organization_id": user.OrganizationID,
			"email":           user.Email,
			"username":        user.Username,
		},
	}
	if err := e.bus.Publish(ctx, domain.ChannelUserChanges, event); err != nil {
		e.logger.Error(ctx, "Failed to publish user_verified event", err, map[string]interface{}{"user_id": user.ID})
		metrics.EventPublishFailures.Inc()
	}
}
