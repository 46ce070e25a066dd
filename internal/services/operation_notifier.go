package services

import (
	"context"

	"github.com/introspecthq/agentlens-backend/internal/clients/redis"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
	"github.com/introspecthq/agentlens-backend/internal/sse"
)

// OperationNotifier pushes status snapshots to local SSE subscribers
// and, when a bus is configured, relays them to other replicas.
type OperationNotifier struct {
	hub *sse.Hub
	bus redis.EventBus
	log *logger.Logger
}

func NewOperationNotifier(hub *sse.Hub, bus redis.EventBus, baseLog *logger.Logger) *OperationNotifier {
	return &OperationNotifier{
		hub: hub,
		bus: bus,
		log: baseLog.With("service", "OperationNotifier"),
	}
}

func (n *OperationNotifier) OperationProgress(ctx context.Context, st *domain.OperationStatus) {
	event := sse.EventOperationProgress
	if st.Status != domain.OperationInProgress {
		event = sse.EventOperationFinished
	}
	n.push(ctx, sse.Message{Channel: sse.ChannelOperations, Event: event, Data: st})
	n.push(ctx, sse.Message{Channel: sse.OperationChannel(string(st.Kind)), Event: event, Data: st})
}

func (n *OperationNotifier) ArtifactsPromoted(ctx context.Context, kind domain.ArtifactKind, data any) {
	n.push(ctx, sse.Message{Channel: "artifacts/" + string(kind), Event: sse.EventArtifactsPromoted, Data: data})
}

func (n *OperationNotifier) ArtifactsRestored(ctx context.Context, kind domain.ArtifactKind, data any) {
	n.push(ctx, sse.Message{Channel: "artifacts/" + string(kind), Event: sse.EventArtifactsRestored, Data: data})
}

func (n *OperationNotifier) SkillStatusChanged(ctx context.Context, skill *domain.Skill) {
	n.push(ctx, sse.Message{Channel: "skills", Event: sse.EventSkillStatusChanged, Data: skill})
}

func (n *OperationNotifier) push(ctx context.Context, msg sse.Message) {
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
	if n.bus != nil {
		if err := n.bus.Publish(ctx, msg); err != nil {
			n.log.Warn("Failed to publish event to bus", "channel", msg.Channel, "error", err)
		}
	}
}
