package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/introspecthq/agentlens-backend/internal/clients/provider"
	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/feedback"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

// SummarizeWithProvider adapts the provider's summarize call to the
// aggregation trigger's contract.
func SummarizeWithProvider(p provider.Client) feedback.AggregateFunc {
	return func(ctx context.Context, part feedback.Partition, raws []*domain.RawFeedback) (*domain.AggregatedFeedback, error) {
		items := make([]json.RawMessage, 0, len(raws))
		for _, rf := range raws {
			items = append(items, json.RawMessage(rf.Payload))
		}
		resp, err := p.Summarize(ctx, provider.SummarizeRequest{
			AgentVersion: part.AgentVersion,
			FeedbackName: part.FeedbackName,
			Items:        items,
		})
		if err != nil {
			return nil, err
		}
		return &domain.AggregatedFeedback{
			Summary:      []byte(resp.Summary),
			ClusterCount: resp.ClusterCount,
		}, nil
	}
}

// IngestionService accepts interaction events and raw feedback from
// agent runtimes. Feedback ingestion feeds the aggregation trigger, so
// a partition that crosses its thresholds rolls up inline.
type IngestionService interface {
	RecordInteractions(ctx context.Context, events []*domain.InteractionEvent) error
	RecordFeedback(ctx context.Context, items []*domain.RawFeedback) (aggregated []*domain.AggregatedFeedback, err error)
}

type ingestionService struct {
	interactions repos.InteractionEventRepo
	raw          repos.RawFeedbackRepo
	trigger      *feedback.Trigger
	summarize    feedback.AggregateFunc
	log          *logger.Logger
}

func NewIngestionService(
	interactions repos.InteractionEventRepo,
	raw repos.RawFeedbackRepo,
	trigger *feedback.Trigger,
	summarize feedback.AggregateFunc,
	baseLog *logger.Logger,
) IngestionService {
	return &ingestionService{
		interactions: interactions,
		raw:          raw,
		trigger:      trigger,
		summarize:    summarize,
		log:          baseLog.With("service", "IngestionService"),
	}
}

func (s *ingestionService) RecordInteractions(ctx context.Context, events []*domain.InteractionEvent) error {
	for _, e := range events {
		if e.OwnerKey == "" {
			return fmt.Errorf("%w: interaction event missing owner_key", domain.ErrInvalidConfiguration)
		}
	}
	return s.interactions.Create(dbctx.Context{Ctx: ctx}, events)
}

func (s *ingestionService) RecordFeedback(ctx context.Context, items []*domain.RawFeedback) ([]*domain.AggregatedFeedback, error) {
	for _, f := range items {
		if f.AgentVersion == "" || f.FeedbackName == "" {
			return nil, fmt.Errorf("%w: feedback missing agent_version or feedback_name", domain.ErrInvalidConfiguration)
		}
	}
	if err := s.raw.Create(dbctx.Context{Ctx: ctx}, items); err != nil {
		return nil, err
	}

	var produced []*domain.AggregatedFeedback
	seen := map[string]bool{}
	for _, f := range items {
		p := feedback.Partition{AgentVersion: f.AgentVersion, FeedbackName: f.FeedbackName}
		artifact, err := s.trigger.Observe(ctx, p, s.summarize)
		if err != nil {
			// The feedback itself is stored; a roll-up failure is logged and
			// retried on the next observation.
			s.log.Warn("Inline aggregation failed", "partition", p.Key(), "error", err)
			continue
		}
		if artifact != nil && !seen[p.Key()] {
			produced = append(produced, artifact)
			seen[p.Key()] = true
		}
	}
	return produced, nil
}
