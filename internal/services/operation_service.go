package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/introspecthq/agentlens-backend/internal/clients/provider"
	"github.com/introspecthq/agentlens-backend/internal/config"
	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/extraction"
	"github.com/introspecthq/agentlens-backend/internal/feedback"
	"github.com/introspecthq/agentlens-backend/internal/generation"
	"github.com/introspecthq/agentlens-backend/internal/operations"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
	"github.com/introspecthq/agentlens-backend/internal/skills"
)

// OperationService plans and launches the background operations. Each
// start request is expanded into generation units up front, so total
// unit counts and progress percentages are exact from the first commit.
type OperationService interface {
	Start(ctx context.Context, kind domain.OperationKind, filters operations.Filters) (*domain.OperationStatus, error)
	Status(ctx context.Context, kind domain.OperationKind) (*domain.OperationStatus, error)
	Cancel(ctx context.Context, kind domain.OperationKind) error
}

type operationService struct {
	cfg          *config.Config
	tracker      *operations.Tracker
	interactions repos.InteractionEventRepo
	profiles     repos.ProfileRepo
	raw          repos.RawFeedbackRepo
	aggregated   repos.AggregatedFeedbackRepo
	trigger      *feedback.Trigger
	synthesizer  *skills.Synthesizer
	provider     provider.Client
	log          *logger.Logger
}

func NewOperationService(
	cfg *config.Config,
	tracker *operations.Tracker,
	interactions repos.InteractionEventRepo,
	profiles repos.ProfileRepo,
	raw repos.RawFeedbackRepo,
	aggregated repos.AggregatedFeedbackRepo,
	trigger *feedback.Trigger,
	synthesizer *skills.Synthesizer,
	providerClient provider.Client,
	baseLog *logger.Logger,
) OperationService {
	return &operationService{
		cfg:          cfg,
		tracker:      tracker,
		interactions: interactions,
		profiles:     profiles,
		raw:          raw,
		aggregated:   aggregated,
		trigger:      trigger,
		synthesizer:  synthesizer,
		provider:     providerClient,
		log:          baseLog.With("service", "OperationService"),
	}
}

func (s *operationService) Start(ctx context.Context, kind domain.OperationKind, filters operations.Filters) (*domain.OperationStatus, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown operation kind %q", domain.ErrInvalidConfiguration, kind)
	}

	var def operations.Definition
	var err error
	switch kind {
	case domain.OpProfileGeneration:
		def, err = s.profileDefinition(ctx, kind, filters, true)
	case domain.OpRerunProfileGeneration:
		def, err = s.profileDefinition(ctx, kind, filters, false)
	case domain.OpRerunFeedbackGeneration:
		def, err = s.feedbackDefinition(ctx, kind, filters)
	case domain.OpFeedbackAggregation:
		def, err = s.aggregationDefinition(ctx, kind, filters)
	case domain.OpSkillSynthesis:
		def, err = s.synthesisDefinition(ctx, kind, filters)
	}
	if err != nil {
		return nil, err
	}
	return s.tracker.Start(ctx, def)
}

func (s *operationService) Status(ctx context.Context, kind domain.OperationKind) (*domain.OperationStatus, error) {
	return s.tracker.Status(ctx, kind)
}

func (s *operationService) Cancel(ctx context.Context, kind domain.OperationKind) error {
	return s.tracker.RequestCancel(ctx, kind)
}

// profileDefinition plans one unit per (owner, extractor, window).
// Incremental runs skip windows already fully covered by an existing
// profile for that owner and extractor; reruns replan everything.
func (s *operationService) profileDefinition(ctx context.Context, kind domain.OperationKind, filters operations.Filters, incremental bool) (operations.Definition, error) {
	dbc := dbctx.Context{Ctx: ctx}
	owners, err := s.interactions.Owners(dbc, filters.OwnerKey, filters.Source)
	if err != nil {
		return operations.Definition{}, fmt.Errorf("list interaction owners: %w", err)
	}

	extractors := s.cfg.Extraction.Extractors
	if len(filters.Extractors) > 0 {
		extractors = filters.Extractors
	}

	var units []generation.Unit
	for _, owner := range owners {
		count, cErr := s.interactions.CountForOwner(dbc, owner, filters.From, filters.To, filters.Source)
		if cErr != nil {
			return operations.Definition{}, fmt.Errorf("count interactions for %s: %w", owner, cErr)
		}
		for _, extractor := range extractors {
			size, stride := s.cfg.WindowFor(extractor)
			windows, pErr := extraction.Plan(int(count), size, stride)
			if pErr != nil {
				return operations.Definition{}, pErr
			}
			if incremental {
				hw, hErr := s.profileHighWater(dbc, owner, extractor)
				if hErr != nil {
					return operations.Definition{}, hErr
				}
				windows = extraction.Due(windows, hw)
			}
			for _, w := range windows {
				units = append(units, generation.Unit{
					Kind:      kind,
					OwnerKey:  owner,
					Extractor: extractor,
					Window:    w,
				})
			}
		}
	}

	return operations.Definition{
		Kind:     kind,
		Units:    units,
		Generate: s.generateProfile,
	}, nil
}

// profileHighWater is the furthest interaction index any existing
// profile for this owner and extractor already covers.
func (s *operationService) profileHighWater(dbc dbctx.Context, owner, extractor string) (int, error) {
	existing, err := s.profiles.List(dbc, owner, nil, 0)
	if err != nil {
		return 0, fmt.Errorf("list profiles for %s: %w", owner, err)
	}
	hw := 0
	for _, p := range existing {
		if p.ExtractorName == extractor && p.RotationStatus != domain.RotationArchived && p.WindowEnd > hw {
			hw = p.WindowEnd
		}
	}
	return hw, nil
}

func (s *operationService) generateProfile(ctx context.Context, unit generation.Unit) (int64, map[string]int64, error) {
	resp, err := s.provider.Extract(ctx, provider.ExtractRequest{
		OwnerKey:    unit.OwnerKey,
		Extractor:   unit.Extractor,
		WindowStart: unit.Window.Start,
		WindowEnd:   unit.Window.End,
	})
	if err != nil {
		return 0, nil, err
	}
	profile := &domain.Profile{
		UserID:                 unit.OwnerKey,
		ExtractorName:          unit.Extractor,
		RotationStatus:         domain.RotationPending,
		Content:                []byte(resp.Content),
		GeneratedFromRequestID: unit.ID(),
		WindowStart:            unit.Window.Start,
		WindowEnd:              unit.Window.End,
		ExpirationUnix:         domain.ExpirationNever,
	}
	if err := s.profiles.Create(dbctx.Context{Ctx: ctx}, []*domain.Profile{profile}); err != nil {
		return 0, resp.Stats, fmt.Errorf("persist profile: %w", err)
	}
	return 1, resp.Stats, nil
}

// feedbackDefinition plans one unit per raw-feedback partition and
// regenerates each partition's feedback as a pending artifact.
func (s *operationService) feedbackDefinition(ctx context.Context, kind domain.OperationKind, filters operations.Filters) (operations.Definition, error) {
	partitions, err := s.raw.Partitions(dbctx.Context{Ctx: ctx})
	if err != nil {
		return operations.Definition{}, fmt.Errorf("list feedback partitions: %w", err)
	}

	var units []generation.Unit
	for _, key := range partitions {
		if filters.OwnerKey != "" && filters.OwnerKey != key {
			continue
		}
		p, pErr := feedback.ParsePartition(key)
		if pErr != nil {
			return operations.Definition{}, pErr
		}
		units = append(units, generation.Unit{
			Kind:      kind,
			OwnerKey:  p.AgentVersion,
			Extractor: p.FeedbackName,
		})
	}

	return operations.Definition{
		Kind:     kind,
		Units:    units,
		Generate: s.generateFeedback,
	}, nil
}

func (s *operationService) generateFeedback(ctx context.Context, unit generation.Unit) (int64, map[string]int64, error) {
	resp, err := s.provider.Extract(ctx, provider.ExtractRequest{
		OwnerKey:    unit.OwnerKey,
		Extractor:   unit.Extractor,
		WindowStart: unit.Window.Start,
		WindowEnd:   unit.Window.End,
	})
	if err != nil {
		return 0, nil, err
	}
	item := &domain.RawFeedback{
		AgentVersion:   unit.OwnerKey,
		FeedbackName:   unit.Extractor,
		RotationStatus: domain.RotationPending,
		Payload:        []byte(resp.Content),
	}
	if err := s.raw.Create(dbctx.Context{Ctx: ctx}, []*domain.RawFeedback{item}); err != nil {
		return 0, resp.Stats, fmt.Errorf("persist raw feedback: %w", err)
	}
	return 1, resp.Stats, nil
}

// aggregationDefinition plans one unit per partition holding raw
// feedback. Partitions below the minimum batch size are skipped inside
// the unit rather than failing it.
func (s *operationService) aggregationDefinition(ctx context.Context, kind domain.OperationKind, filters operations.Filters) (operations.Definition, error) {
	partitions, err := s.raw.Partitions(dbctx.Context{Ctx: ctx})
	if err != nil {
		return operations.Definition{}, fmt.Errorf("list feedback partitions: %w", err)
	}

	var units []generation.Unit
	for _, key := range partitions {
		if filters.OwnerKey != "" && filters.OwnerKey != key {
			continue
		}
		p, pErr := feedback.ParsePartition(key)
		if pErr != nil {
			return operations.Definition{}, pErr
		}
		units = append(units, generation.Unit{
			Kind:      kind,
			OwnerKey:  p.AgentVersion,
			Extractor: p.FeedbackName,
		})
	}

	return operations.Definition{
		Kind:     kind,
		Units:    units,
		Generate: s.aggregatePartition,
	}, nil
}

func (s *operationService) aggregatePartition(ctx context.Context, unit generation.Unit) (int64, map[string]int64, error) {
	p := feedback.Partition{AgentVersion: unit.OwnerKey, FeedbackName: unit.Extractor}
	artifact, err := s.trigger.Aggregate(ctx, p, SummarizeWithProvider(s.provider))
	if err != nil {
		return 0, nil, err
	}
	if artifact == nil {
		return 0, map[string]int64{"partitions_below_threshold": 1}, nil
	}
	return 1, nil, nil
}

// synthesisDefinition plans one unit per partition that has a current
// aggregated summary.
func (s *operationService) synthesisDefinition(ctx context.Context, kind domain.OperationKind, filters operations.Filters) (operations.Definition, error) {
	current := domain.RotationCurrent
	partitions, err := s.aggregated.Partitions(dbctx.Context{Ctx: ctx}, &current)
	if err != nil {
		return operations.Definition{}, fmt.Errorf("list aggregated partitions: %w", err)
	}

	var units []generation.Unit
	for _, key := range partitions {
		if filters.OwnerKey != "" && filters.OwnerKey != key {
			continue
		}
		p, pErr := feedback.ParsePartition(key)
		if pErr != nil {
			return operations.Definition{}, pErr
		}
		units = append(units, generation.Unit{
			Kind:      kind,
			OwnerKey:  p.AgentVersion,
			Extractor: p.FeedbackName,
		})
	}

	return operations.Definition{
		Kind:     kind,
		Units:    units,
		Generate: s.synthesizePartition,
	}, nil
}

func (s *operationService) synthesizePartition(ctx context.Context, unit generation.Unit) (int64, map[string]int64, error) {
	p := feedback.Partition{AgentVersion: unit.OwnerKey, FeedbackName: unit.Extractor}
	current := domain.RotationCurrent
	summaries, err := s.aggregated.List(dbctx.Context{Ctx: ctx}, p.Key(), &current, 1)
	if err != nil {
		return 0, nil, fmt.Errorf("load current summary: %w", err)
	}
	if len(summaries) == 0 {
		return 0, map[string]int64{"partitions_without_summary": 1}, nil
	}
	created, updated, err := s.synthesizer.Synthesize(ctx, summaries[0], s.proposeSkills)
	if err != nil {
		return 0, nil, err
	}
	return created, map[string]int64{"skills_created": created, "skills_updated": updated}, nil
}

func (s *operationService) proposeSkills(ctx context.Context, source *domain.AggregatedFeedback) ([]skills.Proposal, error) {
	resp, err := s.provider.Skills(ctx, provider.SkillsRequest{
		AgentVersion: source.AgentVersion,
		FeedbackName: source.FeedbackName,
		Summary:      json.RawMessage(source.Summary),
	})
	if err != nil {
		return nil, err
	}
	out := make([]skills.Proposal, 0, len(resp.Skills))
	for _, sk := range resp.Skills {
		out = append(out, skills.Proposal{Name: sk.Name, Content: []byte(sk.Content)})
	}
	return out, nil
}
