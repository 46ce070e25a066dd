package skills

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

// Proposal is one skill produced by a synthesis call: a stable name
// within its partition plus the generated content.
type Proposal struct {
	Name    string
	Content []byte
}

// SynthesizeFunc turns a current aggregated-feedback summary into zero
// or more skill proposals. Opaque to the synthesizer, typically a
// provider call.
type SynthesizeFunc func(ctx context.Context, source *domain.AggregatedFeedback) ([]Proposal, error)

// Synthesizer derives skills from aggregated feedback and owns the
// skill state machine. Skills never take part in rotation: new ones are
// created as drafts and existing ones are updated in place regardless
// of their status, so a published skill keeps serving while its content
// refreshes.
type Synthesizer struct {
	skills repos.SkillRepo
	log    *logger.Logger
}

func NewSynthesizer(skills repos.SkillRepo, baseLog *logger.Logger) *Synthesizer {
	return &Synthesizer{skills: skills, log: baseLog.With("component", "SkillSynthesizer")}
}

// Synthesize runs the synthesis function against one summary and
// upserts the proposals by (agent_version, feedback_name, name).
// Returns how many skills were created and how many updated.
func (s *Synthesizer) Synthesize(ctx context.Context, source *domain.AggregatedFeedback, synthesize SynthesizeFunc) (created, updated int64, err error) {
	if synthesize == nil {
		return 0, 0, fmt.Errorf("%w: no synthesis function", domain.ErrInvalidConfiguration)
	}
	proposals, err := synthesize(ctx, source)
	if err != nil {
		return 0, 0, fmt.Errorf("synthesize %s: %w", source.PartitionKey(), err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	for _, p := range proposals {
		if p.Name == "" {
			return created, updated, fmt.Errorf("%w: proposal with empty name", domain.ErrInvalidConfiguration)
		}
		existing, gErr := s.skills.GetByName(dbc, source.AgentVersion, source.FeedbackName, p.Name)
		if gErr != nil && !errors.Is(gErr, domain.ErrNotFound) {
			return created, updated, fmt.Errorf("lookup skill %q: %w", p.Name, gErr)
		}
		if existing == nil {
			skill := &domain.Skill{
				AgentVersion:     source.AgentVersion,
				FeedbackName:     source.FeedbackName,
				Name:             p.Name,
				Status:           domain.SkillDraft,
				Content:          p.Content,
				SourceFeedbackID: &source.ID,
			}
			if cErr := s.skills.Create(dbc, []*domain.Skill{skill}); cErr != nil {
				return created, updated, fmt.Errorf("create skill %q: %w", p.Name, cErr)
			}
			created++
			continue
		}
		if _, uErr := s.skills.UpdateContent(dbc, existing.ID, p.Content, &source.ID); uErr != nil {
			return created, updated, fmt.Errorf("update skill %q: %w", p.Name, uErr)
		}
		updated++
	}
	s.log.Info("Synthesized skills", "partition", source.PartitionKey(), "created", created, "updated", updated)
	return created, updated, nil
}

// Transition moves a skill along its state machine, rejecting anything
// the machine does not allow.
func (s *Synthesizer) Transition(ctx context.Context, id uuid.UUID, next domain.SkillStatus) (*domain.Skill, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown skill status %q", domain.ErrInvalidTransition, next)
	}
	dbc := dbctx.Context{Ctx: ctx}
	skill, err := s.skills.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if !skill.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, skill.Status, next)
	}
	affected, err := s.skills.UpdateStatus(dbc, id, next)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.ErrNotFound
	}
	skill.Status = next
	s.log.Info("Skill status changed", "skillID", id, "status", next)
	return skill, nil
}
