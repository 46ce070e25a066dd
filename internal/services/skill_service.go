package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
	"github.com/introspecthq/agentlens-backend/internal/skills"
)

type SkillService interface {
	List(ctx context.Context, ownerKey string, status *domain.SkillStatus, limit int) ([]*domain.Skill, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Skill, error)
	Transition(ctx context.Context, id uuid.UUID, next domain.SkillStatus) (*domain.Skill, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type skillService struct {
	skills      repos.SkillRepo
	synthesizer *skills.Synthesizer
	notifier    *OperationNotifier
	log         *logger.Logger
}

func NewSkillService(skillRepo repos.SkillRepo, synthesizer *skills.Synthesizer, notifier *OperationNotifier, baseLog *logger.Logger) SkillService {
	return &skillService{
		skills:      skillRepo,
		synthesizer: synthesizer,
		notifier:    notifier,
		log:         baseLog.With("service", "SkillService"),
	}
}

func (s *skillService) List(ctx context.Context, ownerKey string, status *domain.SkillStatus, limit int) ([]*domain.Skill, error) {
	return s.skills.List(dbctx.Context{Ctx: ctx}, ownerKey, status, limit)
}

func (s *skillService) Get(ctx context.Context, id uuid.UUID) (*domain.Skill, error) {
	return s.skills.GetByID(dbctx.Context{Ctx: ctx}, id)
}

func (s *skillService) Transition(ctx context.Context, id uuid.UUID, next domain.SkillStatus) (*domain.Skill, error) {
	skill, err := s.synthesizer.Transition(ctx, id, next)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.SkillStatusChanged(ctx, skill)
	}
	return skill, nil
}

func (s *skillService) Delete(ctx context.Context, id uuid.UUID) error {
	affected, err := s.skills.DeleteByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
