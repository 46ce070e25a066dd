package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/lifecycle"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

// ArtifactService is the read/delete surface over the three rotatable
// artifact families plus the bulk promote and restore entry points.
type ArtifactService interface {
	List(ctx context.Context, kind domain.ArtifactKind, ownerKey string, status *domain.RotationStatus, limit int) (any, error)
	Delete(ctx context.Context, kind domain.ArtifactKind, id uuid.UUID) error
	SetStatus(ctx context.Context, kind domain.ArtifactKind, id uuid.UUID, status domain.RotationStatus) error
	PromoteAll(ctx context.Context, kind domain.ArtifactKind, scope lifecycle.Scope) (lifecycle.PromoteResult, error)
	RestoreAll(ctx context.Context, kind domain.ArtifactKind, scope lifecycle.Scope) (lifecycle.RestoreResult, error)
}

type artifactService struct {
	rotator    *lifecycle.Rotator
	profiles   repos.ProfileRepo
	raw        repos.RawFeedbackRepo
	aggregated repos.AggregatedFeedbackRepo
	notifier   *OperationNotifier
	log        *logger.Logger
}

func NewArtifactService(
	rotator *lifecycle.Rotator,
	profiles repos.ProfileRepo,
	raw repos.RawFeedbackRepo,
	aggregated repos.AggregatedFeedbackRepo,
	notifier *OperationNotifier,
	baseLog *logger.Logger,
) ArtifactService {
	return &artifactService{
		rotator:    rotator,
		profiles:   profiles,
		raw:        raw,
		aggregated: aggregated,
		notifier:   notifier,
		log:        baseLog.With("service", "ArtifactService"),
	}
}

func (s *artifactService) List(ctx context.Context, kind domain.ArtifactKind, ownerKey string, status *domain.RotationStatus, limit int) (any, error) {
	dbc := dbctx.Context{Ctx: ctx}
	switch kind {
	case domain.ArtifactProfile:
		return s.profiles.List(dbc, ownerKey, status, limit)
	case domain.ArtifactRawFeedback:
		return s.raw.List(dbc, ownerKey, status, limit)
	case domain.ArtifactAggregatedFeedback:
		return s.aggregated.List(dbc, ownerKey, status, limit)
	}
	return nil, fmt.Errorf("%w: kind %q has no artifact listing", domain.ErrInvalidConfiguration, kind)
}

func (s *artifactService) Delete(ctx context.Context, kind domain.ArtifactKind, id uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	var (
		affected int64
		err      error
	)
	switch kind {
	case domain.ArtifactProfile:
		affected, err = s.profiles.DeleteByID(dbc, id)
	case domain.ArtifactRawFeedback:
		affected, err = s.raw.DeleteByID(dbc, id)
	case domain.ArtifactAggregatedFeedback:
		affected, err = s.aggregated.DeleteByID(dbc, id)
	default:
		return fmt.Errorf("%w: kind %q has no artifact deletion", domain.ErrInvalidConfiguration, kind)
	}
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *artifactService) SetStatus(ctx context.Context, kind domain.ArtifactKind, id uuid.UUID, status domain.RotationStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown rotation status %q", domain.ErrInvalidConfiguration, status)
	}
	dbc := dbctx.Context{Ctx: ctx}
	var (
		affected int64
		err      error
	)
	switch kind {
	case domain.ArtifactProfile:
		affected, err = s.profiles.SetStatus(dbc, id, status)
	case domain.ArtifactRawFeedback:
		affected, err = s.raw.SetStatus(dbc, id, status)
	case domain.ArtifactAggregatedFeedback:
		affected, err = s.aggregated.SetStatus(dbc, id, status)
	default:
		return fmt.Errorf("%w: kind %q does not rotate", domain.ErrInvalidConfiguration, kind)
	}
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *artifactService) PromoteAll(ctx context.Context, kind domain.ArtifactKind, scope lifecycle.Scope) (lifecycle.PromoteResult, error) {
	store, err := s.rotationStore(kind)
	if err != nil {
		return lifecycle.PromoteResult{}, err
	}
	result, err := s.rotator.PromoteAll(ctx, store, scope)
	if err != nil {
		return lifecycle.PromoteResult{}, err
	}
	if s.notifier != nil {
		s.notifier.ArtifactsPromoted(ctx, kind, result)
	}
	return result, nil
}

func (s *artifactService) RestoreAll(ctx context.Context, kind domain.ArtifactKind, scope lifecycle.Scope) (lifecycle.RestoreResult, error) {
	store, err := s.rotationStore(kind)
	if err != nil {
		return lifecycle.RestoreResult{}, err
	}
	result, err := s.rotator.RestoreAll(ctx, store, scope)
	if err != nil {
		return lifecycle.RestoreResult{}, err
	}
	if s.notifier != nil {
		s.notifier.ArtifactsRestored(ctx, kind, result)
	}
	return result, nil
}

func (s *artifactService) rotationStore(kind domain.ArtifactKind) (lifecycle.RotationStore, error) {
	if !kind.Rotatable() {
		return nil, fmt.Errorf("%w: kind %q does not rotate", domain.ErrInvalidConfiguration, kind)
	}
	switch kind {
	case domain.ArtifactProfile:
		return s.profiles, nil
	case domain.ArtifactRawFeedback:
		return s.raw, nil
	case domain.ArtifactAggregatedFeedback:
		return s.aggregated, nil
	}
	return nil, fmt.Errorf("%w: kind %q does not rotate", domain.ErrInvalidConfiguration, kind)
}
