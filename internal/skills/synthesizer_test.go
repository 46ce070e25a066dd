package skills

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

func newSynthesizer(t *testing.T) (*Synthesizer, repos.SkillRepo) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Skill{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := repos.NewSkillRepo(db, log)
	return NewSynthesizer(store, log), store
}

func testSource() *domain.AggregatedFeedback {
	return &domain.AggregatedFeedback{
		ID:           uuid.New(),
		AgentVersion: "v1",
		FeedbackName: "tone",
		Summary:      []byte(`{"themes":["terse"]}`),
	}
}

func TestSynthesizeCreatesDrafts(t *testing.T) {
	syn, store := newSynthesizer(t)
	source := testSource()

	created, updated, err := syn.Synthesize(context.Background(), source, func(ctx context.Context, src *domain.AggregatedFeedback) ([]Proposal, error) {
		return []Proposal{
			{Name: "soften-tone", Content: []byte(`{"rule":"a"}`)},
			{Name: "ack-first", Content: []byte(`{"rule":"b"}`)},
		}, nil
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if created != 2 || updated != 0 {
		t.Fatalf("counts: want=(2,0) got=(%d,%d)", created, updated)
	}

	skill, err := store.GetByName(dbctx.Context{Ctx: context.Background()}, "v1", "tone", "soften-tone")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if skill.Status != domain.SkillDraft {
		t.Fatalf("new skill status: want=draft got=%q", skill.Status)
	}
	if skill.SourceFeedbackID == nil || *skill.SourceFeedbackID != source.ID {
		t.Fatalf("source link: want=%s got=%v", source.ID, skill.SourceFeedbackID)
	}
}

func TestSynthesizeUpdatesInPlace(t *testing.T) {
	syn, store := newSynthesizer(t)
	source := testSource()
	dbc := dbctx.Context{Ctx: context.Background()}

	existing := &domain.Skill{
		AgentVersion: "v1",
		FeedbackName: "tone",
		Name:         "soften-tone",
		Status:       domain.SkillPublished,
		Content:      []byte(`{"rule":"old"}`),
	}
	if err := store.Create(dbc, []*domain.Skill{existing}); err != nil {
		t.Fatalf("seed skill: %v", err)
	}

	created, updated, err := syn.Synthesize(context.Background(), source, func(ctx context.Context, src *domain.AggregatedFeedback) ([]Proposal, error) {
		return []Proposal{{Name: "soften-tone", Content: []byte(`{"rule":"new"}`)}}, nil
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if created != 0 || updated != 1 {
		t.Fatalf("counts: want=(0,1) got=(%d,%d)", created, updated)
	}

	got, err := store.GetByID(dbc, existing.ID)
	if err != nil {
		t.Fatalf("reload skill: %v", err)
	}
	// A refresh replaces content but never touches the state machine.
	if got.Status != domain.SkillPublished {
		t.Fatalf("status after refresh: want=published got=%q", got.Status)
	}
	if string(got.Content) != `{"rule":"new"}` {
		t.Fatalf("content after refresh: got=%s", got.Content)
	}
	if got.SourceFeedbackID == nil || *got.SourceFeedbackID != source.ID {
		t.Fatalf("source link after refresh: got=%v", got.SourceFeedbackID)
	}
}

func TestSynthesizeRejectsEmptyName(t *testing.T) {
	syn, _ := newSynthesizer(t)
	_, _, err := syn.Synthesize(context.Background(), testSource(), func(ctx context.Context, src *domain.AggregatedFeedback) ([]Proposal, error) {
		return []Proposal{{Name: "", Content: []byte(`{}`)}}, nil
	})
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("want ErrInvalidConfiguration, got %v", err)
	}
}

func TestSynthesizePropagatesProviderError(t *testing.T) {
	syn, _ := newSynthesizer(t)
	boom := errors.New("provider down")
	_, _, err := syn.Synthesize(context.Background(), testSource(), func(ctx context.Context, src *domain.AggregatedFeedback) ([]Proposal, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want provider error, got %v", err)
	}
}

func TestTransitionStateMachine(t *testing.T) {
	syn, store := newSynthesizer(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	ctx := context.Background()

	seed := func(status domain.SkillStatus) uuid.UUID {
		s := &domain.Skill{
			AgentVersion: "v1",
			FeedbackName: "tone",
			Name:         "skill-" + string(status) + uuid.NewString()[:8],
			Status:       status,
			Content:      []byte(`{}`),
		}
		if err := store.Create(dbc, []*domain.Skill{s}); err != nil {
			t.Fatalf("seed %s skill: %v", status, err)
		}
		return s.ID
	}

	// draft -> published
	id := seed(domain.SkillDraft)
	got, err := syn.Transition(ctx, id, domain.SkillPublished)
	if err != nil {
		t.Fatalf("draft->published: %v", err)
	}
	if got.Status != domain.SkillPublished {
		t.Fatalf("status: want=published got=%q", got.Status)
	}

	// published -> deprecated
	if _, err := syn.Transition(ctx, id, domain.SkillDeprecated); err != nil {
		t.Fatalf("published->deprecated: %v", err)
	}

	// draft -> deprecated skips publishing.
	id = seed(domain.SkillDraft)
	if _, err := syn.Transition(ctx, id, domain.SkillDeprecated); err != nil {
		t.Fatalf("draft->deprecated: %v", err)
	}

	// Nothing leaves deprecated.
	if _, err := syn.Transition(ctx, id, domain.SkillDraft); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("deprecated->draft: want ErrInvalidTransition got %v", err)
	}
	if _, err := syn.Transition(ctx, id, domain.SkillPublished); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("deprecated->published: want ErrInvalidTransition got %v", err)
	}

	// published -> draft is never legal.
	id = seed(domain.SkillPublished)
	if _, err := syn.Transition(ctx, id, domain.SkillDraft); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("published->draft: want ErrInvalidTransition got %v", err)
	}

	// Unknown target status.
	if _, err := syn.Transition(ctx, id, domain.SkillStatus("retired")); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("unknown status: want ErrInvalidTransition got %v", err)
	}
}

func TestTransitionMissingSkill(t *testing.T) {
	syn, _ := newSynthesizer(t)
	if _, err := syn.Transition(context.Background(), uuid.New(), domain.SkillPublished); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
