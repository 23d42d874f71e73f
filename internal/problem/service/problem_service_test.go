package service_test

import (
	"context"
	"testing"

	"bitbattle/internal/problem/model"
	"bitbattle/internal/problem/service"
	appErr "bitbattle/pkg/errors"
)

func loadedService(t *testing.T) *service.ProblemService {
	t.Helper()
	svc := service.NewProblemService(nil)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load builtins: %v", err)
	}
	return svc
}

func TestLoadBuiltins(t *testing.T) {
	svc := loadedService(t)
	if svc.Count() != 3 {
		t.Fatalf("expected 3 builtin problems, got %d", svc.Count())
	}

	for _, id := range []string{"two-sum", "reverse-string", "valid-parentheses"} {
		p, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if len(p.HiddenTests) == 0 {
			t.Fatalf("%s has no hidden tests", id)
		}
		if p.Difficulty != model.DifficultyEasy {
			t.Fatalf("%s: expected easy, got %s", id, p.Difficulty)
		}
	}
}

func TestGetUnknownProblem(t *testing.T) {
	svc := loadedService(t)
	_, err := svc.Get(context.Background(), "no-such-problem")
	if !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("expected ProblemNotFound, got %v", err)
	}
}

func TestChooseRespectsExclusion(t *testing.T) {
	svc := loadedService(t)
	exclude := map[string]struct{}{
		"two-sum":        {},
		"reverse-string": {},
	}

	for i := 0; i < 20; i++ {
		p, err := svc.Choose(context.Background(), model.DifficultyEasy, exclude)
		if err != nil {
			t.Fatalf("choose: %v", err)
		}
		if p.ID != "valid-parentheses" {
			t.Fatalf("expected the only non-excluded problem, got %s", p.ID)
		}
	}
}

func TestChooseFallsBackWhenAllExcluded(t *testing.T) {
	svc := loadedService(t)
	exclude := map[string]struct{}{
		"two-sum":           {},
		"reverse-string":    {},
		"valid-parentheses": {},
	}

	p, err := svc.Choose(context.Background(), model.DifficultyEasy, exclude)
	if err != nil {
		t.Fatalf("expected fallback to full set, got %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected a problem from the fallback set")
	}
}

func TestChooseEmptyDifficulty(t *testing.T) {
	svc := loadedService(t)
	_, err := svc.Choose(context.Background(), model.DifficultyHard, nil)
	if !appErr.Is(err, appErr.ProblemSetEmpty) {
		t.Fatalf("expected ProblemSetEmpty for hard, got %v", err)
	}
}

func TestChooseAnyMatchesAll(t *testing.T) {
	svc := loadedService(t)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		p, err := svc.Choose(context.Background(), model.DifficultyAny, nil)
		if err != nil {
			t.Fatalf("choose any: %v", err)
		}
		seen[p.ID] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected random spread over the set, saw %v", seen)
	}
}

func TestListSorted(t *testing.T) {
	svc := loadedService(t)
	summaries := svc.List(model.DifficultyAny)
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	for i := 1; i < len(summaries); i++ {
		if summaries[i-1].ID >= summaries[i].ID {
			t.Fatalf("expected sorted list, got %v", summaries)
		}
	}
}
