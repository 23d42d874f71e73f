package service

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"bitbattle/internal/problem/model"
	"bitbattle/internal/problem/repository"
	appErr "bitbattle/pkg/errors"
	"bitbattle/pkg/utils/logger"
)

// ProblemService serves the battle problem set from an in-memory
// snapshot. Rooms pull random problems from it on every game start, so
// lookups never touch the database.
type ProblemService struct {
	repo repository.ProblemRepository

	mu       sync.RWMutex
	problems map[string]model.Problem
}

// NewProblemService creates the service. repo may be nil when the server
// runs without a database; Load then uses the built-in set.
func NewProblemService(repo repository.ProblemRepository) *ProblemService {
	return &ProblemService{
		repo:     repo,
		problems: make(map[string]model.Problem),
	}
}

// Load builds the snapshot. An empty or missing table falls back to the
// built-in problems, which are also written back so the table reflects
// what is being served.
func (s *ProblemService) Load(ctx context.Context) error {
	problems := repository.BuiltinProblems()
	if s.repo != nil {
		stored, err := s.repo.All(ctx)
		if err != nil {
			return appErr.Wrapf(err, appErr.ProblemLoadFailed, "load problems failed")
		}
		if len(stored) > 0 {
			problems = stored
		} else {
			s.seedBuiltins(ctx, problems)
		}
	}

	snapshot := make(map[string]model.Problem, len(problems))
	for _, p := range problems {
		if p.ID == "" || len(p.HiddenTests) == 0 {
			logger.Warn(ctx, "skipping problem without id or hidden tests", zap.String("problem_id", p.ID))
			continue
		}
		snapshot[p.ID] = p
	}
	if len(snapshot) == 0 {
		return appErr.New(appErr.ProblemLoadFailed).WithMessage("problem set is empty")
	}

	s.mu.Lock()
	s.problems = snapshot
	s.mu.Unlock()
	logger.Info(ctx, "problem set loaded", zap.Int("count", len(snapshot)))
	return nil
}

func (s *ProblemService) seedBuiltins(ctx context.Context, problems []model.Problem) {
	for _, p := range problems {
		if err := s.repo.Upsert(ctx, nil, p); err != nil {
			logger.Warn(ctx, "seed builtin problem failed", zap.String("problem_id", p.ID), zap.Error(err))
			return
		}
	}
	logger.Info(ctx, "seeded builtin problems", zap.Int("count", len(problems)))
}

// Get returns the full problem, hidden tests included.
func (s *ProblemService) Get(ctx context.Context, id string) (model.Problem, error) {
	if id == "" {
		return model.Problem{}, appErr.ValidationError("problem_id", "required")
	}
	s.mu.RLock()
	p, ok := s.problems[id]
	s.mu.RUnlock()
	if !ok {
		return model.Problem{}, appErr.New(appErr.ProblemNotFound)
	}
	return p, nil
}

// Choose picks a uniformly random problem matching the difficulty,
// skipping excluded ids. When every candidate is excluded the exclusion
// is dropped so a fresh room always gets a problem.
func (s *ProblemService) Choose(ctx context.Context, difficulty model.Difficulty, exclude map[string]struct{}) (model.Problem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var inFilter, fresh []string
	for id, p := range s.problems {
		if !difficulty.Matches(p.Difficulty) {
			continue
		}
		inFilter = append(inFilter, id)
		if _, excluded := exclude[id]; !excluded {
			fresh = append(fresh, id)
		}
	}
	if len(inFilter) == 0 {
		return model.Problem{}, appErr.New(appErr.ProblemSetEmpty)
	}

	candidates := fresh
	if len(candidates) == 0 {
		candidates = inFilter
	}
	// Map iteration order is random but not uniform; sort before drawing.
	sort.Strings(candidates)
	id := candidates[rand.Intn(len(candidates))]
	return s.problems[id], nil
}

// List returns summaries matching the difficulty, sorted by id.
func (s *ProblemService) List(difficulty model.Difficulty) []model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]model.Summary, 0, len(s.problems))
	for _, p := range s.problems {
		if difficulty.Matches(p.Difficulty) {
			summaries = append(summaries, p.Summarize())
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// Count reports the snapshot size.
func (s *ProblemService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.problems)
}
