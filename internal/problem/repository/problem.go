package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"bitbattle/internal/common/db"
	"bitbattle/internal/problem/model"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

// ProblemRepository persists the battle problem set. The service layer
// loads everything into an in-memory snapshot at startup, so reads here
// are cold-path only.
type ProblemRepository interface {
	All(ctx context.Context) ([]model.Problem, error)
	Get(ctx context.Context, id string) (model.Problem, error)
	Upsert(ctx context.Context, tx db.Transaction, problem model.Problem) error
	Count(ctx context.Context) (int64, error)
}

type SQLProblemRepository struct {
	db db.Database
}

func NewProblemRepository(database db.Database) *SQLProblemRepository {
	return &SQLProblemRepository{db: database}
}

const problemColumns = "id, title, description, difficulty, examples, hidden_tests, starter_code, tags, time_limit_minutes"

func (r *SQLProblemRepository) All(ctx context.Context) ([]model.Problem, error) {
	query := "SELECT " + problemColumns + " FROM problems ORDER BY id"
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var problems []model.Problem
	for rows.Next() {
		problem, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, problem)
	}
	return problems, rows.Err()
}

func (r *SQLProblemRepository) Get(ctx context.Context, id string) (model.Problem, error) {
	query := "SELECT " + problemColumns + " FROM problems WHERE id = $1"
	row := r.db.QueryRow(ctx, query, id)
	problem, err := scanProblem(row)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Problem{}, ErrProblemNotFound
		}
		return model.Problem{}, err
	}
	return problem, nil
}

func (r *SQLProblemRepository) Upsert(ctx context.Context, tx db.Transaction, problem model.Problem) error {
	examples, err := json.Marshal(problem.Examples)
	if err != nil {
		return err
	}
	hidden, err := json.Marshal(problem.HiddenTests)
	if err != nil {
		return err
	}
	starter, err := json.Marshal(problem.StarterCode)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(problem.Tags)
	if err != nil {
		return err
	}

	var timeLimit interface{}
	if problem.TimeLimitMinutes > 0 {
		timeLimit = problem.TimeLimitMinutes
	}

	query := `
		INSERT INTO problems (id, title, description, difficulty, examples, hidden_tests, starter_code, tags, time_limit_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			difficulty = EXCLUDED.difficulty,
			examples = EXCLUDED.examples,
			hidden_tests = EXCLUDED.hidden_tests,
			starter_code = EXCLUDED.starter_code,
			tags = EXCLUDED.tags,
			time_limit_minutes = EXCLUDED.time_limit_minutes`
	_, err = db.GetQuerier(r.db, tx).Exec(ctx, query,
		problem.ID, problem.Title, problem.Description, string(problem.Difficulty),
		examples, hidden, starter, tags, timeLimit)
	return err
}

func (r *SQLProblemRepository) Count(ctx context.Context) (int64, error) {
	row := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM problems")
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanProblem(scanner db.Scanner) (model.Problem, error) {
	var (
		problem   model.Problem
		examples  []byte
		hidden    []byte
		starter   []byte
		tags      []byte
		timeLimit sql.NullInt64
	)
	err := scanner.Scan(
		&problem.ID,
		&problem.Title,
		&problem.Description,
		&problem.Difficulty,
		&examples,
		&hidden,
		&starter,
		&tags,
		&timeLimit,
	)
	if err != nil {
		return model.Problem{}, err
	}
	if err := json.Unmarshal(examples, &problem.Examples); err != nil {
		return model.Problem{}, err
	}
	if err := json.Unmarshal(hidden, &problem.HiddenTests); err != nil {
		return model.Problem{}, err
	}
	if err := json.Unmarshal(starter, &problem.StarterCode); err != nil {
		return model.Problem{}, err
	}
	if err := json.Unmarshal(tags, &problem.Tags); err != nil {
		return model.Problem{}, err
	}
	if timeLimit.Valid {
		problem.TimeLimitMinutes = int(timeLimit.Int64)
	}
	return problem, nil
}
