// Package model defines the battle problem types shared by the problem
// repository, the room manager and the submission pipeline.
package model

import "strings"

// Difficulty buckets problems and matchmaking queues.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"

	// DifficultyAny is a queue-side filter, never stored on a problem.
	DifficultyAny Difficulty = "any"
)

// ParseDifficulty normalizes user input to a known difficulty.
func ParseDifficulty(raw string) (Difficulty, bool) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(raw))) {
	case DifficultyEasy:
		return DifficultyEasy, true
	case DifficultyMedium:
		return DifficultyMedium, true
	case DifficultyHard:
		return DifficultyHard, true
	case DifficultyAny:
		return DifficultyAny, true
	default:
		return "", false
	}
}

// Matches reports whether a problem difficulty satisfies the filter.
func (d Difficulty) Matches(other Difficulty) bool {
	if d == DifficultyAny || other == DifficultyAny {
		return true
	}
	return d == other
}

// TestCase is one input/expected-output pair. Examples are shown to
// players; hidden tests decide the verdict.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Explanation    string `json:"explanation,omitempty"`
}

// Problem is the full server-side record. HiddenTests never reach a
// client; payloads go through ClientView.
type Problem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	Examples    []TestCase `json:"examples"`
	HiddenTests []TestCase `json:"-"`
	// StarterCode maps language ID to the scaffold shown in the editor.
	StarterCode      map[string]string `json:"starter_code"`
	Tags             []string          `json:"tags"`
	TimeLimitMinutes int               `json:"time_limit_minutes,omitempty"`
}

// ClientView is the sanitized problem payload sent over the wire.
type ClientView struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Difficulty       Difficulty        `json:"difficulty"`
	Examples         []TestCase        `json:"examples"`
	StarterCode      map[string]string `json:"starter_code"`
	TimeLimitMinutes int               `json:"time_limit_minutes,omitempty"`
	Tags             []string          `json:"tags"`
}

// Client strips the hidden tests from the problem.
func (p Problem) Client() ClientView {
	return ClientView{
		ID:               p.ID,
		Title:            p.Title,
		Description:      p.Description,
		Difficulty:       p.Difficulty,
		Examples:         p.Examples,
		StarterCode:      p.StarterCode,
		TimeLimitMinutes: p.TimeLimitMinutes,
		Tags:             p.Tags,
	}
}

// Summary is the compact listing form used by spectator room lists and
// the problems index.
type Summary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty"`
	Tags       []string   `json:"tags"`
}

// Summarize reduces the problem to its listing form.
func (p Problem) Summarize() Summary {
	return Summary{ID: p.ID, Title: p.Title, Difficulty: p.Difficulty, Tags: p.Tags}
}
