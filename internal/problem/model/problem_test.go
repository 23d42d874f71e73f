package model_test

import (
	"encoding/json"
	"strings"
	"testing"

	"bitbattle/internal/problem/model"
)

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Difficulty
		ok   bool
	}{
		{raw: "easy", want: model.DifficultyEasy, ok: true},
		{raw: "MEDIUM", want: model.DifficultyMedium, ok: true},
		{raw: " hard ", want: model.DifficultyHard, ok: true},
		{raw: "any", want: model.DifficultyAny, ok: true},
		{raw: "extreme", ok: false},
		{raw: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := model.ParseDifficulty(tt.raw)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v for %q", tt.ok, tt.raw)
			}
			if ok && got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDifficultyMatches(t *testing.T) {
	if !model.DifficultyAny.Matches(model.DifficultyHard) {
		t.Fatal("any should match hard")
	}
	if !model.DifficultyEasy.Matches(model.DifficultyAny) {
		t.Fatal("easy should match any")
	}
	if !model.DifficultyEasy.Matches(model.DifficultyEasy) {
		t.Fatal("easy should match easy")
	}
	if model.DifficultyEasy.Matches(model.DifficultyMedium) {
		t.Fatal("easy should not match medium")
	}
}

func TestHiddenTestsNeverSerialized(t *testing.T) {
	p := model.Problem{
		ID:          "two-sum",
		Title:       "Two Sum",
		Difficulty:  model.DifficultyEasy,
		Examples:    []model.TestCase{{Input: "nums = [2,7]", ExpectedOutput: "[0,1]"}},
		HiddenTests: []model.TestCase{{Input: "SECRET-INPUT", ExpectedOutput: "SECRET-OUTPUT"}},
		StarterCode: map[string]string{"python": "pass"},
	}

	for name, v := range map[string]interface{}{
		"problem": p,
		"client":  p.Client(),
	} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		if strings.Contains(string(data), "SECRET") {
			t.Fatalf("%s payload leaks hidden tests: %s", name, data)
		}
	}
}

func TestClientViewKeepsPlayerFields(t *testing.T) {
	p := model.Problem{
		ID:               "p1",
		Title:            "T",
		Description:      "D",
		Difficulty:       model.DifficultyMedium,
		Examples:         []model.TestCase{{Input: "i", ExpectedOutput: "o", Explanation: "e"}},
		StarterCode:      map[string]string{"go": "package main"},
		Tags:             []string{"array"},
		TimeLimitMinutes: 15,
	}
	view := p.Client()
	if view.ID != "p1" || view.Title != "T" || view.Description != "D" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if len(view.Examples) != 1 || view.Examples[0].Explanation != "e" {
		t.Fatalf("examples not carried: %+v", view.Examples)
	}
	if view.StarterCode["go"] != "package main" {
		t.Fatalf("starter code not carried: %+v", view.StarterCode)
	}
	if view.TimeLimitMinutes != 15 {
		t.Fatalf("time limit not carried: %d", view.TimeLimitMinutes)
	}
}
