// Package scoring computes the grade of an exam from canonical answers.
package scoring

import (
	"errors"
	"fmt"

	"github.com/pavelanni/omrgrade/internal/model"
)

// ErrScoreConfigMismatch is returned when answers, solutions and weights do
// not describe the same number of questions.
var ErrScoreConfigMismatch = errors.New("score configuration mismatch")

// Config selects the scoring mode and its weights.
type Config struct {
	Mode model.ScoringMode
	// Weights applies to every graded question in weights mode.
	Weights model.Weights
	// QuestionWeights optionally scales Weights per question. Nil means 1 for all.
	QuestionWeights []float64
	// Individual holds one triple per question in individual mode.
	Individual []model.Weights
}

// FromKey builds the scoring configuration of a model in a session.
func FromKey(cfg *model.ExamConfig, key *model.ModelKey) Config {
	sc := Config{Mode: cfg.ScoringMode, Weights: cfg.BaseWeights}
	switch cfg.ScoringMode {
	case model.ScoringWeights:
		sc.QuestionWeights = make([]float64, len(key.Questions))
		for i, q := range key.Questions {
			sc.QuestionWeights[i] = q.Weight
		}
	case model.ScoringIndividual:
		sc.Individual = make([]model.Weights, len(key.Questions))
		for i, q := range key.Questions {
			if q.Score != nil {
				sc.Individual[i] = *q.Score
			}
		}
	}
	return sc
}

// Score classifies every graded answer as correct, incorrect or blank and
// accumulates the score. Void questions count for nothing.
func Score(answers []int, solutions []model.Solution, cfg Config) (model.Grade, error) {
	var g model.Grade
	n := len(answers)
	if len(solutions) != n {
		return g, fmt.Errorf("%w: %d answers, %d solutions", ErrScoreConfigMismatch, n, len(solutions))
	}
	switch cfg.Mode {
	case model.ScoringNone, "":
	case model.ScoringWeights:
		if cfg.QuestionWeights != nil && len(cfg.QuestionWeights) != n {
			return g, fmt.Errorf("%w: %d answers, %d question weights", ErrScoreConfigMismatch, n, len(cfg.QuestionWeights))
		}
	case model.ScoringIndividual:
		if len(cfg.Individual) != n {
			return g, fmt.Errorf("%w: %d answers, %d individual scores", ErrScoreConfigMismatch, n, len(cfg.Individual))
		}
	default:
		return g, fmt.Errorf("%w: unknown scoring mode %q", ErrScoreConfigMismatch, cfg.Mode)
	}

	score := 0.0
	for i, answer := range answers {
		sol := solutions[i]
		if sol.Void() {
			continue
		}
		w := cfg.weightsFor(i)
		switch {
		case answer == 0:
			g.Blank++
			score += w.Blank
		case sol.Accepts(answer):
			g.Correct++
			score += w.Correct
		default:
			g.Incorrect++
			score += w.Incorrect
		}
	}
	if cfg.Mode == model.ScoringWeights || cfg.Mode == model.ScoringIndividual {
		g.Score = &score
	}
	return g, nil
}

func (c Config) weightsFor(i int) model.Weights {
	switch c.Mode {
	case model.ScoringWeights:
		if c.QuestionWeights == nil {
			return c.Weights
		}
		m := c.QuestionWeights[i]
		return model.Weights{
			Correct:   c.Weights.Correct * m,
			Incorrect: c.Weights.Incorrect * m,
			Blank:     c.Weights.Blank * m,
		}
	case model.ScoringIndividual:
		return c.Individual[i]
	}
	return model.Weights{}
}
