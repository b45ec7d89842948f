// Package permute maps between the presented order of a printed model and
// the canonical order used for solutions and scoring.
package permute

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/pavelanni/omrgrade/internal/model"
)

// ErrPermutationMismatch is returned for a permutation that is not a bijection
// of the expected size.
var ErrPermutationMismatch = errors.New("permutation mismatch")

// Entry describes one presented row: the canonical question shown there and
// the canonical choice (1-based) shown under each presented letter.
type Entry struct {
	Question int
	Choices  []int
}

// Permutation is indexed by presented row.
type Permutation []Entry

// Identity returns the permutation of a model printed in canonical order.
func Identity(choiceCounts []int) Permutation {
	p := make(Permutation, len(choiceCounts))
	for i, n := range choiceCounts {
		p[i] = Entry{Question: i, Choices: identityChoices(n)}
	}
	return p
}

func identityChoices(n int) []int {
	out := make([]int, n)
	for c := range out {
		out[c] = c + 1
	}
	return out
}

// Generate draws a random question order and, for every question, a random
// choice order. choiceCounts gives the number of choices of each presented row.
// Questions only move between rows with the same number of choices.
func Generate(rng *rand.Rand, choiceCounts []int) Permutation {
	byCount := make(map[int][]int)
	for row, n := range choiceCounts {
		byCount[n] = append(byCount[n], row)
	}
	p := make(Permutation, len(choiceCounts))
	for _, n := range slices.Sorted(maps.Keys(byCount)) {
		rows := byCount[n]
		questions := slices.Clone(rows)
		rng.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
		for k, row := range rows {
			choices := identityChoices(n)
			rng.Shuffle(n, func(i, j int) {
				choices[i], choices[j] = choices[j], choices[i]
			})
			p[row] = Entry{Question: questions[k], Choices: choices}
		}
	}
	return p
}

// Validate checks that p is a bijection over numQuestions questions and that
// every choice mapping is a bijection over its choices.
func (p Permutation) Validate(numQuestions int) error {
	if len(p) != numQuestions {
		return fmt.Errorf("%w: %d rows for %d questions", ErrPermutationMismatch, len(p), numQuestions)
	}
	seen := make([]bool, numQuestions)
	for row, e := range p {
		if e.Question < 0 || e.Question >= numQuestions || seen[e.Question] {
			return fmt.Errorf("%w: row %d maps to question %d", ErrPermutationMismatch, row, e.Question)
		}
		seen[e.Question] = true
		if len(e.Choices) == 0 {
			return fmt.Errorf("%w: row %d has no choices", ErrPermutationMismatch, row)
		}
		used := make([]bool, len(e.Choices)+1)
		for _, c := range e.Choices {
			if c < 1 || c > len(e.Choices) || used[c] {
				return fmt.Errorf("%w: row %d maps to choice %d", ErrPermutationMismatch, row, c)
			}
			used[c] = true
		}
	}
	return nil
}

// Apply maps answers read in presented order to canonical answers.
// Blank answers (0) stay blank.
func (p Permutation) Apply(presented []int) ([]int, error) {
	if err := p.Validate(len(presented)); err != nil {
		return nil, err
	}
	canonical := make([]int, len(presented))
	for row, a := range presented {
		e := p[row]
		switch {
		case a == 0:
			canonical[e.Question] = 0
		case a < 0 || a > len(e.Choices):
			return nil, fmt.Errorf("%w: answer %d at row %d has %d choices", ErrPermutationMismatch, a, row, len(e.Choices))
		default:
			canonical[e.Question] = e.Choices[a-1]
		}
	}
	return canonical, nil
}

// Render maps canonical answers to the answers a student would mark on the
// printed model. It is the inverse of Apply.
func (p Permutation) Render(canonical []int) ([]int, error) {
	if err := p.Validate(len(canonical)); err != nil {
		return nil, err
	}
	presented := make([]int, len(canonical))
	for row, e := range p {
		a := canonical[e.Question]
		if a == 0 {
			continue
		}
		letter := slices.Index(e.Choices, a)
		if letter < 0 {
			return nil, fmt.Errorf("%w: canonical choice %d of question %d", ErrPermutationMismatch, a, e.Question)
		}
		presented[row] = letter + 1
	}
	return presented, nil
}

// Inverse returns, for each canonical question, the presented row where it appears.
func (p Permutation) Inverse() []int {
	rows := make([]int, len(p))
	for row, e := range p {
		rows[e.Question] = row
	}
	return rows
}

// FromRecords rebuilds the permutation stored in a model key.
func FromRecords(records []model.QuestionRecord) (Permutation, error) {
	p := make(Permutation, len(records))
	filled := make([]bool, len(records))
	for q, r := range records {
		if r.Position < 0 || r.Position >= len(records) || filled[r.Position] {
			return nil, fmt.Errorf("%w: question %d at position %d", ErrPermutationMismatch, q, r.Position)
		}
		filled[r.Position] = true
		p[r.Position] = Entry{Question: q, Choices: slices.Clone(r.Choices)}
	}
	if err := p.Validate(len(records)); err != nil {
		return nil, err
	}
	return p, nil
}

// Assign stores the permutation into the records of a model key, which must
// be indexed by canonical question.
func (p Permutation) Assign(records []model.QuestionRecord) error {
	if err := p.Validate(len(records)); err != nil {
		return err
	}
	for row, e := range p {
		records[e.Question].Position = row
		records[e.Question].Choices = slices.Clone(e.Choices)
	}
	return nil
}
