package store

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/pavelanni/omrgrade/internal/model"
)

// ErrQuestionRange is returned for a question or choice outside the exam.
var ErrQuestionRange = errors.New("question or choice out of range")

// VoidQuestion excludes a canonical question from grading in every model
// and rescores all stored exams.
func (s *Store) VoidQuestion(question int) error {
	return s.alterSolution(question, func(model.QuestionRecord) (model.Solution, error) {
		return nil, nil
	})
}

// SetSolution replaces the solution of a canonical question with a single
// canonical choice and rescores all stored exams.
func (s *Store) SetSolution(question, choice int) error {
	return s.alterSolution(question, func(rec model.QuestionRecord) (model.Solution, error) {
		if choice < 1 || choice > len(rec.Choices) {
			return nil, fmt.Errorf("%w: choice %d of question %d", ErrQuestionRange, choice, question)
		}
		return model.Solution{choice}, nil
	})
}

// AddAlternateSolution accepts one more canonical choice as correct for a
// question and rescores all stored exams.
func (s *Store) AddAlternateSolution(question, choice int) error {
	return s.alterSolution(question, func(rec model.QuestionRecord) (model.Solution, error) {
		if choice < 1 || choice > len(rec.Choices) {
			return nil, fmt.Errorf("%w: choice %d of question %d", ErrQuestionRange, choice, question)
		}
		if rec.Solution.Accepts(choice) {
			return rec.Solution, nil
		}
		return append(slices.Clone(rec.Solution), choice), nil
	})
}

// alterSolution applies change to the question in every model, persists the
// new keys and rescores every exam in one transaction. The in-memory
// configuration is replaced only after commit.
func (s *Store) alterSolution(question int, change func(model.QuestionRecord) (model.Solution, error)) error {
	if question < 0 || question >= s.config.NumQuestions() {
		return fmt.Errorf("%w: question %d", ErrQuestionRange, question)
	}
	cfg := s.config
	cfg.Models = make(map[model.Symbol]*model.ModelKey, len(s.config.Models))
	for sym, key := range s.config.Models {
		k := &model.ModelKey{Symbol: key.Symbol, Questions: slices.Clone(key.Questions)}
		sol, err := change(k.Questions[question])
		if err != nil {
			return err
		}
		k.Questions[question].Solution = sol
		cfg.Models[sym] = k
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, sym := range slices.Sorted(maps.Keys(cfg.Models)) {
		if err := s.schema.saveSolution(tx, cfg.Models[sym], question); err != nil {
			return fmt.Errorf("save solution of model %s: %w", sym, err)
		}
	}
	n, err := rescoreAll(tx, &cfg)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.config = cfg
	slog.Info("changed solution", "question", question, "rescored", n)
	s.redrawAll()
	return nil
}

// rescoreAll recomputes the grade of every exam with a known model.
func rescoreAll(q querier, cfg *model.ExamConfig) (int, error) {
	rows, err := q.Query(`SELECT exam_id, model FROM Exams ORDER BY exam_id`)
	if err != nil {
		return 0, err
	}
	type pending struct {
		id  int64
		key *model.ModelKey
	}
	var exams []pending
	for rows.Next() {
		var r examRow
		if err := rows.Scan(&r.id, &r.model); err != nil {
			rows.Close()
			return 0, err
		}
		sym, err := model.ParseSymbol(r.model.String)
		if err != nil {
			rows.Close()
			return 0, err
		}
		if key := cfg.Key(sym); key != nil {
			exams = append(exams, pending{id: r.id.Int64, key: key})
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return 0, err
	}

	n := cfg.NumQuestions()
	for _, e := range exams {
		answers, err := readAnswers(q, e.id, n)
		if err != nil {
			return 0, err
		}
		grade, err := scoreExam(cfg, e.key, answers)
		if err != nil {
			return 0, fmt.Errorf("rescore exam %d: %w", e.id, err)
		}
		if err := updateGrade(q, e.id, grade); err != nil {
			return 0, err
		}
	}
	return len(exams), nil
}
