// Package grader turns what image recognition read from an answer sheet
// into a scored exam stored in a session.
package grader

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pavelanni/omrgrade/internal/capture"
	"github.com/pavelanni/omrgrade/internal/layout"
	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/permute"
	"github.com/pavelanni/omrgrade/internal/scoring"
	"github.com/pavelanni/omrgrade/internal/store"
)

// ErrInputShape is returned for recognition data that does not match the
// session's answer tables.
var ErrInputShape = errors.New("recognition data does not match the session")

// Input is the recognition result of one captured answer sheet. Answer
// cells are in presented order, one row per question.
type Input struct {
	Fingerprint []layout.MarkPair    `json:"fingerprint"`
	AnswerCells [][]model.AnswerCell `json:"answer_cells"`
	IDCells     []model.IDCell       `json:"id_cells,omitempty"`
	// StudentID overrides the ID read from IDCells.
	StudentID string `json:"student_id,omitempty"`
	// ImagePath is the raw capture, relative to the input file.
	ImagePath string      `json:"image,omitempty"`
	Image     image.Image `json:"-"`
}

// LoadInput reads a JSON recognition result and the capture it names.
func LoadInput(path string) (Input, error) {
	var in Input
	data, err := os.ReadFile(path)
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("parse %s: %w", path, err)
	}
	if in.ImagePath != "" {
		imgPath := in.ImagePath
		if !filepath.IsAbs(imgPath) {
			imgPath = filepath.Join(filepath.Dir(path), imgPath)
		}
		if in.Image, err = capture.Load(imgPath); err != nil {
			return in, err
		}
	}
	return in, nil
}

// Option configures a Grader.
type Option func(*Grader)

// WithModel grades every sheet as the given model, ignoring the fingerprint.
func WithModel(sym model.Symbol) Option {
	return func(g *Grader) { g.forced = sym }
}

// Grader grades captures into one session.
type Grader struct {
	store  *store.Store
	forced model.Symbol
}

// New returns a Grader that stores exams in s.
func New(s *store.Store, opts ...Option) *Grader {
	g := &Grader{store: s}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Grade evaluates one capture and stores the exam.
func (g *Grader) Grade(in Input) (*model.Exam, error) {
	exam, err := g.Evaluate(in)
	if err != nil {
		return nil, err
	}
	if err := g.store.StoreExam(exam, in.Image); err != nil {
		return nil, err
	}
	return exam, nil
}

// Evaluate builds the exam of one capture without storing it. A sheet
// whose model cannot be decoded keeps its answers in presented order and
// gets no score.
func (g *Grader) Evaluate(in Input) (*model.Exam, error) {
	cfg := g.store.ExamConfig()
	if g.forced != model.Unknown && cfg.Key(g.forced) == nil {
		return nil, fmt.Errorf("%w: session has no model %s", model.ErrInvalidModel, g.forced)
	}
	counts := cfg.ChoiceCounts()
	presented, err := readAnswers(in.AnswerCells, counts)
	if err != nil {
		return nil, err
	}
	exam := &model.Exam{
		Answers:     presented,
		AnswerCells: in.AnswerCells,
		IDCells:     in.IDCells,
		Student:     g.student(in),
	}

	exam.Model = g.model(cfg, in.Fingerprint)
	key := cfg.Key(exam.Model)
	if key == nil {
		for _, a := range presented {
			if a == 0 {
				exam.Grade.Blank++
			}
		}
		return exam, nil
	}
	perm, err := permute.FromRecords(key.Questions)
	if err != nil {
		return nil, err
	}
	if exam.Answers, err = perm.Apply(presented); err != nil {
		return nil, err
	}
	if exam.Grade, err = scoring.Score(exam.Answers, key.Solutions(), scoring.FromKey(cfg, key)); err != nil {
		return nil, err
	}
	return exam, nil
}

// model decodes the fingerprint. Unreadable fingerprints and models the
// session does not know give model.Unknown.
func (g *Grader) model(cfg *model.ExamConfig, pairs []layout.MarkPair) model.Symbol {
	if g.forced != model.Unknown {
		return g.forced
	}
	tables := len(cfg.Dimensions)
	if tables == 0 {
		return model.Unknown
	}
	choices := cfg.Dimensions[0].Choices
	for _, d := range cfg.Dimensions {
		if d.Choices != choices {
			slog.Warn("fingerprint needs equal choices in every table", "dimensions", model.FormatDimensions(cfg.Dimensions))
			return model.Unknown
		}
	}
	sym, err := layout.DecodeFingerprint(pairs, tables, choices)
	if err != nil {
		slog.Warn("unreadable fingerprint", "error", err)
		return model.Unknown
	}
	if cfg.Key(sym) == nil {
		slog.Warn("fingerprint names a model not in the session", "model", sym.String())
		return model.Unknown
	}
	return sym
}

// student matches the sheet's ID against the roster. Unknown IDs become
// ad hoc students; sheets without a complete ID have no student.
func (g *Grader) student(in Input) *model.Student {
	id := in.StudentID
	if id == "" {
		id = ReadID(in.IDCells)
	}
	if id == "" {
		return nil
	}
	if st, ok := g.store.FindStudent(id); ok {
		return st
	}
	return model.AdHocStudent(id)
}

// ReadID joins the recognized digits of the ID box. It returns "" when a
// digit was not recognized.
func ReadID(cells []model.IDCell) string {
	var b strings.Builder
	for _, c := range cells {
		if c.Digit < 0 || c.Digit > 9 {
			return ""
		}
		b.WriteString(strconv.Itoa(c.Digit))
	}
	return b.String()
}

// readAnswers turns filled cells into presented answers. A row with no
// filled cell, or with more than one, is blank.
func readAnswers(cells [][]model.AnswerCell, counts []int) ([]int, error) {
	if len(cells) != len(counts) {
		return nil, fmt.Errorf("%w: %d answer rows, want %d", ErrInputShape, len(cells), len(counts))
	}
	answers := make([]int, len(cells))
	for row, choices := range cells {
		if len(choices) != counts[row] {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrInputShape, row, len(choices), counts[row])
		}
		filled := 0
		for c, cell := range choices {
			if cell.Filled {
				filled++
				answers[row] = c + 1
			}
		}
		if filled > 1 {
			answers[row] = 0
		}
	}
	return answers, nil
}
