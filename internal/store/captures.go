package store

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/pavelanni/omrgrade/internal/capture"
	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/permute"
)

// CaptureName expands a capture pattern for one exam. The placeholders are
// {exam-id}, {seq-number} (an alias of {exam-id}), {student-id} and
// {student-name}; unknown students expand to "noid" and "noname".
func CaptureName(pattern string, examID int64, st *model.Student) string {
	studentID, name := "noid", "noname"
	if st != nil {
		if st.StudentID != "" {
			studentID = safeName(st.StudentID)
		}
		if full := st.FullName(); full != "" {
			name = safeName(full)
		}
	}
	id := strconv.FormatInt(examID, 10)
	r := strings.NewReplacer(
		"{exam-id}", id,
		"{seq-number}", id,
		"{student-id}", studentID,
		"{student-name}", name,
	)
	return filepath.Base(r.Replace(pattern))
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return r
		}
		return '_'
	}, s)
}

func (s *Store) rawPath(examID int64) string {
	return filepath.Join(s.dir, InternalDir, fmt.Sprintf("raw-%d.png", examID))
}

func (s *Store) drawnPath(exam *model.Exam) string {
	return filepath.Join(s.dir, CapturesDir, CaptureName(s.config.CapturePattern, exam.ID, exam.Student))
}

func (s *Store) saveCaptures(exam *model.Exam, raw image.Image) error {
	if raw == nil {
		raw = capture.Placeholder()
	}
	if err := capture.Save(s.rawPath(exam.ID), raw); err != nil {
		return fmt.Errorf("save raw capture of exam %d: %w", exam.ID, err)
	}
	if err := capture.Save(s.drawnPath(exam), s.draw(exam, raw)); err != nil {
		return fmt.Errorf("save capture of exam %d: %w", exam.ID, err)
	}
	return nil
}

// redraw regenerates the drawn capture from the raw one, removing oldPath
// first when the name changed.
func (s *Store) redraw(exam *model.Exam, oldPath string) error {
	newPath := s.drawnPath(exam)
	if oldPath != "" && oldPath != newPath {
		if err := removeIfExists(oldPath); err != nil {
			return err
		}
	}
	raw, err := capture.Load(s.rawPath(exam.ID))
	if err != nil {
		slog.Warn("raw capture unavailable, drawing placeholder", "exam", exam.ID, "error", err)
		raw = capture.Placeholder()
	}
	if err := capture.Save(newPath, s.draw(exam, raw)); err != nil {
		return fmt.Errorf("save capture of exam %d: %w", exam.ID, err)
	}
	return nil
}

func (s *Store) removeCaptures(exam *model.Exam) error {
	for _, path := range []string{s.drawnPath(exam), s.rawPath(exam.ID)} {
		if err := removeIfExists(path); err != nil {
			return err
		}
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove capture: %w", err)
	}
	return nil
}

func (s *Store) draw(exam *model.Exam, raw image.Image) image.Image {
	return capture.Annotate(raw, exam.AnswerCells, exam.IDCells, s.verdict(exam.Model))
}

func (s *Store) verdict(sym model.Symbol) capture.Verdict {
	key := s.config.Key(sym)
	if key == nil {
		return nil
	}
	perm, err := permute.FromRecords(key.Questions)
	if err != nil {
		return nil
	}
	return func(row, choice int) (bool, bool) {
		if row >= len(perm) || choice >= len(perm[row].Choices) {
			return false, false
		}
		e := perm[row]
		sol := key.Questions[e.Question].Solution
		if sol.Void() {
			return false, false
		}
		return sol.Accepts(e.Choices[choice]), true
	}
}

// DrawnImage returns the annotated capture of an exam, or a placeholder
// when the file is missing.
func (s *Store) DrawnImage(examID int64) (image.Image, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return nil, err
	}
	path := s.drawnPath(exam)
	img, err := capture.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("capture file missing", "exam", examID, "path", path)
		return capture.Placeholder(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load capture of exam %d: %w", examID, err)
	}
	return img, nil
}

// redrawAll refreshes every drawn capture, logging failures.
func (s *Store) redrawAll() {
	exams, err := s.ListExams()
	if err != nil {
		slog.Warn("cannot list exams to redraw", "error", err)
		return
	}
	for _, e := range exams {
		exam, err := s.GetExam(e.ID)
		if err == nil {
			err = s.redraw(exam, "")
		}
		if err != nil {
			slog.Warn("cannot redraw capture", "exam", e.ID, "error", err)
		}
	}
}
