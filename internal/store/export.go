package store

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/pavelanni/omrgrade/internal/model"
)

// LegacyAnswersFile is written by SaveLegacyAnswers in the session directory.
const LegacyAnswersFile = "eyegrade-answers.csv"

// GradesOptions selects the rows and the order of a grade listing.
type GradesOptions struct {
	// IncludeUngraded adds roster students without an exam.
	IncludeUngraded bool
	Order           model.GradeOrder
	// Language drives name collation in OrderLastName. Zero means language.Und.
	Language language.Tag
}

// GradesIterator yields one row per exam, plus one per ungraded student
// when requested. Answers are loaded as rows are consumed.
func (s *Store) GradesIterator(opts GradesOptions) iter.Seq2[model.GradeRow, error] {
	return func(yield func(model.GradeRow, error) bool) {
		rows, err := s.gradeRows(opts)
		if err != nil {
			yield(model.GradeRow{}, err)
			return
		}
		for _, row := range rows {
			if row.Exam != nil {
				if row.Exam.Answers, err = s.ReadAnswers(row.Exam.ID); err != nil {
					yield(model.GradeRow{}, fmt.Errorf("read answers of exam %d: %w", row.Exam.ID, err))
					return
				}
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Grades collects GradesIterator.
func (s *Store) Grades(opts GradesOptions) ([]model.GradeRow, error) {
	var out []model.GradeRow
	for row, err := range s.GradesIterator(opts) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) gradeRows(opts GradesOptions) ([]model.GradeRow, error) {
	students := s.schema.studentColumns("s")
	query := fmt.Sprintf(`SELECT %s, %s FROM Exams e LEFT JOIN Students s ON e.student = s.db_id`, examColumns, students)
	if opts.IncludeUngraded {
		query += fmt.Sprintf(` UNION ALL SELECT NULL, NULL, NULL, NULL, NULL, NULL, NULL, %s
			FROM Students s LEFT JOIN Exams e ON e.student = s.db_id
			WHERE e.exam_id IS NULL`, students)
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.GradeRow
	for rows.Next() {
		var er examRow
		var sr studentRow
		if err := rows.Scan(append(er.dest(), sr.dest()...)...); err != nil {
			return nil, err
		}
		exam, err := er.exam()
		if err != nil {
			return nil, err
		}
		row := model.GradeRow{Student: sr.student(), Exam: exam}
		if exam != nil {
			exam.Student = row.Student
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortGradeRows(out, opts)
	return out, nil
}

func sortGradeRows(rows []model.GradeRow, opts GradesOptions) {
	byRoster := func(a, b model.GradeRow) int {
		switch {
		case a.Student == nil && b.Student == nil:
			return 0
		case a.Student == nil:
			return 1
		case b.Student == nil:
			return -1
		}
		return rosterOrder(*a.Student, *b.Student)
	}
	byExam := func(a, b model.GradeRow) int {
		switch {
		case a.Exam == nil && b.Exam == nil:
			return 0
		case a.Exam == nil:
			return 1
		case b.Exam == nil:
			return -1
		}
		return cmp.Compare(a.Exam.ID, b.Exam.ID)
	}

	switch opts.Order {
	case model.OrderLastName:
		col := collate.New(opts.Language, collate.IgnoreCase, collate.Loose)
		slices.SortStableFunc(rows, func(a, b model.GradeRow) int {
			if a.Student == nil || b.Student == nil {
				return cmp.Or(byRoster(a, b), byExam(a, b))
			}
			return cmp.Or(
				col.CompareString(a.Student.SortName(), b.Student.SortName()),
				byRoster(a, b),
				byExam(a, b),
			)
		})
	case model.OrderGrading:
		slices.SortStableFunc(rows, func(a, b model.GradeRow) int {
			return cmp.Or(byExam(a, b), byRoster(a, b))
		})
	default:
		slices.SortStableFunc(rows, func(a, b model.GradeRow) int {
			return cmp.Or(byRoster(a, b), byExam(a, b))
		})
	}
}

// SaveLegacyAnswers writes every exam to LegacyAnswersFile: exam id,
// student id (-1 if unknown), model ('?' if unknown), correct and incorrect
// counts, score ('?' without scoring) and the slash-separated answers.
func (s *Store) SaveLegacyAnswers(comma rune) (string, error) {
	path := filepath.Join(s.dir, LegacyAnswersFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", LegacyAnswersFile, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = comma
	n := 0
	for row, err := range s.GradesIterator(GradesOptions{Order: model.OrderGrading}) {
		if err != nil {
			return "", err
		}
		if err := w.Write(legacyRecord(row.Exam)); err != nil {
			return "", err
		}
		n++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	slog.Info("saved legacy answers", "path", path, "exams", n)
	return path, nil
}

func legacyRecord(exam *model.Exam) []string {
	studentID := "-1"
	if exam.Student != nil && exam.Student.StudentID != "" {
		studentID = exam.Student.StudentID
	}
	score := "?"
	if exam.Grade.Score != nil {
		score = strconv.FormatFloat(*exam.Grade.Score, 'f', -1, 64)
	}
	answers := make([]string, len(exam.Answers))
	for i, a := range exam.Answers {
		answers[i] = strconv.Itoa(a)
	}
	return []string{
		strconv.FormatInt(exam.ID, 10),
		studentID,
		exam.Model.String(),
		strconv.Itoa(exam.Grade.Correct),
		strconv.Itoa(exam.Grade.Incorrect),
		score,
		strings.Join(answers, "/"),
	}
}
