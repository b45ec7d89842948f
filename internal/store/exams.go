package store

import (
	"database/sql"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/permute"
	"github.com/pavelanni/omrgrade/internal/scoring"
)

// ErrInvalidExam is returned for exam data that does not fit the session.
var ErrInvalidExam = errors.New("invalid exam")

const examColumns = `e.exam_id, e.student, e.model, e.correct, e.incorrect, e.blank, e.score`

// examRow holds the Exams columns of a query, all nullable because grade
// listings outer-join them.
type examRow struct {
	id, student               sql.NullInt64
	model                     sql.NullString
	correct, incorrect, blank sql.NullInt64
	score                     sql.NullFloat64
}

func (r *examRow) dest() []any {
	return []any{&r.id, &r.student, &r.model, &r.correct, &r.incorrect, &r.blank, &r.score}
}

func (r *examRow) exam() (*model.Exam, error) {
	if !r.id.Valid {
		return nil, nil
	}
	sym, err := model.ParseSymbol(r.model.String)
	if err != nil {
		return nil, fmt.Errorf("exam %d: %w", r.id.Int64, err)
	}
	e := &model.Exam{
		ID:    r.id.Int64,
		Model: sym,
		Grade: model.Grade{
			Correct:   int(r.correct.Int64),
			Incorrect: int(r.incorrect.Int64),
			Blank:     int(r.blank.Int64),
		},
	}
	if r.score.Valid {
		score := r.score.Float64
		e.Grade.Score = &score
	}
	return e, nil
}

// NextExamID returns one more than the largest stored exam id, or 1.
// Ids of removed exams other than the last one are not reused.
func (s *Store) NextExamID() (int64, error) {
	return nextExamID(s.db)
}

func nextExamID(q querier) (int64, error) {
	var last sql.NullInt64
	if err := q.QueryRow(`SELECT MAX(exam_id) FROM Exams`).Scan(&last); err != nil {
		return 0, err
	}
	if !last.Valid {
		return 1, nil
	}
	return last.Int64 + 1, nil
}

// StoreExam records a graded exam. An exam with ID 0 gets NextExamID. A
// student not yet in the database is inserted in the same transaction.
// The raw and drawn captures are written after commit; a nil raw image
// stores a placeholder.
func (s *Store) StoreExam(exam *model.Exam, raw image.Image) error {
	if err := s.checkExam(exam); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The caller's exam and student only change once the transaction commits.
	stored := *exam
	if stored.ID == 0 {
		if stored.ID, err = nextExamID(tx); err != nil {
			return err
		}
	}
	studentDBID, newStudent, err := s.prepareStudent(tx, &stored.Student)
	if err != nil {
		return err
	}
	var modelText any
	if stored.Model != model.Unknown {
		modelText = stored.Model.String()
	}
	if _, err := tx.Exec(
		`INSERT INTO Exams (exam_id, student, model, correct, incorrect, blank, score)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, studentDBID, modelText,
		stored.Grade.Correct, stored.Grade.Incorrect, stored.Grade.Blank, scoreValue(stored.Grade.Score),
	); err != nil {
		return fmt.Errorf("insert exam %d: %w", stored.ID, err)
	}
	if err := insertAnswers(tx, &stored); err != nil {
		return err
	}
	if err := insertAnswerCells(tx, &stored); err != nil {
		return err
	}
	if err := s.schema.insertIDCells(tx, stored.ID, stored.IDCells); err != nil {
		return fmt.Errorf("insert id cells: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	exam.ID = stored.ID
	if newStudent {
		*exam.Student = *stored.Student
		s.addStudent(*exam.Student)
	}
	slog.Info("stored exam", "id", exam.ID, "model", exam.Model.String(),
		"correct", exam.Grade.Correct, "incorrect", exam.Grade.Incorrect)
	return s.saveCaptures(exam, raw)
}

// prepareStudent inserts *st inside tx when it is not stored yet. The insert
// works on a copy that replaces *st, leaving the original untouched until the
// caller commits and copies it back.
func (s *Store) prepareStudent(tx *sql.Tx, st **model.Student) (dbID any, inserted bool, err error) {
	if *st == nil {
		return nil, false, nil
	}
	if (*st).InDatabase() {
		return (*st).DBID, false, nil
	}
	c := **st
	if err := s.schema.insertStudent(tx, &c); err != nil {
		return nil, false, fmt.Errorf("insert student: %w", err)
	}
	*st = &c
	return c.DBID, true, nil
}

func (s *Store) checkExam(exam *model.Exam) error {
	n := s.config.NumQuestions()
	if len(exam.Answers) != n {
		return fmt.Errorf("%w: %d answers for %d questions", ErrInvalidExam, len(exam.Answers), n)
	}
	if exam.AnswerCells != nil && len(exam.AnswerCells) != n {
		return fmt.Errorf("%w: %d answer cell rows for %d questions", ErrInvalidExam, len(exam.AnswerCells), n)
	}
	if !exam.Model.Valid() {
		return fmt.Errorf("%w: model %q", model.ErrInvalidModel, exam.Model)
	}
	return nil
}

func insertAnswers(tx *sql.Tx, exam *model.Exam) error {
	stmt, err := tx.Prepare(`INSERT INTO Answers (exam_id, question, answer) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for q, a := range exam.Answers {
		if _, err := stmt.Exec(exam.ID, q, a); err != nil {
			return fmt.Errorf("insert answer %d: %w", q, err)
		}
	}
	return nil
}

func insertAnswerCells(tx *sql.Tx, exam *model.Exam) error {
	stmt, err := tx.Prepare(
		`INSERT INTO AnswerCells (exam_id, question, choice, center_x, center_y, diagonal,
		 lux, luy, rux, ruy, ldx, ldy, rdx, rdy)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for row, choices := range exam.AnswerCells {
		for choice, c := range choices {
			if _, err := stmt.Exec(exam.ID, row, choice, c.Center.X, c.Center.Y, c.Diagonal,
				c.Corners[0].X, c.Corners[0].Y, c.Corners[1].X, c.Corners[1].Y,
				c.Corners[2].X, c.Corners[2].Y, c.Corners[3].X, c.Corners[3].Y,
			); err != nil {
				return fmt.Errorf("insert answer cell %d/%d: %w", row, choice, err)
			}
		}
	}
	return nil
}

func scoreValue(score *float64) any {
	if score == nil {
		return nil
	}
	return *score
}

// GetExam loads an exam with its answers, cell geometry and student.
func (s *Store) GetExam(id int64) (*model.Exam, error) {
	var r examRow
	err := s.db.QueryRow(`SELECT `+examColumns+` FROM Exams e WHERE e.exam_id = ?`, id).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrExamNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	exam, err := r.exam()
	if err != nil {
		return nil, err
	}
	if r.student.Valid {
		exam.Student = s.studentByDBID(r.student.Int64)
	}
	if exam.Answers, err = s.ReadAnswers(id); err != nil {
		return nil, err
	}
	if exam.AnswerCells, err = s.readAnswerCells(id); err != nil {
		return nil, err
	}
	if exam.IDCells, err = s.schema.loadIDCells(s.db, id); err != nil {
		return nil, err
	}
	s.markFilled(exam)
	return exam, nil
}

// ListExams returns every stored exam with its answers, by exam id.
func (s *Store) ListExams() ([]*model.Exam, error) {
	rows, err := s.db.Query(`SELECT ` + examColumns + ` FROM Exams e ORDER BY e.exam_id`)
	if err != nil {
		return nil, err
	}
	var exams []*model.Exam
	for rows.Next() {
		var r examRow
		if err := rows.Scan(r.dest()...); err != nil {
			rows.Close()
			return nil, err
		}
		exam, err := r.exam()
		if err != nil {
			rows.Close()
			return nil, err
		}
		if r.student.Valid {
			exam.Student = s.studentByDBID(r.student.Int64)
		}
		exams = append(exams, exam)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}
	for _, exam := range exams {
		if exam.Answers, err = s.ReadAnswers(exam.ID); err != nil {
			return nil, err
		}
	}
	return exams, nil
}

// ReadAnswers returns the canonical answers of an exam. Questions without a
// stored answer read as blank.
func (s *Store) ReadAnswers(examID int64) ([]int, error) {
	return readAnswers(s.db, examID, s.config.NumQuestions())
}

func readAnswers(q querier, examID int64, n int) ([]int, error) {
	rows, err := q.Query(`SELECT question, answer FROM Answers WHERE exam_id = ?`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	answers := make([]int, n)
	for rows.Next() {
		var question, answer int
		if err := rows.Scan(&question, &answer); err != nil {
			return nil, err
		}
		if question < 0 || question >= n {
			return nil, fmt.Errorf("%w: exam %d answers question %d", ErrSessionInvalid, examID, question)
		}
		answers[question] = answer
	}
	return answers, rows.Err()
}

func (s *Store) readAnswerCells(examID int64) ([][]model.AnswerCell, error) {
	rows, err := s.db.Query(
		`SELECT question, choice, center_x, center_y, diagonal,
		 COALESCE(lux, 0), COALESCE(luy, 0), COALESCE(rux, 0), COALESCE(ruy, 0),
		 COALESCE(ldx, 0), COALESCE(ldy, 0), COALESCE(rdx, 0), COALESCE(rdy, 0)
		 FROM AnswerCells WHERE exam_id = ?`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := s.config.ChoiceCounts()
	var cells [][]model.AnswerCell
	for rows.Next() {
		var row, choice int
		var c model.AnswerCell
		if err := rows.Scan(&row, &choice, &c.Center.X, &c.Center.Y, &c.Diagonal,
			&c.Corners[0].X, &c.Corners[0].Y, &c.Corners[1].X, &c.Corners[1].Y,
			&c.Corners[2].X, &c.Corners[2].Y, &c.Corners[3].X, &c.Corners[3].Y,
		); err != nil {
			return nil, err
		}
		if row < 0 || row >= len(counts) || choice < 0 || choice >= counts[row] {
			return nil, fmt.Errorf("%w: exam %d cell %d/%d", ErrSessionInvalid, examID, row, choice)
		}
		if cells == nil {
			cells = make([][]model.AnswerCell, len(counts))
			for i, n := range counts {
				cells[i] = make([]model.AnswerCell, n)
			}
		}
		cells[row][choice] = c
	}
	return cells, rows.Err()
}

// markFilled derives the filled flag of loaded cells from the canonical answers.
func (s *Store) markFilled(exam *model.Exam) {
	for _, row := range exam.AnswerCells {
		for i := range row {
			row[i].Filled = false
		}
	}
	key := s.config.Key(exam.Model)
	if key == nil || exam.AnswerCells == nil {
		return
	}
	perm, err := permute.FromRecords(key.Questions)
	if err != nil {
		return
	}
	presented, err := perm.Render(exam.Answers)
	if err != nil {
		return
	}
	for row, a := range presented {
		if a > 0 && a <= len(exam.AnswerCells[row]) {
			exam.AnswerCells[row][a-1].Filled = true
		}
	}
}

// UpdateAnswer changes the canonical answer to one question, rescores the
// exam and redraws its capture.
func (s *Store) UpdateAnswer(examID int64, question, answer int) error {
	exam, err := s.GetExam(examID)
	if err != nil {
		return err
	}
	key := s.config.Key(exam.Model)
	if key == nil {
		return fmt.Errorf("%w: exam %d has no known model", model.ErrInvalidModel, examID)
	}
	if question < 0 || question >= len(exam.Answers) {
		return fmt.Errorf("%w: question %d", ErrInvalidExam, question)
	}
	if answer < 0 || answer > len(key.Questions[question].Choices) {
		return fmt.Errorf("%w: answer %d to question %d", ErrInvalidExam, answer, question)
	}
	exam.Answers[question] = answer
	grade, err := scoreExam(&s.config, key, exam.Answers)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.Exec(`UPDATE Answers SET answer = ? WHERE exam_id = ? AND question = ?`, answer, examID, question)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		if _, err := tx.Exec(`INSERT INTO Answers (exam_id, question, answer) VALUES (?, ?, ?)`, examID, question, answer); err != nil {
			return err
		}
	}
	if err := updateGrade(tx, examID, grade); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	exam.Grade = grade
	s.markFilled(exam)
	slog.Info("updated answer", "exam", examID, "question", question, "answer", answer)
	return s.redraw(exam, "")
}

// UpdateStudent assigns the exam to another student, inserting the student
// if needed. A nil student leaves the exam unassigned. The drawn capture is
// renamed accordingly.
func (s *Store) UpdateStudent(examID int64, st *model.Student) error {
	exam, err := s.GetExam(examID)
	if err != nil {
		return err
	}
	oldPath := s.drawnPath(exam)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	pending := st
	studentDBID, newStudent, err := s.prepareStudent(tx, &pending)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE Exams SET student = ? WHERE exam_id = ?`, studentDBID, examID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if newStudent {
		*st = *pending
		s.addStudent(*st)
	}
	exam.Student = st
	slog.Info("updated exam student", "exam", examID, "student", studentLabel(st))
	return s.redraw(exam, oldPath)
}

// RemoveExam deletes an exam and its captures. Missing capture files are ignored.
func (s *Store) RemoveExam(examID int64) error {
	exam, err := s.GetExam(examID)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"IdCells", "AnswerCells", "Answers", "Exams"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE exam_id = ?`, examID); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("removed exam", "id", examID)
	return s.removeCaptures(exam)
}

func updateGrade(q querier, examID int64, g model.Grade) error {
	_, err := q.Exec(
		`UPDATE Exams SET correct = ?, incorrect = ?, blank = ?, score = ? WHERE exam_id = ?`,
		g.Correct, g.Incorrect, g.Blank, scoreValue(g.Score), examID,
	)
	return err
}

func scoreExam(cfg *model.ExamConfig, key *model.ModelKey, answers []int) (model.Grade, error) {
	return scoring.Score(answers, key.Solutions(), scoring.FromKey(cfg, key))
}

func studentLabel(st *model.Student) string {
	if st == nil {
		return ""
	}
	return st.StudentID
}
