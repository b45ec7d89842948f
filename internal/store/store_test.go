package store

import (
	"database/sql"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/pavelanni/omrgrade/internal/model"
)

// testConfig has three questions with three choices each. Model A is printed
// in canonical order; model B shows question 2 first, then 0, then 1.
func testConfig() *model.ExamConfig {
	return &model.ExamConfig{
		Dimensions:  []model.Dimension{{Choices: 3, Questions: 3}},
		IDNumDigits: 3,
		ScoringMode: model.ScoringWeights,
		BaseWeights: model.Weights{Correct: 1, Incorrect: -0.5, Blank: 0},
		Models: map[model.Symbol]*model.ModelKey{
			'A': {Questions: []model.QuestionRecord{
				{Solution: model.Solution{1}, Position: 0, Choices: []int{1, 2, 3}, Weight: 1},
				{Solution: model.Solution{2}, Position: 1, Choices: []int{1, 2, 3}, Weight: 1},
				{Solution: model.Solution{3}, Position: 2, Choices: []int{1, 2, 3}, Weight: 1},
			}},
			'B': {Questions: []model.QuestionRecord{
				{Solution: model.Solution{1}, Position: 1, Choices: []int{1, 2, 3}, Weight: 1},
				{Solution: model.Solution{2}, Position: 2, Choices: []int{2, 3, 1}, Weight: 1},
				{Solution: model.Solution{3}, Position: 0, Choices: []int{3, 1, 2}, Weight: 1},
			}},
		},
	}
}

func testGroups() []model.StudentGroup {
	return []model.StudentGroup{{
		Name: "class.csv",
		Students: []model.Student{
			{StudentID: "100", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
			{StudentID: "101", FirstName: "Alan", LastName: "Turing"},
			{StudentID: "102", FirstName: "Grace", LastName: "Hopper"},
		},
	}}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Create(filepath.Join(t.TempDir(), "session"), testConfig(), testGroups())
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testImage() image.Image {
	return imaging.New(200, 120, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
}

func testCells() [][]model.AnswerCell {
	cells := make([][]model.AnswerCell, 3)
	for row := range cells {
		cells[row] = make([]model.AnswerCell, 3)
		for c := range cells[row] {
			x, y := 20+30*c, 20+30*row
			cells[row][c] = model.AnswerCell{
				Center:   model.Point{X: x, Y: y},
				Diagonal: 10,
				Corners: model.Corners{
					{X: x - 5, Y: y - 5}, {X: x + 5, Y: y - 5},
					{X: x - 5, Y: y + 5}, {X: x + 5, Y: y + 5},
				},
			}
		}
	}
	return cells
}

func storeTestExam(t *testing.T, s *Store, sym model.Symbol, answers []int, st *model.Student) *model.Exam {
	t.Helper()
	exam := &model.Exam{Student: st, Model: sym, Answers: answers, AnswerCells: testCells()}
	if key := s.ExamConfig().Key(sym); key != nil {
		grade, err := scoreExam(s.ExamConfig(), key, answers)
		if err != nil {
			t.Fatalf("scoreExam: %v", err)
		}
		exam.Grade = grade
	}
	if err := s.StoreExam(exam, testImage()); err != nil {
		t.Fatalf("StoreExam: %v", err)
	}
	return exam
}

func mustStudent(t *testing.T, s *Store, id string) *model.Student {
	t.Helper()
	st, ok := s.FindStudent(id)
	if !ok {
		t.Fatalf("student %s not found", id)
	}
	return st
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCreateAndOpen(t *testing.T) {
	s := newTestStore(t)
	dir := s.Dir()
	if s.SchemaVersion() != currentSchema {
		t.Errorf("schema version = %d, want %d", s.SchemaVersion(), currentSchema)
	}
	s.Close()

	for _, path := range []string{dir, filepath.Join(dir, DBFile)} {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open(%s): %v", path, err)
		}
		cfg := s.ExamConfig()
		if cfg.NumQuestions() != 3 || len(cfg.Models) != 2 {
			t.Errorf("unexpected config: %d questions, %d models", cfg.NumQuestions(), len(cfg.Models))
		}
		if cfg.BaseWeights.Incorrect != -0.5 || cfg.ScoringMode != model.ScoringWeights {
			t.Errorf("unexpected scoring %s %+v", cfg.ScoringMode, cfg.BaseWeights)
		}
		if cfg.CapturePattern != model.DefaultCapturePattern {
			t.Errorf("capture pattern = %q", cfg.CapturePattern)
		}
		b := cfg.Key('B')
		if b.Questions[1].Position != 2 || !slices.Equal(b.Questions[1].Choices, []int{2, 3, 1}) {
			t.Errorf("model B question 1 = %+v", b.Questions[1])
		}

		groups, err := s.Groups()
		if err != nil {
			t.Fatalf("Groups: %v", err)
		}
		if len(groups) != 2 || groups[0].Name != model.DefaultGroupName || groups[1].Name != "class.csv" {
			t.Fatalf("unexpected groups %+v", groups)
		}
		if len(groups[1].Students) != 3 || groups[1].Students[2].StudentID != "102" || groups[1].Students[2].SequenceNum != 2 {
			t.Errorf("unexpected roster %+v", groups[1].Students)
		}
		ada := mustStudent(t, s, "100")
		if ada.Email != "ada@example.com" || ada.FullName() != "Ada Lovelace" {
			t.Errorf("unexpected student %+v", ada)
		}
		s.Close()
	}
}

func TestCreateRejectsNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(dir, testConfig(), nil); !errors.Is(err, ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
}

func TestCreateRejectsBadKey(t *testing.T) {
	cfg := testConfig()
	cfg.Models['A'].Questions[0].Position = 1
	if _, err := Create(filepath.Join(t.TempDir(), "s"), cfg, nil); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		if _, err := Open(t.TempDir()); !errors.Is(err, ErrNoSessionDB) {
			t.Errorf("expected ErrNoSessionDB, got %v", err)
		}
	})

	t.Run("not a database", func(t *testing.T) {
		dir := t.TempDir()
		for _, sub := range []string{CapturesDir, InternalDir} {
			if err := os.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		if err := os.WriteFile(filepath.Join(dir, DBFile), []byte("just some text, not sqlite"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Open(dir); !errors.Is(err, ErrSessionInvalid) {
			t.Errorf("expected ErrSessionInvalid, got %v", err)
		}
	})

	t.Run("missing captures", func(t *testing.T) {
		s := newTestStore(t)
		s.Close()
		if err := os.RemoveAll(filepath.Join(s.Dir(), CapturesDir)); err != nil {
			t.Fatal(err)
		}
		if _, err := Open(s.Dir()); !errors.Is(err, ErrCorruptSessionDir) {
			t.Errorf("expected ErrCorruptSessionDir, got %v", err)
		}
	})

	t.Run("unlisted schema version", func(t *testing.T) {
		s := newTestStore(t)
		s.Close()
		execRaw(t, filepath.Join(s.Dir(), DBFile), `UPDATE Session SET db_schema_version = 99`)
		_, err := Open(s.Dir())
		if !errors.Is(err, ErrIncompatibleSchema) {
			t.Fatalf("expected ErrIncompatibleSchema, got %v", err)
		}
		var schemaErr *IncompatibleSchemaError
		if !errors.As(err, &schemaErr) || schemaErr.Found != 99 || schemaErr.Min != minSchema || schemaErr.Max != currentSchema {
			t.Errorf("unexpected error detail %+v", schemaErr)
		}
	})

	t.Run("empty session table", func(t *testing.T) {
		s := newTestStore(t)
		s.Close()
		execRaw(t, filepath.Join(s.Dir(), DBFile), `DELETE FROM Session`)
		if _, err := Open(s.Dir()); !errors.Is(err, ErrSessionInvalid) {
			t.Errorf("expected ErrSessionInvalid, got %v", err)
		}
	})
}

func execRaw(t *testing.T, dbPath string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

func TestNextExamID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.NextExamID()
	if err != nil {
		t.Fatalf("NextExamID: %v", err)
	}
	if id != 1 {
		t.Errorf("empty session: NextExamID = %d, want 1", id)
	}
	for want := int64(1); want <= 3; want++ {
		exam := storeTestExam(t, s, 'A', []int{1, 2, 3}, nil)
		if exam.ID != want {
			t.Errorf("exam id = %d, want %d", exam.ID, want)
		}
	}
	if err := s.RemoveExam(2); err != nil {
		t.Fatalf("RemoveExam: %v", err)
	}
	id, err = s.NextExamID()
	if err != nil {
		t.Fatalf("NextExamID: %v", err)
	}
	if id != 4 {
		t.Errorf("NextExamID = %d, want 4", id)
	}
}

func TestStoreThenRemoveExam(t *testing.T) {
	s := newTestStore(t)
	exam := storeTestExam(t, s, 'A', []int{1, 2, 1}, mustStudent(t, s, "101"))

	drawn := filepath.Join(s.Dir(), CapturesDir, "exam-101-1.png")
	raw := filepath.Join(s.Dir(), InternalDir, "raw-1.png")
	if !fileExists(drawn) || !fileExists(raw) {
		t.Fatalf("captures not written: drawn %v raw %v", fileExists(drawn), fileExists(raw))
	}

	if err := s.RemoveExam(exam.ID); err != nil {
		t.Fatalf("RemoveExam: %v", err)
	}
	if _, err := s.GetExam(exam.ID); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("expected ErrExamNotFound, got %v", err)
	}
	for _, table := range []string{"Exams", "Answers", "AnswerCells", "IdCells"} {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after removal", table, n)
		}
	}
	if fileExists(drawn) || fileExists(raw) {
		t.Error("captures left behind after removal")
	}
	if err := s.RemoveExam(exam.ID); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("second removal: expected ErrExamNotFound, got %v", err)
	}
}

func TestRemoveExamToleratesMissingFiles(t *testing.T) {
	s := newTestStore(t)
	exam := storeTestExam(t, s, 'A', []int{1, 2, 3}, nil)
	if err := os.Remove(filepath.Join(s.Dir(), InternalDir, "raw-1.png")); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveExam(exam.ID); err != nil {
		t.Errorf("RemoveExam: %v", err)
	}
}

func TestStoreExamInsertsNewStudents(t *testing.T) {
	s := newTestStore(t)
	first := model.AdHocStudent("900")
	storeTestExam(t, s, 'A', []int{1, 2, 3}, first)
	second := model.AdHocStudent("901")
	storeTestExam(t, s, 'B', []int{0, 0, 0}, second)

	if !first.InDatabase() || first.GroupID != model.DefaultGroupID || first.SequenceNum != 0 {
		t.Errorf("first ad hoc student %+v", first)
	}
	if second.SequenceNum != 1 {
		t.Errorf("second ad hoc student has sequence %d, want 1", second.SequenceNum)
	}
	if st, ok := s.FindStudent("901"); !ok || st.DBID != second.DBID {
		t.Errorf("FindStudent(901) = %+v, %v", st, ok)
	}
	exam, err := s.GetExam(2)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if exam.Student == nil || exam.Student.StudentID != "901" {
		t.Errorf("exam student = %+v", exam.Student)
	}
}

func TestStoreExamValidation(t *testing.T) {
	s := newTestStore(t)
	err := s.StoreExam(&model.Exam{Model: 'A', Answers: []int{1, 2}}, nil)
	if !errors.Is(err, ErrInvalidExam) {
		t.Errorf("expected ErrInvalidExam, got %v", err)
	}
	id, _ := s.NextExamID()
	if id != 1 {
		t.Errorf("rejected exam consumed an id: next is %d", id)
	}
}

func TestStoreExamFailureKeepsCallerState(t *testing.T) {
	s := newTestStore(t)
	storeTestExam(t, s, 'A', []int{1, 2, 3}, nil)

	st := model.AdHocStudent("999")
	exam := &model.Exam{ID: 1, Student: st, Model: 'A', Answers: []int{1, 2, 3}, AnswerCells: testCells()}
	if err := s.StoreExam(exam, testImage()); err == nil {
		t.Fatal("storing a duplicate exam id succeeded")
	}
	if st.InDatabase() || st.SequenceNum != -1 {
		t.Errorf("student changed by a failed store: %+v", st)
	}
	if _, ok := s.FindStudent("999"); ok {
		t.Error("failed store added the student to the roster")
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM Students WHERE student_id = '999'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d student rows left by a failed store", n)
	}

	exam.ID = 0
	if err := s.StoreExam(exam, testImage()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if exam.ID != 2 || !st.InDatabase() || st.SequenceNum != 0 {
		t.Errorf("after retry exam %d, student %+v", exam.ID, st)
	}
	if got, ok := s.FindStudent("999"); !ok || got.DBID != st.DBID {
		t.Errorf("FindStudent(999) = %+v, %v", got, ok)
	}
}

func TestGetExam(t *testing.T) {
	s := newTestStore(t)
	stored := &model.Exam{
		Model:       'B',
		Answers:     []int{2, 2, 0},
		AnswerCells: testCells(),
		IDCells: []model.IDCell{
			{Corners: model.Corners{{X: 1, Y: 2}, {X: 3, Y: 2}, {X: 1, Y: 4}, {X: 3, Y: 4}}, Digit: 7},
			{Corners: model.Corners{{X: 5, Y: 2}, {X: 7, Y: 2}, {X: 5, Y: 4}, {X: 7, Y: 4}}, Digit: -1},
		},
	}
	if err := s.StoreExam(stored, nil); err != nil {
		t.Fatalf("StoreExam: %v", err)
	}
	exam, err := s.GetExam(stored.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if exam.Model != 'B' || !slices.Equal(exam.Answers, []int{2, 2, 0}) {
		t.Errorf("unexpected exam %+v", exam)
	}
	if exam.Student != nil {
		t.Errorf("exam without student loaded student %+v", exam.Student)
	}
	if len(exam.IDCells) != 2 || exam.IDCells[0].Digit != 7 || exam.IDCells[1].Digit != -1 || exam.IDCells[1].Corners[3].X != 7 {
		t.Errorf("unexpected id cells %+v", exam.IDCells)
	}
	// Model B: row 1 shows question 0 in order, row 2 shows question 1 as 2,3,1.
	var filled [][2]int
	for row, choices := range exam.AnswerCells {
		for c, cell := range choices {
			if cell.Filled {
				filled = append(filled, [2]int{row, c})
			}
		}
	}
	want := [][2]int{{1, 1}, {2, 0}}
	if !slices.Equal(filled, want) {
		t.Errorf("filled cells = %v, want %v", filled, want)
	}
	if exam.AnswerCells[2][1].Center != (model.Point{X: 50, Y: 80}) {
		t.Errorf("cell geometry not restored: %+v", exam.AnswerCells[2][1])
	}

	exams, err := s.ListExams()
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 1 || !slices.Equal(exams[0].Answers, []int{2, 2, 0}) {
		t.Errorf("ListExams = %+v", exams)
	}
}

func TestUpdateAnswer(t *testing.T) {
	s := newTestStore(t)
	exam := storeTestExam(t, s, 'A', []int{1, 2, 1}, nil)
	if *exam.Grade.Score != 1.5 {
		t.Fatalf("initial score = %v", *exam.Grade.Score)
	}
	if err := s.UpdateAnswer(exam.ID, 2, 3); err != nil {
		t.Fatalf("UpdateAnswer: %v", err)
	}
	got, err := s.GetExam(exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if !slices.Equal(got.Answers, []int{1, 2, 3}) || got.Grade.Correct != 3 || *got.Grade.Score != 3 {
		t.Errorf("after update: answers %v grade %+v", got.Answers, got.Grade)
	}
	if err := s.UpdateAnswer(exam.ID, 2, 4); !errors.Is(err, ErrInvalidExam) {
		t.Errorf("expected ErrInvalidExam for choice 4, got %v", err)
	}
	if err := s.UpdateAnswer(99, 0, 1); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("expected ErrExamNotFound, got %v", err)
	}
}

func TestUpdateStudentRenamesCapture(t *testing.T) {
	s := newTestStore(t)
	exam := storeTestExam(t, s, 'A', []int{1, 2, 3}, nil)
	oldPath := filepath.Join(s.Dir(), CapturesDir, "exam-noid-1.png")
	if !fileExists(oldPath) {
		t.Fatalf("missing capture %s", oldPath)
	}
	if err := s.UpdateStudent(exam.ID, mustStudent(t, s, "100")); err != nil {
		t.Fatalf("UpdateStudent: %v", err)
	}
	if fileExists(oldPath) {
		t.Error("old capture still present")
	}
	if !fileExists(filepath.Join(s.Dir(), CapturesDir, "exam-100-1.png")) {
		t.Error("renamed capture missing")
	}
	got, err := s.GetExam(exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.Student == nil || got.Student.StudentID != "100" {
		t.Errorf("exam student = %+v", got.Student)
	}
}

func examScore(t *testing.T, s *Store, id int64) float64 {
	t.Helper()
	exam, err := s.GetExam(id)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	return *exam.Grade.Score
}

func TestSolutionChangesRescore(t *testing.T) {
	s := newTestStore(t)
	e1 := storeTestExam(t, s, 'A', []int{1, 2, 1}, nil)
	e2 := storeTestExam(t, s, 'B', []int{2, 2, 0}, nil)
	if examScore(t, s, e1.ID) != 1.5 || examScore(t, s, e2.ID) != 0.5 {
		t.Fatalf("unexpected initial scores")
	}

	steps := []struct {
		name   string
		apply  func() error
		s1, s2 float64
	}{
		{"void question 0", func() error { return s.VoidQuestion(0) }, 0.5, 1},
		{"set solution 0 to 2", func() error { return s.SetSolution(0, 2) }, 0, 2},
		{"accept 1 as well", func() error { return s.AddAlternateSolution(0, 1) }, 1.5, 2},
	}
	for _, step := range steps {
		if err := step.apply(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got := examScore(t, s, e1.ID); got != step.s1 {
			t.Errorf("%s: exam 1 score = %v, want %v", step.name, got, step.s1)
		}
		if got := examScore(t, s, e2.ID); got != step.s2 {
			t.Errorf("%s: exam 2 score = %v, want %v", step.name, got, step.s2)
		}
	}

	if err := s.SetSolution(0, 4); !errors.Is(err, ErrQuestionRange) {
		t.Errorf("expected ErrQuestionRange, got %v", err)
	}
	if err := s.VoidQuestion(3); !errors.Is(err, ErrQuestionRange) {
		t.Errorf("expected ErrQuestionRange, got %v", err)
	}

	s.Close()
	reopened, err := Open(s.Dir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	for _, sym := range []model.Symbol{'A', 'B'} {
		sol := reopened.ExamConfig().Key(sym).Questions[0].Solution
		if !slices.Equal(sol, model.Solution{2, 1}) {
			t.Errorf("model %s solution = %v, want [2 1]", sym, sol)
		}
	}
}

func gradeIDs(t *testing.T, s *Store, opts GradesOptions) []string {
	t.Helper()
	rows, err := s.Grades(opts)
	if err != nil {
		t.Fatalf("Grades: %v", err)
	}
	var ids []string
	for _, r := range rows {
		switch {
		case r.Student != nil:
			ids = append(ids, r.Student.StudentID)
		default:
			ids = append(ids, "-")
		}
	}
	return ids
}

func TestGradesOrders(t *testing.T) {
	s := newTestStore(t)
	storeTestExam(t, s, 'A', []int{1, 2, 3}, mustStudent(t, s, "101"))
	storeTestExam(t, s, 'A', []int{1, 0, 0}, mustStudent(t, s, "100"))
	zuse := model.AdHocStudent("999")
	zuse.FirstName, zuse.LastName = "Konrad", "Zuse"
	storeTestExam(t, s, 'B', []int{0, 0, 0}, zuse)

	tests := []struct {
		name string
		opts GradesOptions
		want []string
	}{
		{"roster", GradesOptions{Order: model.OrderRoster}, []string{"999", "100", "101"}},
		{"roster with ungraded", GradesOptions{Order: model.OrderRoster, IncludeUngraded: true}, []string{"999", "100", "101", "102"}},
		{"grading", GradesOptions{Order: model.OrderGrading}, []string{"101", "100", "999"}},
		{"grading with ungraded", GradesOptions{Order: model.OrderGrading, IncludeUngraded: true}, []string{"101", "100", "999", "102"}},
		{"last name", GradesOptions{Order: model.OrderLastName}, []string{"100", "101", "999"}},
		{"last name with ungraded", GradesOptions{Order: model.OrderLastName, IncludeUngraded: true}, []string{"102", "100", "101", "999"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gradeIDs(t, s, tt.opts); !slices.Equal(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}

	rows, err := s.Grades(GradesOptions{Order: model.OrderGrading, IncludeUngraded: true})
	if err != nil {
		t.Fatalf("Grades: %v", err)
	}
	if rows[0].Exam == nil || !slices.Equal(rows[0].Exam.Answers, []int{1, 2, 3}) {
		t.Errorf("first row exam = %+v", rows[0].Exam)
	}
	if rows[3].Exam != nil {
		t.Errorf("ungraded student has exam %+v", rows[3].Exam)
	}

	n := 0
	for _, err := range s.GradesIterator(GradesOptions{}) {
		if err != nil {
			t.Fatalf("GradesIterator: %v", err)
		}
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterator did not stop early")
	}
}

func TestSaveLegacyAnswers(t *testing.T) {
	s := newTestStore(t)
	storeTestExam(t, s, 'A', []int{1, 2, 1}, mustStudent(t, s, "101"))
	if err := s.StoreExam(&model.Exam{Model: model.Unknown, Answers: []int{0, 0, 0}}, nil); err != nil {
		t.Fatalf("StoreExam: %v", err)
	}
	path, err := s.SaveLegacyAnswers(',')
	if err != nil {
		t.Fatalf("SaveLegacyAnswers: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{
		"1,101,A,2,1,1.5,1/2/1",
		"2,-1,?,0,0,?,0/0/0",
	}
	if !slices.Equal(lines, want) {
		t.Errorf("legacy answers = %q, want %q", lines, want)
	}
}

func TestDrawnImage(t *testing.T) {
	s := newTestStore(t)
	exam := storeTestExam(t, s, 'A', []int{1, 2, 3}, nil)
	img, err := s.DrawnImage(exam.ID)
	if err != nil {
		t.Fatalf("DrawnImage: %v", err)
	}
	if img.Bounds().Dx() != 200 {
		t.Errorf("drawn image width = %d", img.Bounds().Dx())
	}
	if err := os.Remove(filepath.Join(s.Dir(), CapturesDir, "exam-noid-1.png")); err != nil {
		t.Fatal(err)
	}
	img, err = s.DrawnImage(exam.ID)
	if err != nil {
		t.Fatalf("DrawnImage after removal: %v", err)
	}
	if img.Bounds().Dx() != 640 {
		t.Errorf("expected placeholder, got width %d", img.Bounds().Dx())
	}
}

func TestStoreNewStudent(t *testing.T) {
	s := newTestStore(t)
	groups, err := s.Groups()
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	st := &model.Student{StudentID: "103", Name: "Barbara Liskov", GroupID: groups[1].ID, SequenceNum: -1}
	if err := s.StoreNewStudent(st); err != nil {
		t.Fatalf("StoreNewStudent: %v", err)
	}
	if st.SequenceNum != 3 {
		t.Errorf("sequence = %d, want 3", st.SequenceNum)
	}
	if err := s.StoreNewStudent(st); err == nil {
		t.Error("storing the same student twice succeeded")
	}
	got := mustStudent(t, s, "103")
	if got.FullName() != "Barbara Liskov" {
		t.Errorf("full name = %q", got.FullName())
	}
}

func TestStoreNewStudentRejectsTakenSequence(t *testing.T) {
	s := newTestStore(t)
	groups, err := s.Groups()
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	err = s.StoreNewStudent(&model.Student{StudentID: "200", GroupID: groups[1].ID})
	if !errors.Is(err, ErrDuplicateSequence) {
		t.Fatalf("expected ErrDuplicateSequence, got %v", err)
	}
	if _, ok := s.FindStudent("200"); ok {
		t.Error("rejected student is in the roster")
	}
	st := &model.Student{StudentID: "200", GroupID: groups[1].ID, SequenceNum: 7}
	if err := s.StoreNewStudent(st); err != nil {
		t.Fatalf("StoreNewStudent: %v", err)
	}
	if got := mustStudent(t, s, "200"); got.SequenceNum != 7 {
		t.Errorf("sequence = %d, want 7", got.SequenceNum)
	}
}

func TestCaptureName(t *testing.T) {
	ada := &model.Student{StudentID: "100", FirstName: "Ada", LastName: "Lovelace"}
	tests := []struct {
		pattern string
		st      *model.Student
		want    string
	}{
		{model.DefaultCapturePattern, ada, "exam-100-7.png"},
		{model.DefaultCapturePattern, nil, "exam-noid-7.png"},
		{"{exam-id}-{student-name}.png", ada, "7-Ada_Lovelace.png"},
		{"{exam-id}-{student-name}.png", &model.Student{StudentID: "5"}, "7-noname.png"},
		{"../{student-id}.png", &model.Student{StudentID: "a/b"}, "a_b.png"},
	}
	for _, tt := range tests {
		if got := CaptureName(tt.pattern, 7, tt.st); got != tt.want {
			t.Errorf("CaptureName(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestReadStudentList(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		file, content string
		check         func(t *testing.T, g model.StudentGroup)
	}{
		{"tabs.txt", "# roster\n100\tAda Lovelace\n\n101\tAlan Turing\n", func(t *testing.T, g model.StudentGroup) {
			if len(g.Students) != 2 || g.Students[1].Name != "Alan Turing" || g.Students[1].SequenceNum != 1 {
				t.Errorf("unexpected students %+v", g.Students)
			}
		}},
		{"emails.csv", "100, Ada Lovelace, ada@example.com\n", func(t *testing.T, g model.StudentGroup) {
			if g.Students[0].Email != "ada@example.com" {
				t.Errorf("unexpected student %+v", g.Students[0])
			}
		}},
		{"split.csv", "100;Ada;Lovelace;ada@example.com\n101\n", func(t *testing.T, g model.StudentGroup) {
			if g.Students[0].LastName != "Lovelace" || g.Students[1].StudentID != "101" {
				t.Errorf("unexpected students %+v", g.Students)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			g, err := ReadStudentList(path)
			if err != nil {
				t.Fatalf("ReadStudentList: %v", err)
			}
			if g.Name != tt.file {
				t.Errorf("group name = %q", g.Name)
			}
			tt.check(t, g)
		})
	}
	if _, err := ReadStudentList(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
