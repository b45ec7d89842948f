package store

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pavelanni/omrgrade/internal/model"
)

var legacyIDCellsDDL = `CREATE TABLE IdCells (
	exam_id INTEGER NOT NULL,
	digit INTEGER NOT NULL,
	lux INTEGER NOT NULL,
	luy INTEGER NOT NULL,
	rux INTEGER NOT NULL,
	ruy INTEGER NOT NULL,
	ldx INTEGER NOT NULL,
	ldy INTEGER NOT NULL,
	rdx INTEGER NOT NULL,
	rdy INTEGER NOT NULL,
	FOREIGN KEY(exam_id) REFERENCES Exams(exam_id)
)`

var v1Session = append([]string{
	`CREATE TABLE Session (
		dimensions TEXT NOT NULL,
		correct_weight TEXT,
		incorrect_weight TEXT,
		blank_weight TEXT,
		id_num_digits INTEGER NOT NULL,
		survey_mode INTEGER NOT NULL,
		left_to_right_numbering INTEGER NOT NULL,
		capture_pattern TEXT NOT NULL
	)`,
	`CREATE TABLE Solutions (model TEXT NOT NULL, solutions TEXT NOT NULL)`,
	`CREATE TABLE Permutations (model TEXT NOT NULL, permutations TEXT NOT NULL)`,
	`CREATE TABLE StudentGroups (group_id INTEGER PRIMARY KEY NOT NULL, group_name TEXT NOT NULL)`,
	`CREATE TABLE Students (
		db_id INTEGER PRIMARY KEY NOT NULL,
		student_id TEXT,
		name TEXT,
		email TEXT,
		group_id INTEGER NOT NULL,
		sequence_num INTEGER NOT NULL,
		FOREIGN KEY(group_id) REFERENCES StudentGroups(group_id)
	)`,
	legacyIDCellsDDL,
	`INSERT INTO Session VALUES ('3,3', '1', '-1/2', '0', 3, 0, 0, 'exam-{student-id}-{seq-number}.png')`,
	`INSERT INTO Solutions VALUES ('A', '1/2/3')`,
	// Model B shows question 3 first with choices C,A,B, then 1, then 2 as B,C,A.
	`INSERT INTO Solutions VALUES ('B', '1/1/1')`,
	`INSERT INTO Permutations VALUES ('B', '3{3,1,2}/1{1,2,3}/2{2,3,1}')`,
	`INSERT INTO StudentGroups VALUES (0, 'INSERTED')`,
	`INSERT INTO StudentGroups VALUES (1, 'class.csv')`,
	`INSERT INTO Students (student_id, name, email, group_id, sequence_num) VALUES ('100', 'Ada Lovelace', NULL, 1, 0)`,
}, examTablesDDL...)

var v2Session = append([]string{
	`CREATE TABLE Session (
		db_schema_version INTEGER NOT NULL,
		dimensions TEXT NOT NULL,
		scoring_mode TEXT NOT NULL,
		correct_weight TEXT,
		incorrect_weight TEXT,
		blank_weight TEXT,
		id_num_digits INTEGER NOT NULL,
		survey_mode INTEGER NOT NULL,
		left_to_right_numbering INTEGER NOT NULL,
		capture_pattern TEXT NOT NULL
	)`,
	`CREATE TABLE Questions (
		model TEXT NOT NULL,
		question INTEGER NOT NULL,
		position INTEGER NOT NULL,
		choices TEXT NOT NULL,
		solution INTEGER NOT NULL,
		weight REAL NOT NULL DEFAULT 1,
		PRIMARY KEY (model, question)
	)`,
	`CREATE TABLE StudentGroups (group_id INTEGER PRIMARY KEY NOT NULL, group_name TEXT NOT NULL)`,
	`CREATE TABLE Students (
		db_id INTEGER PRIMARY KEY NOT NULL,
		student_id TEXT,
		first_name TEXT,
		last_name TEXT,
		email TEXT,
		group_id INTEGER NOT NULL,
		sequence_num INTEGER NOT NULL,
		FOREIGN KEY(group_id) REFERENCES StudentGroups(group_id)
	)`,
	legacyIDCellsDDL,
	`INSERT INTO Session VALUES (2, '3,3', 'weights', '1', '-1/3', '0', 3, 0, 0, '{exam-id}.png')`,
	`INSERT INTO Questions VALUES ('A', 0, 0, '1,2,3', 1, 1)`,
	`INSERT INTO Questions VALUES ('A', 1, 1, '1,2,3', 2, 2)`,
	`INSERT INTO Questions VALUES ('A', 2, 2, '1,2,3', 0, 1)`,
	`INSERT INTO StudentGroups VALUES (0, 'INSERTED')`,
	`INSERT INTO Students (student_id, first_name, last_name, group_id, sequence_num) VALUES ('100', 'Ada', 'Lovelace', 0, 0)`,
}, examTablesDDL...)

func newLegacySession(t *testing.T, stmts []string, extra ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "session")
	for _, sub := range []string{CapturesDir, InternalDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	execRaw(t, filepath.Join(dir, DBFile), append(slices.Clone(stmts), extra...)...)
	return dir
}

func openLegacy(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenVersion1(t *testing.T) {
	s := openLegacy(t, newLegacySession(t, v1Session))
	if s.SchemaVersion() != 1 {
		t.Fatalf("schema version = %d, want 1", s.SchemaVersion())
	}
	cfg := s.ExamConfig()
	if cfg.ScoringMode != model.ScoringWeights || cfg.BaseWeights.Incorrect != -0.5 {
		t.Errorf("unexpected scoring %s %+v", cfg.ScoringMode, cfg.BaseWeights)
	}
	for _, sym := range []model.Symbol{'A', 'B'} {
		sols := cfg.Key(sym).Solutions()
		want := []model.Solution{{1}, {2}, {3}}
		if !slices.EqualFunc(sols, want, slices.Equal) {
			t.Errorf("model %s canonical solutions = %v, want %v", sym, sols, want)
		}
	}
	if b := cfg.Key('B'); b.Questions[0].Position != 1 || b.Questions[2].Position != 0 {
		t.Errorf("model B positions = %+v", b.Questions)
	}
	if st := mustStudent(t, s, "100"); st.FullName() != "Ada Lovelace" {
		t.Errorf("student name = %q", st.FullName())
	}
}

func TestVersion1Writes(t *testing.T) {
	dir := newLegacySession(t, v1Session)
	s := openLegacy(t, dir)
	exam := storeTestExam(t, s, 'B', []int{1, 2, 3}, model.AdHocStudent("900"))
	if *exam.Grade.Score != 3 {
		t.Fatalf("initial score = %v", *exam.Grade.Score)
	}

	if err := s.SetSolution(2, 1); err != nil {
		t.Fatalf("SetSolution: %v", err)
	}
	if got := examScore(t, s, exam.ID); got != 1.5 {
		t.Errorf("score after SetSolution = %v, want 1.5", got)
	}
	var text string
	if err := s.db.QueryRow(`SELECT solutions FROM Solutions WHERE model = 'B'`).Scan(&text); err != nil {
		t.Fatalf("read solutions: %v", err)
	}
	if text != "2/1/1" {
		t.Errorf("stored presented solutions = %q, want 2/1/1", text)
	}

	if err := s.AddAlternateSolution(0, 2); !errors.Is(err, ErrUnsupportedBySchema) {
		t.Fatalf("expected ErrUnsupportedBySchema, got %v", err)
	}
	if sol := s.ExamConfig().Key('A').Questions[0].Solution; !slices.Equal(sol, model.Solution{1}) {
		t.Errorf("failed change altered the configuration: %v", sol)
	}
	if got := examScore(t, s, exam.ID); got != 1.5 {
		t.Errorf("failed change altered the score: %v", got)
	}

	st, ok := s.FindStudent("900")
	if !ok || st.GroupID != model.DefaultGroupID || st.SequenceNum != 0 {
		t.Errorf("ad hoc student = %+v, %v", st, ok)
	}

	s.Close()
	reopened := openLegacy(t, dir)
	if sol := reopened.ExamConfig().Key('B').Questions[2].Solution; !slices.Equal(sol, model.Solution{1}) {
		t.Errorf("reopened solution = %v, want [1]", sol)
	}
}

func TestOpenVersion2(t *testing.T) {
	dir := newLegacySession(t, v2Session)
	s := openLegacy(t, dir)
	if s.SchemaVersion() != 2 {
		t.Fatalf("schema version = %d, want 2", s.SchemaVersion())
	}
	key := s.ExamConfig().Key('A')
	if key.Questions[1].Weight != 2 || !key.Questions[2].Solution.Void() {
		t.Errorf("unexpected key %+v", key.Questions)
	}
	if st := mustStudent(t, s, "100"); st.FullName() != "Ada Lovelace" || st.LastName != "Lovelace" {
		t.Errorf("unexpected student %+v", st)
	}

	exam := storeTestExam(t, s, 'A', []int{1, 2, 1}, nil)
	if got := examScore(t, s, exam.ID); got != 3 {
		t.Errorf("score = %v, want 3", got)
	}
	if _, err := os.Stat(filepath.Join(dir, CapturesDir, "1.png")); err != nil {
		t.Errorf("capture not named by session pattern: %v", err)
	}

	if err := s.SetSolution(2, 3); err != nil {
		t.Fatalf("SetSolution: %v", err)
	}
	if got := examScore(t, s, exam.ID); math.Abs(got-(3-1.0/3)) > 1e-9 {
		t.Errorf("score after SetSolution = %v", got)
	}
	if err := s.AddAlternateSolution(2, 1); !errors.Is(err, ErrUnsupportedBySchema) {
		t.Errorf("expected ErrUnsupportedBySchema, got %v", err)
	}

	s.Close()
	reopened := openLegacy(t, dir)
	if sol := reopened.ExamConfig().Key('A').Questions[2].Solution; !slices.Equal(sol, model.Solution{3}) {
		t.Errorf("reopened solution = %v, want [3]", sol)
	}
}

func TestOpenVersion2RejectsIndividualScoring(t *testing.T) {
	dir := newLegacySession(t, v2Session, `UPDATE Session SET scoring_mode = 'individual'`)
	if _, err := Open(dir); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestOpenIncompleteKey(t *testing.T) {
	dir := newLegacySession(t, v2Session, `DELETE FROM Questions WHERE question = 1`)
	if _, err := Open(dir); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestIndividualScoring(t *testing.T) {
	cfg := testConfig()
	cfg.ScoringMode = model.ScoringIndividual
	for _, key := range cfg.Models {
		for i := range key.Questions {
			key.Questions[i].Score = &model.Weights{Correct: float64(i + 1), Incorrect: -1}
		}
	}
	s, err := Create(filepath.Join(t.TempDir(), "session"), cfg, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()
	if got := s.ExamConfig().Key('B').Questions[2].Score; got == nil || got.Correct != 3 {
		t.Fatalf("individual score not stored: %+v", got)
	}
	// 1 + 2 - 1
	exam := storeTestExam(t, s, 'A', []int{1, 2, 1}, nil)
	if *exam.Grade.Score != 2 {
		t.Errorf("score = %v, want 2", *exam.Grade.Score)
	}
}
