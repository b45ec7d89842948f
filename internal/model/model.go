package model

import (
	"slices"
	"strings"
)

// ScoringMode selects how a graded exam's score is computed.
type ScoringMode string

const (
	// ScoringNone produces only correct/incorrect/blank counts.
	ScoringNone ScoringMode = "none"
	// ScoringWeights applies one weight triple to every graded question.
	ScoringWeights ScoringMode = "weights"
	// ScoringIndividual gives every question its own weight triple.
	ScoringIndividual ScoringMode = "individual"
)

// Weights holds the points awarded for a correct, incorrect and blank answer.
type Weights struct {
	Correct   float64 `json:"correct"`
	Incorrect float64 `json:"incorrect"`
	Blank     float64 `json:"blank"`
}

// Dimension is one answer table of the printed sheet.
type Dimension struct {
	Choices   int `json:"choices"`
	Questions int `json:"questions"`
}

// QuestionRecord holds the data of one canonical question inside a model.
type QuestionRecord struct {
	Solution Solution
	Position int   // presented row of the question on this model
	Choices  []int // canonical choice (1-based) under each presented letter
	Weight   float64
	Score    *Weights // set only in individual scoring mode
}

// ModelKey holds the solutions and the permutation of one exam model,
// indexed by canonical question.
type ModelKey struct {
	Symbol    Symbol
	Questions []QuestionRecord
}

// Solutions returns the canonical solutions of the model.
func (k *ModelKey) Solutions() []Solution {
	out := make([]Solution, len(k.Questions))
	for i, q := range k.Questions {
		out[i] = q.Solution
	}
	return out
}

// ExamConfig is the immutable configuration of a grading session.
type ExamConfig struct {
	Dimensions           []Dimension
	IDNumDigits          int
	SurveyMode           bool
	LeftToRightNumbering bool
	ScoringMode          ScoringMode
	BaseWeights          Weights
	CapturePattern       string
	Models               map[Symbol]*ModelKey
}

// DefaultCapturePattern names drawn captures when a session does not set one.
const DefaultCapturePattern = "exam-{student-id}-{seq-number}.png"

// NumQuestions is the total number of questions across all tables.
func (c *ExamConfig) NumQuestions() int {
	n := 0
	for _, d := range c.Dimensions {
		n += d.Questions
	}
	return n
}

// ChoiceCounts returns the number of choices of every presented row.
func (c *ExamConfig) ChoiceCounts() []int {
	var out []int
	for _, d := range c.Dimensions {
		for range d.Questions {
			out = append(out, d.Choices)
		}
	}
	return out
}

// ModelSymbols returns the configured models in index order.
func (c *ExamConfig) ModelSymbols() []Symbol {
	syms := make([]Symbol, 0, len(c.Models))
	for s := range c.Models {
		syms = append(syms, s)
	}
	slices.Sort(syms)
	return syms
}

// Key returns the key of a model, or nil if the model is not configured.
func (c *ExamConfig) Key(s Symbol) *ModelKey {
	if c.Models == nil {
		return nil
	}
	return c.Models[s]
}

// DefaultGroupID is the group of students inserted during grading.
const DefaultGroupID int64 = 0

// DefaultGroupName is the name of DefaultGroupID.
const DefaultGroupName = "INSERTED"

// StudentGroup is a roster loaded from one student list.
type StudentGroup struct {
	ID       int64
	Name     string
	Students []Student
}

// Student is a roster entry.
// A negative SequenceNum means the store assigns the next one in the group.
type Student struct {
	DBID        int64 // 0 until stored
	StudentID   string
	FirstName   string
	LastName    string
	Name        string
	Email       string
	GroupID     int64
	SequenceNum int
}

// AdHocStudent creates a student in the default group with an unassigned sequence number.
func AdHocStudent(studentID string) *Student {
	return &Student{StudentID: studentID, GroupID: DefaultGroupID, SequenceNum: -1}
}

// InDatabase reports whether the student has been stored.
func (s *Student) InDatabase() bool {
	return s.DBID > 0
}

// FullName returns the display name of the student.
func (s *Student) FullName() string {
	if s.Name != "" {
		return s.Name
	}
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// SortName is the key used for last-name ordering.
func (s *Student) SortName() string {
	if s.LastName != "" {
		return s.LastName + " " + s.FirstName
	}
	return s.FullName()
}

// Point is a pixel position in a capture.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Corners of a cell: upper-left, upper-right, lower-left, lower-right.
type Corners [4]Point

// AnswerCell is the geometry of one choice cell detected in a capture.
type AnswerCell struct {
	Center   Point   `json:"center"`
	Diagonal int     `json:"diagonal"`
	Corners  Corners `json:"corners"`
	Filled   bool    `json:"filled"`
}

// IDCell is the geometry of one digit cell of the student ID box.
// Digit is -1 when the digit was not recognized.
type IDCell struct {
	Corners Corners `json:"corners"`
	Digit   int     `json:"digit"`
}

// Grade is the outcome of scoring one exam. Score is nil when the session
// has no scoring weights.
type Grade struct {
	Correct   int
	Incorrect int
	Blank     int
	Score     *float64
}

// Exam is a grading record.
type Exam struct {
	ID      int64
	Student *Student
	Model   Symbol
	// Answers are in canonical order: 0 is blank, 1..K a canonical choice.
	Answers []int
	Grade   Grade
	// AnswerCells are in presented order, one slice of choices per row.
	AnswerCells [][]AnswerCell
	IDCells     []IDCell
}
