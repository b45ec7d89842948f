// Package layout computes the answer-table geometry of a printed sheet and
// the binary fingerprint that identifies its model.
package layout

import (
	"errors"
	"fmt"
)

var (
	ErrTooFewQuestions = errors.New("too few questions")
	ErrTooFewChoices   = errors.New("too few choices per question")
	ErrTooManyTables   = errors.New("too many tables for the given number of questions")
)

// Question counts at which one more table is added.
var tableLimits = []int{8, 24, 55}

// CellKind tells what a grid position holds.
type CellKind int

const (
	// CellEmpty is a position with no cell, below a table's fingerprint rows.
	CellEmpty CellKind = iota
	CellQuestion
	CellFingerprint0
	CellFingerprint1
)

func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellQuestion:
		return "question"
	case CellFingerprint0:
		return "fingerprint-row-0"
	case CellFingerprint1:
		return "fingerprint-row-1"
	}
	return fmt.Sprintf("CellKind(%d)", int(k))
}

// Cell is one table's slot in a grid row.
type Cell struct {
	Kind     CellKind
	Question int // 1-based question number, CellQuestion only
	Choices  int
}

// Geometry is the arrangement of questions and fingerprint rows in tables.
// Rows[r][t] is the cell of table t in row r.
type Geometry struct {
	Questions int
	Choices   int
	Tables    int
	Rows      [][]Cell
}

// ChooseTableCount returns a good number of tables for the given number of questions.
func ChooseTableCount(questions int) int {
	tables := 1
	for _, limit := range tableLimits {
		if limit >= questions {
			break
		}
		tables++
	}
	return tables
}

// NewGeometry lays out questions across tables. A non-positive table count
// selects one with ChooseTableCount.
func NewGeometry(questions, choices, tables int) (Geometry, error) {
	if questions < 1 {
		return Geometry{}, fmt.Errorf("%w: %d", ErrTooFewQuestions, questions)
	}
	if choices < 2 {
		return Geometry{}, fmt.Errorf("%w: %d", ErrTooFewChoices, choices)
	}
	if tables <= 0 {
		tables = ChooseTableCount(questions)
	} else if tables*2 > questions {
		return Geometry{}, fmt.Errorf("%w: %d tables, %d questions", ErrTooManyTables, tables, questions)
	}

	rowsPerTable := questions / tables
	diff := questions - tables*rowsPerTable

	// First question number of every table; the first diff tables take one extra row.
	first := make([]int, tables)
	for t := range tables {
		first[t] = 1 + t*rowsPerTable + min(t, diff)
	}

	g := Geometry{Questions: questions, Choices: choices, Tables: tables}
	question := func(r, t int) Cell {
		return Cell{Kind: CellQuestion, Question: first[t] + r, Choices: choices}
	}
	for r := range rowsPerTable {
		row := make([]Cell, tables)
		for t := range tables {
			row[t] = question(r, t)
		}
		g.Rows = append(g.Rows, row)
	}
	if diff > 0 {
		row := make([]Cell, tables)
		for t := range tables {
			if t < diff {
				row[t] = question(rowsPerTable, t)
			} else {
				row[t] = Cell{Kind: CellFingerprint0, Choices: choices}
			}
		}
		g.Rows = append(g.Rows, row)
	} else {
		diff = tables
	}

	fp0 := make([]Cell, tables)
	fp1 := make([]Cell, tables)
	for t := range tables {
		if t < diff {
			fp0[t] = Cell{Kind: CellFingerprint0, Choices: choices}
			fp1[t] = Cell{Kind: CellFingerprint1, Choices: choices}
		} else {
			fp0[t] = Cell{Kind: CellFingerprint1, Choices: choices}
			fp1[t] = Cell{Kind: CellEmpty}
		}
	}
	g.Rows = append(g.Rows, fp0, fp1)
	return g, nil
}

// QuestionCells counts the question cells of the grid.
func (g Geometry) QuestionCells() int {
	n := 0
	for _, row := range g.Rows {
		for _, c := range row {
			if c.Kind == CellQuestion {
				n++
			}
		}
	}
	return n
}

// Bits is the number of fingerprint bits the geometry can carry.
func (g Geometry) Bits() int {
	return g.Tables * g.Choices
}
