// Package export writes grade listings as CSV or XLSX tables.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/store"
)

// SheetName is the worksheet of XLSX exports.
const SheetName = "Grades"

var ErrUnknownFormat = errors.New("unknown export format")

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	case "tsv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
}

// Options selects the rows and the columns of an export.
type Options struct {
	store.GradesOptions
	Format Format
	// Answers adds one column per question with the canonical answer letter.
	Answers bool
	// Comma separates CSV fields. Zero means ','.
	Comma rune
}

// Grades exports the grades of a session.
func Grades(s *store.Store, w io.Writer, opts Options) error {
	rows, err := s.Grades(opts.GradesOptions)
	if err != nil {
		return err
	}
	return Write(w, rows, s.ExamConfig().NumQuestions(), opts)
}

// Write exports grade rows of an exam with numQuestions questions.
func Write(w io.Writer, rows []model.GradeRow, numQuestions int, opts Options) error {
	t := newTable(rows, numQuestions, opts.Answers)
	switch opts.Format {
	case FormatCSV, "":
		return writeCSV(w, t, opts.Comma)
	case FormatXLSX:
		return writeXLSX(w, t)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
}

// table holds typed cell values; nil is an empty cell.
type table struct {
	header []string
	rows   [][]any
}

func newTable(rows []model.GradeRow, numQuestions int, answers bool) table {
	t := table{header: []string{"Student ID", "Last name", "First name", "Name", "Exam", "Model", "Correct", "Incorrect", "Blank", "Score"}}
	if answers {
		for q := range numQuestions {
			t.header = append(t.header, "Q"+strconv.Itoa(q+1))
		}
	}
	for _, r := range rows {
		row := make([]any, len(t.header))
		if st := r.Student; st != nil {
			row[0], row[1], row[2], row[3] = st.StudentID, st.LastName, st.FirstName, st.FullName()
		}
		if e := r.Exam; e != nil {
			row[4], row[5] = e.ID, e.Model.String()
			row[6], row[7], row[8] = e.Grade.Correct, e.Grade.Incorrect, e.Grade.Blank
			if e.Grade.Score != nil {
				row[9] = *e.Grade.Score
			}
			if answers {
				for q, a := range e.Answers {
					if q < numQuestions {
						row[10+q] = answerLetter(a)
					}
				}
			}
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func answerLetter(a int) string {
	if a <= 0 {
		return ""
	}
	return string(rune('A' + a - 1))
}

func writeCSV(w io.Writer, t table, comma rune) error {
	cw := csv.NewWriter(w)
	if comma != 0 {
		cw.Comma = comma
	}
	if err := cw.Write(t.header); err != nil {
		return err
	}
	for _, row := range t.rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = csvValue(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func writeXLSX(w io.Writer, t table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	header := make([]any, len(t.header))
	for i, h := range t.header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(t.header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, row := range t.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetName, "A", "D", 16); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
