package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/permute"
)

// Supported schema versions. Sessions without a version column are version 1.
const (
	minSchema     = 1
	currentSchema = 3
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// schema hides the table layout differences between session versions.
// The tables Exams, Answers and AnswerCells are shared by every version.
type schema interface {
	version() int
	loadConfig(q querier) (model.ExamConfig, error)
	// studentColumns selects, from the Students table aliased as alias,
	// db_id, student_id, first_name, last_name, name, email, group_id, sequence_num.
	studentColumns(alias string) string
	insertStudent(q querier, st *model.Student) error
	// saveSolution persists the solution of one canonical question of a model.
	saveSolution(q querier, key *model.ModelKey, question int) error
	insertIDCells(q querier, examID int64, cells []model.IDCell) error
	loadIDCells(q querier, examID int64) ([]model.IDCell, error)
}

func schemaFor(version int) (schema, error) {
	switch version {
	case 1:
		return schemaV1{}, nil
	case 2:
		return schemaV2{}, nil
	case 3:
		return schemaV3{}, nil
	}
	return nil, &IncompatibleSchemaError{Found: version, Min: minSchema, Max: currentSchema}
}

func detectVersion(q querier) (int, error) {
	rows, err := q.Query(`SELECT name FROM pragma_table_info('Session')`)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	var hasVersion, hasTable bool
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
		}
		hasTable = true
		if name == "db_schema_version" {
			hasVersion = true
		}
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if !hasTable {
		return 0, fmt.Errorf("%w: no Session table", ErrSessionInvalid)
	}
	if !hasVersion {
		return 1, nil
	}
	var version int
	err = q.QueryRow(`SELECT db_schema_version FROM Session`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: empty Session table", ErrSessionInvalid)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	return version, nil
}

// header is the single row of the Session table.
type header struct {
	dimensions     string
	scoringMode    sql.NullString
	weights        [3]sql.NullString
	idNumDigits    int
	surveyMode     int
	leftToRight    int
	capturePattern sql.NullString
}

func (h *header) config() (model.ExamConfig, error) {
	var cfg model.ExamConfig
	dims, err := model.ParseDimensions(h.dimensions)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	cfg.Dimensions = dims
	cfg.IDNumDigits = h.idNumDigits
	cfg.SurveyMode = h.surveyMode != 0
	cfg.LeftToRightNumbering = h.leftToRight != 0
	cfg.CapturePattern = h.capturePattern.String
	if cfg.CapturePattern == "" {
		cfg.CapturePattern = model.DefaultCapturePattern
	}

	switch {
	case h.scoringMode.Valid:
		cfg.ScoringMode = model.ScoringMode(h.scoringMode.String)
	case h.weights[0].Valid:
		cfg.ScoringMode = model.ScoringWeights
	default:
		cfg.ScoringMode = model.ScoringNone
	}
	switch cfg.ScoringMode {
	case model.ScoringNone, model.ScoringIndividual:
	case model.ScoringWeights:
		var w [3]float64
		for i, text := range h.weights {
			if !text.Valid {
				return cfg, fmt.Errorf("%w: missing score weight", ErrSessionInvalid)
			}
			if w[i], err = model.ParseWeight(text.String); err != nil {
				return cfg, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
			}
		}
		cfg.BaseWeights = model.Weights{Correct: w[0], Incorrect: w[1], Blank: w[2]}
	default:
		return cfg, fmt.Errorf("%w: scoring mode %q", ErrSessionInvalid, cfg.ScoringMode)
	}
	cfg.Models = make(map[model.Symbol]*model.ModelKey)
	return cfg, nil
}

func scanHeader(row *sql.Row, h *header, withVersion bool) error {
	var err error
	if withVersion {
		var version int
		err = row.Scan(&version, &h.dimensions, &h.scoringMode,
			&h.weights[0], &h.weights[1], &h.weights[2],
			&h.idNumDigits, &h.surveyMode, &h.leftToRight, &h.capturePattern)
	} else {
		err = row.Scan(&h.dimensions,
			&h.weights[0], &h.weights[1], &h.weights[2],
			&h.idNumDigits, &h.surveyMode, &h.leftToRight, &h.capturePattern)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: empty Session table", ErrSessionInvalid)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	return nil
}

// checkKeys verifies every model key against the answer table layout.
func checkKeys(cfg *model.ExamConfig) error {
	n := cfg.NumQuestions()
	counts := cfg.ChoiceCounts()
	for sym, key := range cfg.Models {
		if len(key.Questions) != n {
			return fmt.Errorf("%w: model %s has %d questions, want %d", ErrSessionInvalid, sym, len(key.Questions), n)
		}
		if _, err := permute.FromRecords(key.Questions); err != nil {
			return fmt.Errorf("%w: model %s: %v", ErrSessionInvalid, sym, err)
		}
		for q, r := range key.Questions {
			if len(r.Choices) != counts[r.Position] {
				return fmt.Errorf("%w: model %s question %d does not fit row %d", ErrSessionInvalid, sym, q, r.Position)
			}
			for _, c := range r.Solution {
				if c < 1 || c > len(r.Choices) {
					return fmt.Errorf("%w: model %s question %d solution %d", ErrSessionInvalid, sym, q, c)
				}
			}
		}
	}
	return nil
}

// assignSequence gives a student with a negative sequence number the next
// free one in its group. An explicit number must not be taken in the group.
func assignSequence(q querier, st *model.Student) error {
	if st.SequenceNum >= 0 {
		var taken int
		err := q.QueryRow(`SELECT COUNT(*) FROM Students WHERE group_id = ? AND sequence_num = ?`,
			st.GroupID, st.SequenceNum).Scan(&taken)
		if err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: group %d, sequence %d", ErrDuplicateSequence, st.GroupID, st.SequenceNum)
		}
		return nil
	}
	var last sql.NullInt64
	if err := q.QueryRow(`SELECT MAX(sequence_num) FROM Students WHERE group_id = ?`, st.GroupID).Scan(&last); err != nil {
		return err
	}
	st.SequenceNum = 0
	if last.Valid {
		st.SequenceNum = int(last.Int64) + 1
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseChoices(text string) ([]int, error) {
	parts := strings.Split(text, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		c, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse choices %q: %w", text, err)
		}
		out[i] = c
	}
	return out, nil
}

func formatChoices(choices []int) string {
	parts := make([]string, len(choices))
	for i, c := range choices {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

func insertIDCellsPlain(q querier, examID int64, cells []model.IDCell) error {
	for i, c := range cells {
		_, err := q.Exec(
			`INSERT INTO IdCells (exam_id, digit, lux, luy, rux, ruy, ldx, ldy, rdx, rdy)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			examID, i,
			c.Corners[0].X, c.Corners[0].Y, c.Corners[1].X, c.Corners[1].Y,
			c.Corners[2].X, c.Corners[2].Y, c.Corners[3].X, c.Corners[3].Y,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func loadIDCellsPlain(q querier, examID int64) ([]model.IDCell, error) {
	rows, err := q.Query(
		`SELECT lux, luy, rux, ruy, ldx, ldy, rdx, rdy
		 FROM IdCells WHERE exam_id = ? ORDER BY digit`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cells []model.IDCell
	for rows.Next() {
		c := model.IDCell{Digit: -1}
		if err := rows.Scan(
			&c.Corners[0].X, &c.Corners[0].Y, &c.Corners[1].X, &c.Corners[1].Y,
			&c.Corners[2].X, &c.Corners[2].Y, &c.Corners[3].X, &c.Corners[3].Y,
		); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}
