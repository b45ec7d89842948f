package store

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/permute"
)

// schemaV1 reads sessions whose solutions are stored per model as one
// slash-separated string in presented order, next to a separate
// permutation string. Students carry a single name column.
type schemaV1 struct{}

func (schemaV1) version() int { return 1 }

func (schemaV1) loadConfig(q querier) (model.ExamConfig, error) {
	var h header
	row := q.QueryRow(
		`SELECT dimensions, correct_weight, incorrect_weight, blank_weight,
		 id_num_digits, survey_mode, left_to_right_numbering, capture_pattern
		 FROM Session`,
	)
	if err := scanHeader(row, &h, false); err != nil {
		return model.ExamConfig{}, err
	}
	cfg, err := h.config()
	if err != nil {
		return cfg, err
	}

	solutions, err := loadModelStrings(q, `SELECT model, solutions FROM Solutions`)
	if err != nil {
		return cfg, err
	}
	perms, err := loadModelStrings(q, `SELECT model, permutations FROM Permutations`)
	if err != nil {
		return cfg, err
	}
	counts := cfg.ChoiceCounts()
	for sym := range solutions {
		if _, ok := perms[sym]; !ok {
			perms[sym] = ""
		}
	}
	for sym, permText := range perms {
		perm := permute.Identity(counts)
		if permText != "" {
			if perm, err = permute.ParseLegacy(permText); err != nil {
				return cfg, fmt.Errorf("%w: model %s: %v", ErrSessionInvalid, sym, err)
			}
		}
		key, err := keyFromLegacy(sym, perm, solutions[sym], len(counts))
		if err != nil {
			return cfg, err
		}
		cfg.Models[sym] = key
	}
	return cfg, checkKeys(&cfg)
}

func loadModelStrings(q querier, query string) (map[model.Symbol]string, error) {
	rows, err := q.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	defer rows.Close()
	out := make(map[model.Symbol]string)
	for rows.Next() {
		var symText, value string
		if err := rows.Scan(&symText, &value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
		}
		sym, err := model.ParseSymbol(symText)
		if err != nil || sym == model.Unknown {
			return nil, fmt.Errorf("%w: model %q", ErrSessionInvalid, symText)
		}
		out[sym] = value
	}
	return out, rows.Err()
}

// keyFromLegacy converts presented-order solutions into canonical records.
func keyFromLegacy(sym model.Symbol, perm permute.Permutation, solutions string, n int) (*model.ModelKey, error) {
	if err := perm.Validate(n); err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", ErrSessionInvalid, sym, err)
	}
	key := &model.ModelKey{Symbol: sym, Questions: make([]model.QuestionRecord, n)}
	if err := perm.Assign(key.Questions); err != nil {
		return nil, err
	}
	for i := range key.Questions {
		key.Questions[i].Weight = 1
	}
	if solutions == "" {
		return key, nil
	}
	parts := strings.Split(solutions, "/")
	if len(parts) != n {
		return nil, fmt.Errorf("%w: model %s has %d solutions, want %d", ErrSessionInvalid, sym, len(parts), n)
	}
	for row, p := range parts {
		letter, err := strconv.Atoi(strings.TrimSpace(p))
		e := perm[row]
		if err != nil || letter < 0 || letter > len(e.Choices) {
			return nil, fmt.Errorf("%w: model %s solution %q at row %d", ErrSessionInvalid, sym, p, row)
		}
		if letter > 0 {
			key.Questions[e.Question].Solution = model.Solution{e.Choices[letter-1]}
		}
	}
	return key, nil
}

func (schemaV1) studentColumns(a string) string {
	return fmt.Sprintf("%[1]s.db_id, %[1]s.student_id, NULL, NULL, %[1]s.name, %[1]s.email, %[1]s.group_id, %[1]s.sequence_num", a)
}

func (schemaV1) insertStudent(q querier, st *model.Student) error {
	if err := assignSequence(q, st); err != nil {
		return err
	}
	res, err := q.Exec(
		`INSERT INTO Students (student_id, name, email, group_id, sequence_num) VALUES (?, ?, ?, ?, ?)`,
		nullString(st.StudentID), nullString(st.FullName()), nullString(st.Email), st.GroupID, st.SequenceNum,
	)
	if err != nil {
		return err
	}
	st.DBID, err = res.LastInsertId()
	return err
}

// saveSolution rewrites the whole solution string of the model, since
// version 1 keeps no per-question rows.
func (schemaV1) saveSolution(q querier, key *model.ModelKey, _ int) error {
	perm, err := permute.FromRecords(key.Questions)
	if err != nil {
		return err
	}
	parts := make([]string, len(perm))
	for row, e := range perm {
		sol := key.Questions[e.Question].Solution
		switch len(sol) {
		case 0:
			parts[row] = "0"
		case 1:
			parts[row] = strconv.Itoa(slices.Index(e.Choices, sol[0]) + 1)
		default:
			return fmt.Errorf("%w: alternate solutions need schema version 3", ErrUnsupportedBySchema)
		}
	}
	text := strings.Join(parts, "/")
	res, err := q.Exec(`UPDATE Solutions SET solutions = ? WHERE model = ?`, text, key.Symbol.String())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	_, err = q.Exec(`INSERT INTO Solutions (model, solutions) VALUES (?, ?)`, key.Symbol.String(), text)
	return err
}

func (schemaV1) insertIDCells(q querier, examID int64, cells []model.IDCell) error {
	return insertIDCellsPlain(q, examID, cells)
}

func (schemaV1) loadIDCells(q querier, examID int64) ([]model.IDCell, error) {
	return loadIDCellsPlain(q, examID)
}
