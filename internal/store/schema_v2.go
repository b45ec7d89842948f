package store

import (
	"database/sql"
	"fmt"

	"github.com/pavelanni/omrgrade/internal/model"
)

// examTablesDDL creates the tables whose layout every version shares.
var examTablesDDL = []string{
	`CREATE TABLE Exams (
		exam_id INTEGER PRIMARY KEY NOT NULL,
		student INTEGER,
		model TEXT,
		correct INTEGER,
		incorrect INTEGER,
		blank INTEGER,
		score REAL,
		FOREIGN KEY(student) REFERENCES Students(db_id)
	)`,
	`CREATE TABLE Answers (
		exam_id INTEGER NOT NULL,
		question INTEGER NOT NULL,
		answer INTEGER NOT NULL,
		FOREIGN KEY(exam_id) REFERENCES Exams(exam_id)
	)`,
	`CREATE TABLE AnswerCells (
		exam_id INTEGER NOT NULL,
		question INTEGER NOT NULL,
		choice INTEGER NOT NULL,
		center_x INTEGER NOT NULL,
		center_y INTEGER NOT NULL,
		diagonal INTEGER NOT NULL,
		lux INTEGER,
		luy INTEGER,
		rux INTEGER,
		ruy INTEGER,
		ldx INTEGER,
		ldy INTEGER,
		rdx INTEGER,
		rdy INTEGER,
		FOREIGN KEY(exam_id) REFERENCES Exams(exam_id)
	)`,
}

// currentDDL creates a session at currentSchema.
var currentDDL = append([]string{
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
		solution TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1,
		correct_score REAL,
		incorrect_score REAL,
		blank_score REAL,
		PRIMARY KEY (model, question)
	)`,
	`CREATE TABLE StudentGroups (
		group_id INTEGER PRIMARY KEY NOT NULL,
		group_name TEXT NOT NULL
	)`,
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
	`CREATE TABLE IdCells (
		exam_id INTEGER NOT NULL,
		digit INTEGER NOT NULL,
		value INTEGER,
		lux INTEGER NOT NULL,
		luy INTEGER NOT NULL,
		rux INTEGER NOT NULL,
		ruy INTEGER NOT NULL,
		ldx INTEGER NOT NULL,
		ldy INTEGER NOT NULL,
		rdx INTEGER NOT NULL,
		rdy INTEGER NOT NULL,
		FOREIGN KEY(exam_id) REFERENCES Exams(exam_id)
	)`,
}, examTablesDDL...)

// schemaV2 reads sessions with one Questions row per model and canonical
// question, a single integer solution and split student names.
type schemaV2 struct{}

func (schemaV2) version() int { return 2 }

func (schemaV2) loadConfig(q querier) (model.ExamConfig, error) {
	cfg, err := loadVersionedConfig(q, false)
	if err != nil {
		return cfg, err
	}
	if cfg.ScoringMode == model.ScoringIndividual {
		return cfg, fmt.Errorf("%w: individual scoring needs schema version 3", ErrSessionInvalid)
	}
	return cfg, nil
}

func (schemaV2) studentColumns(a string) string {
	return fmt.Sprintf("%[1]s.db_id, %[1]s.student_id, %[1]s.first_name, %[1]s.last_name, NULL, %[1]s.email, %[1]s.group_id, %[1]s.sequence_num", a)
}

func (schemaV2) insertStudent(q querier, st *model.Student) error {
	if err := assignSequence(q, st); err != nil {
		return err
	}
	first, last := st.FirstName, st.LastName
	if first == "" && last == "" {
		last = st.Name
	}
	res, err := q.Exec(
		`INSERT INTO Students (student_id, first_name, last_name, email, group_id, sequence_num)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(st.StudentID), nullString(first), nullString(last), nullString(st.Email), st.GroupID, st.SequenceNum,
	)
	if err != nil {
		return err
	}
	st.DBID, err = res.LastInsertId()
	return err
}

func (schemaV2) saveSolution(q querier, key *model.ModelKey, question int) error {
	sol := key.Questions[question].Solution
	if len(sol) > 1 {
		return fmt.Errorf("%w: alternate solutions need schema version 3", ErrUnsupportedBySchema)
	}
	value := 0
	if len(sol) == 1 {
		value = sol[0]
	}
	_, err := q.Exec(`UPDATE Questions SET solution = ? WHERE model = ? AND question = ?`,
		value, key.Symbol.String(), question)
	return err
}

func (schemaV2) insertIDCells(q querier, examID int64, cells []model.IDCell) error {
	return insertIDCellsPlain(q, examID, cells)
}

func (schemaV2) loadIDCells(q querier, examID int64) ([]model.IDCell, error) {
	return loadIDCellsPlain(q, examID)
}

// schemaV3 extends version 2 with per-question scores, solutions with
// alternate choices and the recognized digit of every ID cell.
type schemaV3 struct {
	schemaV2
}

func (schemaV3) version() int { return 3 }

func (schemaV3) loadConfig(q querier) (model.ExamConfig, error) {
	return loadVersionedConfig(q, true)
}

func (schemaV3) saveSolution(q querier, key *model.ModelKey, question int) error {
	_, err := q.Exec(`UPDATE Questions SET solution = ? WHERE model = ? AND question = ?`,
		key.Questions[question].Solution.String(), key.Symbol.String(), question)
	return err
}

func (schemaV3) insertIDCells(q querier, examID int64, cells []model.IDCell) error {
	for i, c := range cells {
		var value any
		if c.Digit >= 0 {
			value = c.Digit
		}
		_, err := q.Exec(
			`INSERT INTO IdCells (exam_id, digit, value, lux, luy, rux, ruy, ldx, ldy, rdx, rdy)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			examID, i, value,
			c.Corners[0].X, c.Corners[0].Y, c.Corners[1].X, c.Corners[1].Y,
			c.Corners[2].X, c.Corners[2].Y, c.Corners[3].X, c.Corners[3].Y,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (schemaV3) loadIDCells(q querier, examID int64) ([]model.IDCell, error) {
	rows, err := q.Query(
		`SELECT value, lux, luy, rux, ruy, ldx, ldy, rdx, rdy
		 FROM IdCells WHERE exam_id = ? ORDER BY digit`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cells []model.IDCell
	for rows.Next() {
		var c model.IDCell
		var value sql.NullInt64
		if err := rows.Scan(&value,
			&c.Corners[0].X, &c.Corners[0].Y, &c.Corners[1].X, &c.Corners[1].Y,
			&c.Corners[2].X, &c.Corners[2].Y, &c.Corners[3].X, &c.Corners[3].Y,
		); err != nil {
			return nil, err
		}
		c.Digit = -1
		if value.Valid {
			c.Digit = int(value.Int64)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

func loadVersionedConfig(q querier, withScores bool) (model.ExamConfig, error) {
	var h header
	row := q.QueryRow(
		`SELECT db_schema_version, dimensions, scoring_mode,
		 correct_weight, incorrect_weight, blank_weight,
		 id_num_digits, survey_mode, left_to_right_numbering, capture_pattern
		 FROM Session`,
	)
	if err := scanHeader(row, &h, true); err != nil {
		return model.ExamConfig{}, err
	}
	cfg, err := h.config()
	if err != nil {
		return cfg, err
	}
	if err := loadQuestions(q, &cfg, withScores); err != nil {
		return cfg, err
	}
	return cfg, checkKeys(&cfg)
}

func loadQuestions(q querier, cfg *model.ExamConfig, withScores bool) error {
	query := `SELECT model, question, position, choices, solution, weight FROM Questions`
	if withScores {
		query = `SELECT model, question, position, choices, solution, weight,
		 correct_score, incorrect_score, blank_score FROM Questions`
	}
	rows, err := q.Query(query)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	defer rows.Close()

	n := cfg.NumQuestions()
	seen := make(map[model.Symbol][]bool)
	for rows.Next() {
		var (
			symText, choices, solution string
			question, position         int
			weight                     sql.NullFloat64
			scores                     [3]sql.NullFloat64
		)
		dest := []any{&symText, &question, &position, &choices, &solution, &weight}
		if withScores {
			dest = append(dest, &scores[0], &scores[1], &scores[2])
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionInvalid, err)
		}
		sym, err := model.ParseSymbol(symText)
		if err != nil || sym == model.Unknown {
			return fmt.Errorf("%w: model %q", ErrSessionInvalid, symText)
		}
		key := cfg.Models[sym]
		if key == nil {
			key = &model.ModelKey{Symbol: sym, Questions: make([]model.QuestionRecord, n)}
			cfg.Models[sym] = key
			seen[sym] = make([]bool, n)
		}
		if question < 0 || question >= n || seen[sym][question] {
			return fmt.Errorf("%w: model %s question %d", ErrSessionInvalid, sym, question)
		}
		seen[sym][question] = true

		rec := model.QuestionRecord{Position: position, Weight: 1}
		if rec.Choices, err = parseChoices(choices); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionInvalid, err)
		}
		if rec.Solution, err = model.ParseSolution(solution); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionInvalid, err)
		}
		if weight.Valid {
			rec.Weight = weight.Float64
		}
		if scores[0].Valid {
			rec.Score = &model.Weights{Correct: scores[0].Float64, Incorrect: scores[1].Float64, Blank: scores[2].Float64}
		}
		key.Questions[question] = rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	for sym, flags := range seen {
		for q, ok := range flags {
			if !ok {
				return fmt.Errorf("%w: model %s lacks question %d", ErrSessionInvalid, sym, q)
			}
		}
	}
	return nil
}

// saveConfig writes the session header and the model keys at currentSchema.
func saveConfig(q querier, cfg *model.ExamConfig) error {
	var weights [3]any
	if cfg.ScoringMode == model.ScoringWeights {
		weights = [3]any{
			model.FormatWeight(cfg.BaseWeights.Correct),
			model.FormatWeight(cfg.BaseWeights.Incorrect),
			model.FormatWeight(cfg.BaseWeights.Blank),
		}
	}
	mode := cfg.ScoringMode
	if mode == "" {
		mode = model.ScoringNone
	}
	pattern := cfg.CapturePattern
	if pattern == "" {
		pattern = model.DefaultCapturePattern
	}
	_, err := q.Exec(
		`INSERT INTO Session (db_schema_version, dimensions, scoring_mode,
		 correct_weight, incorrect_weight, blank_weight,
		 id_num_digits, survey_mode, left_to_right_numbering, capture_pattern)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		currentSchema, model.FormatDimensions(cfg.Dimensions), string(mode),
		weights[0], weights[1], weights[2],
		cfg.IDNumDigits, cfg.SurveyMode, cfg.LeftToRightNumbering, pattern,
	)
	if err != nil {
		return err
	}
	for _, sym := range cfg.ModelSymbols() {
		for question, rec := range cfg.Models[sym].Questions {
			var scores [3]any
			if rec.Score != nil {
				scores = [3]any{rec.Score.Correct, rec.Score.Incorrect, rec.Score.Blank}
			}
			weight := rec.Weight
			if weight == 0 {
				weight = 1
			}
			_, err := q.Exec(
				`INSERT INTO Questions (model, question, position, choices, solution, weight,
				 correct_score, incorrect_score, blank_score)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sym.String(), question, rec.Position, formatChoices(rec.Choices), rec.Solution.String(), weight,
				scores[0], scores[1], scores[2],
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
