package store

import (
	"cmp"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pavelanni/omrgrade/internal/model"
)

// ErrDuplicateSequence is returned when a sequence number is already taken
// in the student's group.
var ErrDuplicateSequence = errors.New("sequence number already used in group")

// studentRow holds the Students columns selected by schema.studentColumns.
type studentRow struct {
	dbID                               sql.NullInt64
	studentID, first, last, name, mail sql.NullString
	groupID, seq                       sql.NullInt64
}

func (r *studentRow) dest() []any {
	return []any{&r.dbID, &r.studentID, &r.first, &r.last, &r.name, &r.mail, &r.groupID, &r.seq}
}

func (r *studentRow) student() *model.Student {
	if !r.dbID.Valid {
		return nil
	}
	return &model.Student{
		DBID:        r.dbID.Int64,
		StudentID:   r.studentID.String,
		FirstName:   r.first.String,
		LastName:    r.last.String,
		Name:        r.name.String,
		Email:       r.mail.String,
		GroupID:     r.groupID.Int64,
		SequenceNum: int(r.seq.Int64),
	}
}

func (s *Store) loadStudents() error {
	rows, err := s.db.Query(`SELECT ` + s.schema.studentColumns("s") + ` FROM Students s`)
	if err != nil {
		return fmt.Errorf("%w: load students: %v", ErrSessionInvalid, err)
	}
	defer rows.Close()
	s.byStudentID = make(map[string]*model.Student)
	s.byDBID = make(map[int64]*model.Student)
	for rows.Next() {
		var r studentRow
		if err := rows.Scan(r.dest()...); err != nil {
			return fmt.Errorf("%w: load students: %v", ErrSessionInvalid, err)
		}
		s.addStudent(*r.student())
	}
	return rows.Err()
}

func (s *Store) addStudent(st model.Student) {
	p := &st
	s.byDBID[st.DBID] = p
	if st.StudentID != "" {
		s.byStudentID[st.StudentID] = p
	}
}

// studentByDBID returns a copy of a roster entry.
func (s *Store) studentByDBID(id int64) *model.Student {
	if st, ok := s.byDBID[id]; ok {
		c := *st
		return &c
	}
	return &model.Student{DBID: id}
}

// StoreNewStudent inserts a student. A negative SequenceNum gets the next
// free number of the student's group; an explicit one must be unused there.
func (s *Store) StoreNewStudent(st *model.Student) error {
	if st.InDatabase() {
		return fmt.Errorf("student %q already stored with id %d", st.StudentID, st.DBID)
	}
	if err := s.schema.insertStudent(s.db, st); err != nil {
		slog.Error("failed to store student", "student_id", st.StudentID, "error", err)
		return err
	}
	s.addStudent(*st)
	slog.Info("stored student", "db_id", st.DBID, "student_id", st.StudentID, "group", st.GroupID, "seq", st.SequenceNum)
	return nil
}

// FindStudent looks up a roster entry by student id.
func (s *Store) FindStudent(studentID string) (*model.Student, bool) {
	st, ok := s.byStudentID[studentID]
	if !ok {
		return nil, false
	}
	c := *st
	return &c, true
}

// Students returns the roster ordered by group and sequence number.
func (s *Store) Students() []model.Student {
	out := make([]model.Student, 0, len(s.byDBID))
	for _, st := range s.byDBID {
		out = append(out, *st)
	}
	slices.SortFunc(out, rosterOrder)
	return out
}

func rosterOrder(a, b model.Student) int {
	return cmp.Or(
		cmp.Compare(a.GroupID, b.GroupID),
		cmp.Compare(a.SequenceNum, b.SequenceNum),
		cmp.Compare(a.DBID, b.DBID),
	)
}

// Groups returns every student group with its students in roster order.
func (s *Store) Groups() ([]model.StudentGroup, error) {
	rows, err := s.db.Query(`SELECT group_id, group_name FROM StudentGroups ORDER BY group_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []model.StudentGroup
	index := make(map[int64]int)
	for rows.Next() {
		var g model.StudentGroup
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, st := range s.Students() {
		if i, ok := index[st.GroupID]; ok {
			groups[i].Students = append(groups[i].Students, st)
		}
	}
	return groups, nil
}

// ReadStudentList loads a student list file into a group named after the
// file. Lines hold comma, semicolon or tab separated fields:
//
//	id
//	id, name
//	id, name, email
//	id, first name, last name, email
//
// Empty lines and lines starting with '#' are skipped.
func ReadStudentList(path string) (model.StudentGroup, error) {
	g := model.StudentGroup{Name: filepath.Base(path)}
	data, err := os.ReadFile(path)
	if err != nil {
		return g, fmt.Errorf("read student list: %w", err)
	}
	r := csv.NewReader(strings.NewReader(string(data)))
	r.Comma = detectComma(string(data))
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return g, fmt.Errorf("read student list %s: %w", g.Name, err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		st := model.Student{StudentID: rec[0], SequenceNum: len(g.Students)}
		switch len(rec) {
		case 1:
		case 2:
			st.Name = rec[1]
		case 3:
			st.Name, st.Email = rec[1], rec[2]
		default:
			st.FirstName, st.LastName, st.Email = rec[1], rec[2], rec[3]
		}
		g.Students = append(g.Students, st)
	}
	return g, nil
}

// detectComma picks the separator from the first data line.
func detectComma(data string) rune {
	for line := range strings.Lines(data) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.Contains(line, "\t"):
			return '\t'
		case strings.Contains(line, ";"):
			return ';'
		}
		break
	}
	return ','
}
