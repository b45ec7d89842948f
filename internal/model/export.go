package model

// GradeRow is one line of a grade listing. Exam is nil for a student
// without a graded exam; Student is nil for an exam with no known student.
type GradeRow struct {
	Student *Student
	Exam    *Exam
}

// GradeOrder selects the order of a grade listing.
type GradeOrder string

const (
	// OrderRoster sorts by group and sequence number in the group.
	OrderRoster GradeOrder = "roster"
	// OrderLastName sorts by last name, then first name.
	OrderLastName GradeOrder = "last-name"
	// OrderGrading sorts by exam id, i.e. the order in which exams were graded.
	OrderGrading GradeOrder = "grading"
)

// ParseGradeOrder validates a grade order name.
func ParseGradeOrder(s string) (GradeOrder, bool) {
	switch o := GradeOrder(s); o {
	case OrderRoster, OrderLastName, OrderGrading:
		return o, true
	}
	return "", false
}
