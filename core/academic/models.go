package academic

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
)

type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Year      int       `json:"year"`
	CreatedAt time.Time `json:"created_at"`
}

// Subject (materia) is scoped to a Course and optionally taught by a teacher.
type Subject struct {
	ID        string      `json:"id"`
	CourseID  string      `json:"course_id"`
	Name      string      `json:"name"`
	TeacherID null.String `json:"teacher_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// Period is a numbered grading interval within a Subject.
type Period struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Number    int       `json:"number"`
	StartsOn  null.Time `json:"starts_on"`
	EndsOn    null.Time `json:"ends_on"`
	CreatedAt time.Time `json:"created_at"`
}

type Quiz struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	PeriodID  string    `json:"period_id"`
	Title     string    `json:"title"`
	Subtopic  string    `json:"subtopic"`
	CreatedAt time.Time `json:"created_at"`
}

type Evaluation struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	PeriodID  string    `json:"period_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Enrollment struct {
	CourseID  string    `json:"course_id"`
	StudentID string    `json:"student_id"`
	CreatedAt time.Time `json:"created_at"`
}

type GuardianLink struct {
	GuardianID string    `json:"guardian_id"`
	StudentID  string    `json:"student_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type NewCourse struct {
	Name string `json:"name" validate:"required,notblank,max=128"`
	Year int    `json:"year" validate:"required,min=2000,max=2100"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

type NewSubject struct {
	Name      string `json:"name" validate:"required,notblank,max=128"`
	TeacherID string `json:"teacher_id" validate:"omitempty,uuid"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.TeacherID = core.CleanString(ns.TeacherID, true /* lower */)
	return validate.Struct(ns)
}

type NewPeriod struct {
	Number   int       `json:"number" validate:"required,min=1"`
	StartsOn null.Time `json:"starts_on"`
	EndsOn   null.Time `json:"ends_on"`
}

func (np *NewPeriod) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

type NewQuiz struct {
	PeriodID string `json:"period_id" validate:"required,uuid"`
	Title    string `json:"title" validate:"required,notblank,max=256"`
	Subtopic string `json:"subtopic" validate:"max=256"`
}

func (nq *NewQuiz) Validate(validate *validator.Validate) error {
	nq.PeriodID = core.CleanString(nq.PeriodID, true /* lower */)
	nq.Title = core.CleanString(nq.Title)
	nq.Subtopic = core.CleanString(nq.Subtopic)
	return validate.Struct(nq)
}

type NewEvaluation struct {
	PeriodID string `json:"period_id" validate:"required,uuid"`
	Title    string `json:"title" validate:"required,notblank,max=256"`
}

func (ne *NewEvaluation) Validate(validate *validator.Validate) error {
	ne.PeriodID = core.CleanString(ne.PeriodID, true /* lower */)
	ne.Title = core.CleanString(ne.Title)
	return validate.Struct(ne)
}

// StudentIDs is the payload of enrollment and guardian link requests.
type StudentIDs struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,uuid"`
}

func (s *StudentIDs) Validate(validate *validator.Validate) error {
	for i, id := range s.StudentIDs {
		s.StudentIDs[i] = core.CleanString(id, true /* lower */)
	}
	return validate.Struct(s)
}

// SubjectFilter applies AND operation on non-empty fields.
type SubjectFilter struct {
	IDs       []string
	CourseIDs []string
	TeacherID string
}

// EnrollmentFilter applies AND operation on non-empty fields.
type EnrollmentFilter struct {
	CourseID  string
	StudentID string
}
