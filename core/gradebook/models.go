package gradebook

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/grading"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

type StudentInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func newStudentInfo(usr user.User) StudentInfo {
	return StudentInfo{ID: usr.ID, Name: usr.Name, Username: usr.Username, Email: usr.Email}
}

type PeriodReport struct {
	PeriodID string          `json:"period_id"`
	Number   int             `json:"number"`
	Summary  grading.Summary `json:"summary"`
}

// SubjectReport is the final grade of a student in a subject, and per period.
type SubjectReport struct {
	SubjectID   string          `json:"subject_id"`
	SubjectName string          `json:"subject_name"`
	CourseID    string          `json:"course_id"`
	CourseName  string          `json:"course_name"`
	TeacherID   string          `json:"teacher_id,omitempty"`
	Summary     grading.Summary `json:"summary"`
	Periods     []PeriodReport  `json:"periods"`
}

type StudentReport struct {
	Student     StudentInfo     `json:"student"`
	Subjects    []SubjectReport `json:"subjects"`
	Tally       grading.Tally   `json:"tally"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// retally recomputes the report tally from its subjects.
func (r *StudentReport) retally() {
	r.Tally = grading.Tally{}
	for _, s := range r.Subjects {
		r.Tally.Add(s.Summary)
	}
}

type SubjectSummary struct {
	SubjectID   string          `json:"subject_id"`
	SubjectName string          `json:"subject_name"`
	Summary     grading.Summary `json:"summary"`
}

type StudentPerformance struct {
	Student  StudentInfo      `json:"student"`
	Subjects []SubjectSummary `json:"subjects"`
	Tally    grading.Tally    `json:"tally"`
}

type SubjectPerformance struct {
	SubjectID   string        `json:"subject_id"`
	SubjectName string        `json:"subject_name"`
	Tally       grading.Tally `json:"tally"`
	// AverageFinalGrade is the mean final grade of the graded students, 0 when none is graded.
	AverageFinalGrade float64 `json:"average_final_grade"`
}

// CoursePerformance is the admin performance-by-course view.
type CoursePerformance struct {
	Course   academic.Course      `json:"course"`
	Students []StudentPerformance `json:"students"`
	Subjects []SubjectPerformance `json:"subjects"`
	Tally    grading.Tally        `json:"tally"`
}

type GuardianLookup struct {
	Email      string `json:"email" validate:"required,email"`
	IDFragment string `json:"id_fragment" validate:"required,min=4,max=20"`
}

func (gl *GuardianLookup) Validate(validate *validator.Validate) error {
	gl.Email = core.CleanString(gl.Email, true /* lower */)
	gl.IDFragment = core.CleanString(gl.IDFragment)
	return validate.Struct(gl)
}

type GuardianView struct {
	Guardian StudentInfo     `json:"guardian"`
	Reports  []StudentReport `json:"reports"`
}
