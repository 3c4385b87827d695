package assessment

import (
	"math"
	"reflect"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/grading"
)

// Kind tells which assessment an Attempt belongs to: a QuizAttempt or an EvaluationAttempt.
type Kind string

const (
	KindQuiz       Kind = "quiz"
	KindEvaluation Kind = "evaluation"
)

func (k Kind) Valid() bool {
	return k == KindQuiz || k == KindEvaluation
}

// Attempt is created in progress when a student starts a quiz or an evaluation
// and completed, with its grade, when they finish it.
type Attempt struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"kind"`
	AssessmentID string       `json:"assessment_id"`
	StudentID    string       `json:"student_id"`
	SubjectID    string       `json:"subject_id"`
	PeriodID     string       `json:"period_id"`
	Grade        null.Float64 `json:"grade"`
	Completed    bool         `json:"completed"`
	StartedAt    time.Time    `json:"started_at"`
	EndedAt      null.Time    `json:"ended_at"`
}

type NewAttempt struct {
	Kind         Kind   `json:"kind" validate:"required,attemptkind"`
	AssessmentID string `json:"assessment_id" validate:"required,uuid"`
	// StudentID defaults to the requesting student.
	StudentID string `json:"student_id" validate:"omitempty,uuid"`
}

func (na *NewAttempt) Validate(validate *validator.Validate) error {
	na.AssessmentID = core.CleanString(na.AssessmentID, true /* lower */)
	na.StudentID = core.CleanString(na.StudentID, true /* lower */)
	return validate.Struct(na)
}

type FinishAttempt struct {
	Grade *float64 `json:"grade" validate:"required,grade"`
}

func (fa *FinishAttempt) Validate(validate *validator.Validate) error {
	return validate.Struct(fa)
}

// QueryFilter applies AND operation on non-empty fields.
type QueryFilter struct {
	StudentIDs    []string
	SubjectIDs    []string
	PeriodID      string
	Kind          Kind
	CompletedOnly bool
}

var (
	attemptKindTag  = "attemptkind"
	attemptKindText = "kind must be one of quiz or evaluation"

	gradeTag  = "grade"
	gradeText = "grade must be between 0 and 5"
)

// InitValidators registers the assessment validators on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(attemptKindTag, attemptKindValidation)
	core.RegisterCustomTranslation(validate, translator, attemptKindTag, attemptKindText)

	_ = validate.RegisterValidation(gradeTag, gradeValidation)
	core.RegisterCustomTranslation(validate, translator, gradeTag, gradeText)
}

func attemptKindValidation(fl validator.FieldLevel) bool {
	return fl.Field().Kind() == reflect.String && Kind(fl.Field().String()).Valid()
}

func gradeValidation(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		g := fl.Field().Float()
		return !math.IsInf(g, 0) && grading.ValidateGrade(g) == nil
	}
	return false
}
