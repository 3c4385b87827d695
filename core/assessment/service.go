package assessment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/grading"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("attempt")
	ErrAttemptCompleted  = errors.New("attempt already completed")
	ErrAttemptInProgress = errors.New("an attempt on this assessment is already in progress")

	errNotEnrolled = "student is not enrolled in this course"
)

type (
	Repository interface {
		// CreateAttempt fails with ErrAttemptInProgress when the student already has an
		// in-progress attempt on the same assessment.
		CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		// FinishAttempt atomically completes an in-progress attempt.
		// It returns ErrAttemptCompleted if the attempt was already completed.
		FinishAttempt(ctx context.Context, id string, grade float64, endedAt time.Time) (Attempt, error)
		QueryAttempts(ctx context.Context, filter QueryFilter) ([]Attempt, error)
	}

	Service interface {
		Start(ctx context.Context, na NewAttempt) (Attempt, error)
		Finish(ctx context.Context, id string, grade float64) (Attempt, error)
		Get(ctx context.Context, id string) (Attempt, error)
		Query(ctx context.Context, filter QueryFilter) ([]Attempt, error)
	}

	service struct {
		repo        Repository
		academicSvc academic.Service
		publisher   events.Publisher
		logger      core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, academicSvc academic.Service, publisher events.Publisher, logger core.Logger) Service {
	return &service{
		repo:        repo,
		academicSvc: academicSvc,
		publisher:   publisher,
		logger:      logger,
	}
}

// Start creates an in-progress attempt of a student on a quiz or an evaluation.
// The student must be enrolled in the course of the assessment's subject.
func (svc *service) Start(ctx context.Context, na NewAttempt) (Attempt, error) {
	var subjectID, periodID string
	switch na.Kind {
	case KindQuiz:
		q, err := svc.academicSvc.GetQuiz(ctx, na.AssessmentID)
		if err != nil {
			return Attempt{}, err
		}
		subjectID, periodID = q.SubjectID, q.PeriodID
	case KindEvaluation:
		e, err := svc.academicSvc.GetEvaluation(ctx, na.AssessmentID)
		if err != nil {
			return Attempt{}, err
		}
		subjectID, periodID = e.SubjectID, e.PeriodID
	default:
		return Attempt{}, core.NewValidationError(nil, core.FieldError{Field: "kind", Error: attemptKindText})
	}

	subj, err := svc.academicSvc.GetSubject(ctx, subjectID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting subject")
	}
	enrolled, err := svc.academicSvc.IsEnrolled(ctx, subj.CourseID, na.StudentID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Attempt{}, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: errNotEnrolled})
	}

	inProgress, err := svc.repo.QueryAttempts(ctx, QueryFilter{StudentIDs: []string{na.StudentID}, SubjectIDs: []string{subjectID}})
	if err != nil {
		return Attempt{}, errors.Wrap(err, "querying attempts")
	}
	for _, a := range inProgress {
		if !a.Completed && a.AssessmentID == na.AssessmentID {
			return Attempt{}, errInProgress()
		}
	}

	// the repository enforces a single in-progress attempt when Starts race
	a, err := svc.repo.CreateAttempt(ctx, Attempt{
		Kind:         na.Kind,
		AssessmentID: na.AssessmentID,
		StudentID:    na.StudentID,
		SubjectID:    subjectID,
		PeriodID:     periodID,
		StartedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrAttemptInProgress {
			return Attempt{}, errInProgress()
		}
		return Attempt{}, err
	}
	return a, nil
}

func errInProgress() error {
	return core.NewValidationError(ErrAttemptInProgress, core.FieldError{
		Field: "assessment_id",
		Error: ErrAttemptInProgress.Error(),
	})
}

// Finish sets the grade of an in-progress attempt and completes it.
// A completed attempt is immutable: finishing it again fails with ErrAttemptCompleted.
func (svc *service) Finish(ctx context.Context, id string, grade float64) (Attempt, error) {
	if err := grading.ValidateGrade(grade); err != nil {
		return Attempt{}, core.NewValidationError(err, core.FieldError{Field: "grade", Error: gradeText})
	}

	a, err := svc.repo.FinishAttempt(ctx, id, grade, time.Now().UTC())
	if err != nil {
		if errors.Cause(err) == ErrAttemptCompleted {
			return Attempt{}, core.NewValidationError(err, core.FieldError{Field: "id", Error: err.Error()})
		}
		return Attempt{}, err
	}

	ev := events.Event{
		Kind:      events.AttemptFinished,
		AttemptID: a.ID,
		StudentID: a.StudentID,
		SubjectID: a.SubjectID,
	}
	if subj, err := svc.academicSvc.GetSubject(ctx, a.SubjectID); err == nil {
		ev.CourseID = subj.CourseID
	} else {
		svc.logger.Warn("finish attempt: course of subject not resolved", errors.Wrap(err, "getting subject"))
	}
	svc.publisher.Publish(ev)
	return a, nil
}

func (svc *service) Get(ctx context.Context, id string) (Attempt, error) {
	return svc.repo.GetAttempt(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, filter)
}

// Grades splits the grades of completed attempts by kind.
func Grades(attempts []Attempt) (quizGrades, evaluationGrades []float64) {
	for _, a := range attempts {
		if !a.Completed || !a.Grade.Valid {
			continue
		}
		switch a.Kind {
		case KindQuiz:
			quizGrades = append(quizGrades, a.Grade.Float64)
		case KindEvaluation:
			evaluationGrades = append(evaluationGrades, a.Grade.Float64)
		}
	}
	return quizGrades, evaluationGrades
}

// Complete returns a completed copy of a.
func (a Attempt) Complete(grade float64, endedAt time.Time) Attempt {
	a.Grade = null.Float64From(grade)
	a.Completed = true
	a.EndedAt = null.TimeFrom(endedAt)
	return a
}
