package academic

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

var (
	// errors
	ErrCourseNotFound     = core.NewNotFoundError("course")
	ErrSubjectNotFound    = core.NewNotFoundError("subject")
	ErrPeriodNotFound     = core.NewNotFoundError("period")
	ErrQuizNotFound       = core.NewNotFoundError("quiz")
	ErrEvaluationNotFound = core.NewNotFoundError("evaluation")
	ErrCourseExists       = errors.New("a course with this name already exists for this year")
	ErrSubjectExists      = errors.New("a subject with this name already exists in this course")
	ErrPeriodExists       = errors.New("a period with this number already exists in this subject")

	errNotATeacher     = "user is not an active teacher"
	errNotAStudent     = "user is not an active student"
	errNotAGuardian    = "user is not an active guardian"
	errPeriodOfSubject = "period does not belong to this subject"
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		ListCourses(ctx context.Context) ([]Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)

		CreateSubject(ctx context.Context, s Subject) (Subject, error)
		ListSubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error)
		GetSubject(ctx context.Context, id string) (Subject, error)

		CreatePeriod(ctx context.Context, p Period) (Period, error)
		// ListPeriods returns the periods of the given subjects ordered by subject and number.
		ListPeriods(ctx context.Context, subjectIDs ...string) ([]Period, error)
		GetPeriod(ctx context.Context, id string) (Period, error)

		CreateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		ListQuizzes(ctx context.Context, subjectID string) ([]Quiz, error)
		GetQuiz(ctx context.Context, id string) (Quiz, error)

		CreateEvaluation(ctx context.Context, e Evaluation) (Evaluation, error)
		ListEvaluations(ctx context.Context, subjectID string) ([]Evaluation, error)
		GetEvaluation(ctx context.Context, id string) (Evaluation, error)

		// AddEnrollments ignores enrollments that already exist.
		AddEnrollments(ctx context.Context, enrollments ...Enrollment) error
		ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error)

		// AddGuardianLinks ignores links that already exist.
		AddGuardianLinks(ctx context.Context, links ...GuardianLink) error
		ListGuardianLinks(ctx context.Context, guardianID string) ([]GuardianLink, error)
	}

	Service interface {
		CreateCourse(ctx context.Context, nc NewCourse) (Course, error)
		ListCourses(ctx context.Context) ([]Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)

		CreateSubject(ctx context.Context, courseID string, ns NewSubject) (Subject, error)
		ListSubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error)
		GetSubject(ctx context.Context, id string) (Subject, error)

		CreatePeriod(ctx context.Context, subjectID string, np NewPeriod) (Period, error)
		ListPeriods(ctx context.Context, subjectIDs ...string) ([]Period, error)

		CreateQuiz(ctx context.Context, subjectID string, nq NewQuiz) (Quiz, error)
		GetQuiz(ctx context.Context, id string) (Quiz, error)
		ListQuizzes(ctx context.Context, subjectID string) ([]Quiz, error)

		CreateEvaluation(ctx context.Context, subjectID string, ne NewEvaluation) (Evaluation, error)
		GetEvaluation(ctx context.Context, id string) (Evaluation, error)
		ListEvaluations(ctx context.Context, subjectID string) ([]Evaluation, error)

		Enroll(ctx context.Context, courseID string, studentIDs ...string) ([]Enrollment, error)
		ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error)
		IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)

		LinkGuardian(ctx context.Context, guardianID string, studentIDs ...string) ([]GuardianLink, error)
		GuardianStudentIDs(ctx context.Context, guardianID string) ([]string, error)
	}

	service struct {
		repo      Repository
		userSvc   user.Service
		publisher events.Publisher
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, userSvc user.Service, publisher events.Publisher) Service {
	return &service{repo: repo, userSvc: userSvc, publisher: publisher}
}

func (svc *service) catalogChanged(courseID string, studentIDs ...string) {
	if len(studentIDs) == 0 {
		svc.publisher.Publish(events.Event{Kind: events.CatalogChanged, CourseID: courseID})
		return
	}
	for _, id := range studentIDs {
		svc.publisher.Publish(events.Event{Kind: events.CatalogChanged, CourseID: courseID, StudentID: id})
	}
}

func (svc *service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	c, err := svc.repo.CreateCourse(ctx, Course{
		Name:      nc.Name,
		Year:      nc.Year,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Cause(err) == ErrCourseExists {
		return Course{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
	}
	return c, err
}

func (svc *service) ListCourses(ctx context.Context) ([]Course, error) {
	return svc.repo.ListCourses(ctx)
}

func (svc *service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *service) CreateSubject(ctx context.Context, courseID string, ns NewSubject) (Subject, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return Subject{}, err
	}

	subj := Subject{
		CourseID:  courseID,
		Name:      ns.Name,
		CreatedAt: time.Now().UTC(),
	}
	if ns.TeacherID != "" {
		teacher, err := svc.userSvc.GetByID(ctx, ns.TeacherID)
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return Subject{}, errors.Wrap(err, "getting teacher")
		}
		if err != nil || !teacher.IsTeacher() || !teacher.IsActive {
			return Subject{}, core.NewValidationError(err, core.FieldError{Field: "teacher_id", Error: errNotATeacher})
		}
		subj.TeacherID = null.StringFrom(teacher.ID)
	}

	subj, err := svc.repo.CreateSubject(ctx, subj)
	if err != nil {
		if errors.Cause(err) == ErrSubjectExists {
			return Subject{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return Subject{}, err
	}
	svc.catalogChanged(courseID)
	return subj, nil
}

func (svc *service) ListSubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error) {
	return svc.repo.ListSubjects(ctx, filter)
}

func (svc *service) GetSubject(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *service) CreatePeriod(ctx context.Context, subjectID string, np NewPeriod) (Period, error) {
	subj, err := svc.repo.GetSubject(ctx, subjectID)
	if err != nil {
		return Period{}, err
	}

	p, err := svc.repo.CreatePeriod(ctx, Period{
		SubjectID: subjectID,
		Number:    np.Number,
		StartsOn:  np.StartsOn,
		EndsOn:    np.EndsOn,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrPeriodExists {
			return Period{}, core.NewValidationError(err, core.FieldError{Field: "number", Error: err.Error()})
		}
		return Period{}, err
	}
	svc.catalogChanged(subj.CourseID)
	return p, nil
}

func (svc *service) ListPeriods(ctx context.Context, subjectIDs ...string) ([]Period, error) {
	return svc.repo.ListPeriods(ctx, subjectIDs...)
}

// periodOfSubject checks that periodID belongs to subjectID.
func (svc *service) periodOfSubject(ctx context.Context, subjectID, periodID string) error {
	if _, err := svc.repo.GetSubject(ctx, subjectID); err != nil {
		return err
	}
	p, err := svc.repo.GetPeriod(ctx, periodID)
	if err != nil && errors.Cause(err) != ErrPeriodNotFound {
		return errors.Wrap(err, "getting period")
	}
	if err != nil || p.SubjectID != subjectID {
		return core.NewValidationError(err, core.FieldError{Field: "period_id", Error: errPeriodOfSubject})
	}
	return nil
}

func (svc *service) CreateQuiz(ctx context.Context, subjectID string, nq NewQuiz) (Quiz, error) {
	if err := svc.periodOfSubject(ctx, subjectID, nq.PeriodID); err != nil {
		return Quiz{}, err
	}
	return svc.repo.CreateQuiz(ctx, Quiz{
		SubjectID: subjectID,
		PeriodID:  nq.PeriodID,
		Title:     nq.Title,
		Subtopic:  nq.Subtopic,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return svc.repo.GetQuiz(ctx, id)
}

func (svc *service) ListQuizzes(ctx context.Context, subjectID string) ([]Quiz, error) {
	return svc.repo.ListQuizzes(ctx, subjectID)
}

func (svc *service) CreateEvaluation(ctx context.Context, subjectID string, ne NewEvaluation) (Evaluation, error) {
	if err := svc.periodOfSubject(ctx, subjectID, ne.PeriodID); err != nil {
		return Evaluation{}, err
	}
	return svc.repo.CreateEvaluation(ctx, Evaluation{
		SubjectID: subjectID,
		PeriodID:  ne.PeriodID,
		Title:     ne.Title,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) GetEvaluation(ctx context.Context, id string) (Evaluation, error) {
	return svc.repo.GetEvaluation(ctx, id)
}

func (svc *service) ListEvaluations(ctx context.Context, subjectID string) ([]Evaluation, error) {
	return svc.repo.ListEvaluations(ctx, subjectID)
}

// usersWithRole checks that every id is an active user with the role prefix.
func (svc *service) usersWithRole(ctx context.Context, ids []string, role, field, errText string) error {
	for _, id := range ids {
		usr, err := svc.userSvc.GetByID(ctx, id)
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return errors.Wrap(err, "getting user")
		}
		if err != nil || !usr.RoleStartsWith(role) || !usr.IsActive {
			return core.NewValidationError(err, core.FieldError{Field: field, Error: errText + ": " + id})
		}
	}
	return nil
}

func (svc *service) Enroll(ctx context.Context, courseID string, studentIDs ...string) ([]Enrollment, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	if err := svc.usersWithRole(ctx, studentIDs, user.RoleStudent, "student_ids", errNotAStudent); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	enrollments := make([]Enrollment, len(studentIDs))
	for i, id := range studentIDs {
		enrollments[i] = Enrollment{CourseID: courseID, StudentID: id, CreatedAt: now}
	}
	if err := svc.repo.AddEnrollments(ctx, enrollments...); err != nil {
		return nil, errors.Wrap(err, "adding enrollments")
	}
	svc.catalogChanged(courseID, studentIDs...)
	return svc.repo.ListEnrollments(ctx, EnrollmentFilter{CourseID: courseID})
}

func (svc *service) ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error) {
	return svc.repo.ListEnrollments(ctx, filter)
}

func (svc *service) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	enrollments, err := svc.repo.ListEnrollments(ctx, EnrollmentFilter{CourseID: courseID, StudentID: studentID})
	if err != nil {
		return false, errors.Wrap(err, "listing enrollments")
	}
	return len(enrollments) > 0, nil
}

func (svc *service) LinkGuardian(ctx context.Context, guardianID string, studentIDs ...string) ([]GuardianLink, error) {
	guardian, err := svc.userSvc.GetByID(ctx, guardianID)
	if err != nil {
		return nil, err
	}
	if !guardian.IsGuardian() || !guardian.IsActive {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "guardian_id", Error: errNotAGuardian})
	}
	if err = svc.usersWithRole(ctx, studentIDs, user.RoleStudent, "student_ids", errNotAStudent); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	links := make([]GuardianLink, len(studentIDs))
	for i, id := range studentIDs {
		links[i] = GuardianLink{GuardianID: guardianID, StudentID: id, CreatedAt: now}
	}
	if err = svc.repo.AddGuardianLinks(ctx, links...); err != nil {
		return nil, errors.Wrap(err, "adding guardian links")
	}
	return svc.repo.ListGuardianLinks(ctx, guardianID)
}

func (svc *service) GuardianStudentIDs(ctx context.Context, guardianID string) ([]string, error) {
	links, err := svc.repo.ListGuardianLinks(ctx, guardianID)
	if err != nil {
		return nil, errors.Wrap(err, "listing guardian links")
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.StudentID
	}
	return ids, nil
}
