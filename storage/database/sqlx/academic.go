package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
)

// Tagged mirrors of the academic models; identical fields allow direct conversion.
type (
	courseRow struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Year      int       `db:"year"`
		CreatedAt time.Time `db:"created_at"`
	}
	quizRow struct {
		ID        string    `db:"id"`
		SubjectID string    `db:"subject_id"`
		PeriodID  string    `db:"period_id"`
		Title     string    `db:"title"`
		Subtopic  string    `db:"subtopic"`
		CreatedAt time.Time `db:"created_at"`
	}
	evaluationRow struct {
		ID        string    `db:"id"`
		SubjectID string    `db:"subject_id"`
		PeriodID  string    `db:"period_id"`
		Title     string    `db:"title"`
		CreatedAt time.Time `db:"created_at"`
	}
	enrollmentRow struct {
		CourseID  string    `db:"course_id"`
		StudentID string    `db:"student_id"`
		CreatedAt time.Time `db:"created_at"`
	}
	guardianLinkRow struct {
		GuardianID string    `db:"guardian_id"`
		StudentID  string    `db:"student_id"`
		CreatedAt  time.Time `db:"created_at"`
	}
)

type subjectRow struct {
	ID        string      `db:"id"`
	CourseID  string      `db:"course_id"`
	Name      string      `db:"name"`
	TeacherID null.String `db:"teacher_id"`
	CreatedAt time.Time   `db:"created_at"`
}

func (r subjectRow) toSubject() academic.Subject {
	return academic.Subject{
		ID:        r.ID,
		CourseID:  r.CourseID,
		Name:      r.Name,
		TeacherID: r.TeacherID,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type academicRepository struct {
	exec core.DBExecutor
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(exec core.DBExecutor) academic.Repository {
	return &academicRepository{exec: exec}
}

// validIDs drops the ids that cannot be compared to a uuid column.
func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (repo *academicRepository) CreateCourse(ctx context.Context, c academic.Course) (academic.Course, error) {
	c.ID = uuid.New().String()
	c.CreatedAt = c.CreatedAt.UTC()
	q := `INSERT INTO courses (id, name, year, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := repo.exec.ExecContext(ctx, q, c.ID, c.Name, c.Year, c.CreatedAt); err != nil {
		if isUniqueViolation(err, "courses_name_year_key") {
			return academic.Course{}, academic.ErrCourseExists
		}
		return academic.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *academicRepository) ListCourses(ctx context.Context) ([]academic.Course, error) {
	var rows []courseRow
	q := `SELECT id, name, year, created_at FROM courses ORDER BY year DESC, name ASC`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing courses")
	}
	courses := make([]academic.Course, 0, len(rows))
	for _, r := range rows {
		r.CreatedAt = r.CreatedAt.UTC()
		courses = append(courses, academic.Course(r))
	}
	return courses, nil
}

func (repo *academicRepository) GetCourse(ctx context.Context, id string) (academic.Course, error) {
	if !isUUID(id) {
		return academic.Course{}, academic.ErrCourseNotFound
	}
	var row courseRow
	q := `SELECT id, name, year, created_at FROM courses WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return academic.Course{}, trapNoRowsErr(err, academic.ErrCourseNotFound, "getting course")
	}
	row.CreatedAt = row.CreatedAt.UTC()
	return academic.Course(row), nil
}

func (repo *academicRepository) CreateSubject(ctx context.Context, s academic.Subject) (academic.Subject, error) {
	s.ID = uuid.New().String()
	row := subjectRow{ID: s.ID, CourseID: s.CourseID, Name: s.Name, TeacherID: s.TeacherID, CreatedAt: s.CreatedAt.UTC()}
	q := `INSERT INTO subjects (id, course_id, name, teacher_id, created_at)
		VALUES (:id, :course_id, :name, :teacher_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, row); err != nil {
		if isUniqueViolation(err, "subjects_course_id_name_key") {
			return academic.Subject{}, academic.ErrSubjectExists
		}
		return academic.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return row.toSubject(), nil
}

func (repo *academicRepository) ListSubjects(ctx context.Context, filter academic.SubjectFilter) ([]academic.Subject, error) {
	var w where
	if len(filter.IDs) > 0 {
		w.add("id = ANY(?::uuid[])", pq.Array(validIDs(filter.IDs)))
	}
	if len(filter.CourseIDs) > 0 {
		w.add("course_id = ANY(?::uuid[])", pq.Array(validIDs(filter.CourseIDs)))
	}
	if filter.TeacherID != "" {
		if !isUUID(filter.TeacherID) {
			return []academic.Subject{}, nil
		}
		w.add("teacher_id = ?", filter.TeacherID)
	}

	var rows []subjectRow
	q := `SELECT id, course_id, name, teacher_id, created_at FROM subjects` + w.String() + ` ORDER BY course_id, name`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing subjects")
	}
	subjects := make([]academic.Subject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, r.toSubject())
	}
	return subjects, nil
}

func (repo *academicRepository) GetSubject(ctx context.Context, id string) (academic.Subject, error) {
	if !isUUID(id) {
		return academic.Subject{}, academic.ErrSubjectNotFound
	}
	var row subjectRow
	q := `SELECT id, course_id, name, teacher_id, created_at FROM subjects WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return academic.Subject{}, trapNoRowsErr(err, academic.ErrSubjectNotFound, "getting subject")
	}
	return row.toSubject(), nil
}

const periodColumns = `id, subject_id, number, starts_on, ends_on, created_at`

type periodRow struct {
	ID        string    `db:"id"`
	SubjectID string    `db:"subject_id"`
	Number    int       `db:"number"`
	StartsOn  null.Time `db:"starts_on"`
	EndsOn    null.Time `db:"ends_on"`
	CreatedAt time.Time `db:"created_at"`
}

func (r periodRow) toPeriod() academic.Period {
	return academic.Period{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		Number:    r.Number,
		StartsOn:  r.StartsOn,
		EndsOn:    r.EndsOn,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (repo *academicRepository) CreatePeriod(ctx context.Context, p academic.Period) (academic.Period, error) {
	p.ID = uuid.New().String()
	row := periodRow{ID: p.ID, SubjectID: p.SubjectID, Number: p.Number, StartsOn: p.StartsOn, EndsOn: p.EndsOn, CreatedAt: p.CreatedAt.UTC()}
	q := `INSERT INTO periods (` + periodColumns + `)
		VALUES (:id, :subject_id, :number, :starts_on, :ends_on, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, row); err != nil {
		if isUniqueViolation(err, "periods_subject_id_number_key") {
			return academic.Period{}, academic.ErrPeriodExists
		}
		return academic.Period{}, errors.Wrap(err, "inserting period")
	}
	return row.toPeriod(), nil
}

func (repo *academicRepository) ListPeriods(ctx context.Context, subjectIDs ...string) ([]academic.Period, error) {
	ids := validIDs(subjectIDs)
	if len(ids) == 0 {
		return []academic.Period{}, nil
	}
	var rows []periodRow
	q := `SELECT ` + periodColumns + ` FROM periods WHERE subject_id = ANY($1::uuid[]) ORDER BY subject_id, number`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "listing periods")
	}
	periods := make([]academic.Period, 0, len(rows))
	for _, r := range rows {
		periods = append(periods, r.toPeriod())
	}
	return periods, nil
}

func (repo *academicRepository) GetPeriod(ctx context.Context, id string) (academic.Period, error) {
	if !isUUID(id) {
		return academic.Period{}, academic.ErrPeriodNotFound
	}
	var row periodRow
	q := `SELECT ` + periodColumns + ` FROM periods WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return academic.Period{}, trapNoRowsErr(err, academic.ErrPeriodNotFound, "getting period")
	}
	return row.toPeriod(), nil
}

func (repo *academicRepository) CreateQuiz(ctx context.Context, qz academic.Quiz) (academic.Quiz, error) {
	qz.ID = uuid.New().String()
	qz.CreatedAt = qz.CreatedAt.UTC()
	q := `INSERT INTO quizzes (id, subject_id, period_id, title, subtopic, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := repo.exec.ExecContext(ctx, q, qz.ID, qz.SubjectID, qz.PeriodID, qz.Title, qz.Subtopic, qz.CreatedAt); err != nil {
		return academic.Quiz{}, errors.Wrap(err, "inserting quiz")
	}
	return qz, nil
}

func (repo *academicRepository) ListQuizzes(ctx context.Context, subjectID string) ([]academic.Quiz, error) {
	if !isUUID(subjectID) {
		return []academic.Quiz{}, nil
	}
	var rows []quizRow
	q := `SELECT id, subject_id, period_id, title, subtopic, created_at FROM quizzes WHERE subject_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, subjectID); err != nil {
		return nil, errors.Wrap(err, "listing quizzes")
	}
	quizzes := make([]academic.Quiz, 0, len(rows))
	for _, r := range rows {
		r.CreatedAt = r.CreatedAt.UTC()
		quizzes = append(quizzes, academic.Quiz(r))
	}
	return quizzes, nil
}

func (repo *academicRepository) GetQuiz(ctx context.Context, id string) (academic.Quiz, error) {
	if !isUUID(id) {
		return academic.Quiz{}, academic.ErrQuizNotFound
	}
	var row quizRow
	q := `SELECT id, subject_id, period_id, title, subtopic, created_at FROM quizzes WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return academic.Quiz{}, trapNoRowsErr(err, academic.ErrQuizNotFound, "getting quiz")
	}
	row.CreatedAt = row.CreatedAt.UTC()
	return academic.Quiz(row), nil
}

func (repo *academicRepository) CreateEvaluation(ctx context.Context, e academic.Evaluation) (academic.Evaluation, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = e.CreatedAt.UTC()
	q := `INSERT INTO evaluations (id, subject_id, period_id, title, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := repo.exec.ExecContext(ctx, q, e.ID, e.SubjectID, e.PeriodID, e.Title, e.CreatedAt); err != nil {
		return academic.Evaluation{}, errors.Wrap(err, "inserting evaluation")
	}
	return e, nil
}

func (repo *academicRepository) ListEvaluations(ctx context.Context, subjectID string) ([]academic.Evaluation, error) {
	if !isUUID(subjectID) {
		return []academic.Evaluation{}, nil
	}
	var rows []evaluationRow
	q := `SELECT id, subject_id, period_id, title, created_at FROM evaluations WHERE subject_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, subjectID); err != nil {
		return nil, errors.Wrap(err, "listing evaluations")
	}
	evaluations := make([]academic.Evaluation, 0, len(rows))
	for _, r := range rows {
		r.CreatedAt = r.CreatedAt.UTC()
		evaluations = append(evaluations, academic.Evaluation(r))
	}
	return evaluations, nil
}

func (repo *academicRepository) GetEvaluation(ctx context.Context, id string) (academic.Evaluation, error) {
	if !isUUID(id) {
		return academic.Evaluation{}, academic.ErrEvaluationNotFound
	}
	var row evaluationRow
	q := `SELECT id, subject_id, period_id, title, created_at FROM evaluations WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return academic.Evaluation{}, trapNoRowsErr(err, academic.ErrEvaluationNotFound, "getting evaluation")
	}
	row.CreatedAt = row.CreatedAt.UTC()
	return academic.Evaluation(row), nil
}

func (repo *academicRepository) AddEnrollments(ctx context.Context, enrollments ...academic.Enrollment) error {
	q := `INSERT INTO enrollments (course_id, student_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	for _, e := range enrollments {
		if _, err := repo.exec.ExecContext(ctx, q, e.CourseID, e.StudentID, e.CreatedAt.UTC()); err != nil {
			return errors.Wrap(err, "inserting enrollment")
		}
	}
	return nil
}

func (repo *academicRepository) ListEnrollments(ctx context.Context, filter academic.EnrollmentFilter) ([]academic.Enrollment, error) {
	var w where
	if filter.CourseID != "" {
		if !isUUID(filter.CourseID) {
			return []academic.Enrollment{}, nil
		}
		w.add("course_id = ?", filter.CourseID)
	}
	if filter.StudentID != "" {
		if !isUUID(filter.StudentID) {
			return []academic.Enrollment{}, nil
		}
		w.add("student_id = ?", filter.StudentID)
	}

	var rows []enrollmentRow
	q := `SELECT course_id, student_id, created_at FROM enrollments` + w.String() + ` ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}
	enrollments := make([]academic.Enrollment, 0, len(rows))
	for _, r := range rows {
		r.CreatedAt = r.CreatedAt.UTC()
		enrollments = append(enrollments, academic.Enrollment(r))
	}
	return enrollments, nil
}

func (repo *academicRepository) AddGuardianLinks(ctx context.Context, links ...academic.GuardianLink) error {
	q := `INSERT INTO guardian_links (guardian_id, student_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	for _, l := range links {
		if _, err := repo.exec.ExecContext(ctx, q, l.GuardianID, l.StudentID, l.CreatedAt.UTC()); err != nil {
			return errors.Wrap(err, "inserting guardian link")
		}
	}
	return nil
}

func (repo *academicRepository) ListGuardianLinks(ctx context.Context, guardianID string) ([]academic.GuardianLink, error) {
	if !isUUID(guardianID) {
		return []academic.GuardianLink{}, nil
	}
	var rows []guardianLinkRow
	q := `SELECT guardian_id, student_id, created_at FROM guardian_links WHERE guardian_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, guardianID); err != nil {
		return nil, errors.Wrap(err, "listing guardian links")
	}
	links := make([]academic.GuardianLink, 0, len(rows))
	for _, r := range rows {
		r.CreatedAt = r.CreatedAt.UTC()
		links = append(links, academic.GuardianLink(r))
	}
	return links, nil
}
