package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
)

type academicRepository struct {
	db *academicTables
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *DB) academic.Repository {
	return &academicRepository{db: db.academic}
}

func (repo *academicRepository) CreateCourse(_ context.Context, c academic.Course) (academic.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.courses {
		if existing.Year == c.Year && strings.EqualFold(existing.Name, c.Name) {
			return academic.Course{}, academic.ErrCourseExists
		}
	}
	c.ID = uuid.New().String()
	repo.db.courses[c.ID] = c
	return c, nil
}

func (repo *academicRepository) ListCourses(_ context.Context) ([]academic.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]academic.Course, 0, len(repo.db.courses))
	for _, c := range repo.db.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool {
		if courses[i].Year != courses[j].Year {
			return courses[i].Year > courses[j].Year
		}
		return courses[i].Name < courses[j].Name
	})
	return courses, nil
}

func (repo *academicRepository) GetCourse(_ context.Context, id string) (academic.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return c, nil
	}
	return academic.Course{}, academic.ErrCourseNotFound
}

func (repo *academicRepository) CreateSubject(_ context.Context, s academic.Subject) (academic.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.subjects {
		if existing.CourseID == s.CourseID && strings.EqualFold(existing.Name, s.Name) {
			return academic.Subject{}, academic.ErrSubjectExists
		}
	}
	s.ID = uuid.New().String()
	repo.db.subjects[s.ID] = s
	return s, nil
}

func (repo *academicRepository) ListSubjects(_ context.Context, filter academic.SubjectFilter) ([]academic.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subjects := make([]academic.Subject, 0)
	for _, s := range repo.db.subjects {
		if len(filter.IDs) > 0 && !contains(filter.IDs, s.ID) {
			continue
		}
		if len(filter.CourseIDs) > 0 && !contains(filter.CourseIDs, s.CourseID) {
			continue
		}
		if filter.TeacherID != "" && s.TeacherID.String != filter.TeacherID {
			continue
		}
		subjects = append(subjects, s)
	}
	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].CourseID != subjects[j].CourseID {
			return subjects[i].CourseID < subjects[j].CourseID
		}
		return subjects[i].Name < subjects[j].Name
	})
	return subjects, nil
}

func (repo *academicRepository) GetSubject(_ context.Context, id string) (academic.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.subjects[id]; ok {
		return s, nil
	}
	return academic.Subject{}, academic.ErrSubjectNotFound
}

func (repo *academicRepository) CreatePeriod(_ context.Context, p academic.Period) (academic.Period, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.periods {
		if existing.SubjectID == p.SubjectID && existing.Number == p.Number {
			return academic.Period{}, academic.ErrPeriodExists
		}
	}
	p.ID = uuid.New().String()
	repo.db.periods[p.ID] = p
	return p, nil
}

func (repo *academicRepository) ListPeriods(_ context.Context, subjectIDs ...string) ([]academic.Period, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	periods := make([]academic.Period, 0)
	for _, p := range repo.db.periods {
		if contains(subjectIDs, p.SubjectID) {
			periods = append(periods, p)
		}
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].SubjectID != periods[j].SubjectID {
			return periods[i].SubjectID < periods[j].SubjectID
		}
		return periods[i].Number < periods[j].Number
	})
	return periods, nil
}

func (repo *academicRepository) GetPeriod(_ context.Context, id string) (academic.Period, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.periods[id]; ok {
		return p, nil
	}
	return academic.Period{}, academic.ErrPeriodNotFound
}

func (repo *academicRepository) CreateQuiz(_ context.Context, q academic.Quiz) (academic.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	q.ID = uuid.New().String()
	repo.db.quizzes[q.ID] = q
	return q, nil
}

func (repo *academicRepository) ListQuizzes(_ context.Context, subjectID string) ([]academic.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	quizzes := make([]academic.Quiz, 0)
	for _, q := range repo.db.quizzes {
		if q.SubjectID == subjectID {
			quizzes = append(quizzes, q)
		}
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].CreatedAt.Before(quizzes[j].CreatedAt) })
	return quizzes, nil
}

func (repo *academicRepository) GetQuiz(_ context.Context, id string) (academic.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if q, ok := repo.db.quizzes[id]; ok {
		return q, nil
	}
	return academic.Quiz{}, academic.ErrQuizNotFound
}

func (repo *academicRepository) CreateEvaluation(_ context.Context, e academic.Evaluation) (academic.Evaluation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	e.ID = uuid.New().String()
	repo.db.evaluations[e.ID] = e
	return e, nil
}

func (repo *academicRepository) ListEvaluations(_ context.Context, subjectID string) ([]academic.Evaluation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	evaluations := make([]academic.Evaluation, 0)
	for _, e := range repo.db.evaluations {
		if e.SubjectID == subjectID {
			evaluations = append(evaluations, e)
		}
	}
	sort.Slice(evaluations, func(i, j int) bool { return evaluations[i].CreatedAt.Before(evaluations[j].CreatedAt) })
	return evaluations, nil
}

func (repo *academicRepository) GetEvaluation(_ context.Context, id string) (academic.Evaluation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.evaluations[id]; ok {
		return e, nil
	}
	return academic.Evaluation{}, academic.ErrEvaluationNotFound
}

func (repo *academicRepository) AddEnrollments(_ context.Context, enrollments ...academic.Enrollment) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, e := range enrollments {
		var exists bool
		for _, existing := range repo.db.enrollments {
			if existing.CourseID == e.CourseID && existing.StudentID == e.StudentID {
				exists = true
				break
			}
		}
		if !exists {
			repo.db.enrollments = append(repo.db.enrollments, e)
		}
	}
	return nil
}

func (repo *academicRepository) ListEnrollments(_ context.Context, filter academic.EnrollmentFilter) ([]academic.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrollments := make([]academic.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, nil
}

func (repo *academicRepository) AddGuardianLinks(_ context.Context, links ...academic.GuardianLink) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, l := range links {
		var exists bool
		for _, existing := range repo.db.guardianLinks {
			if existing.GuardianID == l.GuardianID && existing.StudentID == l.StudentID {
				exists = true
				break
			}
		}
		if !exists {
			repo.db.guardianLinks = append(repo.db.guardianLinks, l)
		}
	}
	return nil
}

func (repo *academicRepository) ListGuardianLinks(_ context.Context, guardianID string) ([]academic.GuardianLink, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	links := make([]academic.GuardianLink, 0)
	for _, l := range repo.db.guardianLinks {
		if l.GuardianID == guardianID {
			links = append(links, l)
		}
	}
	return links, nil
}
