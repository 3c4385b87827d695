package gradebook_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/gradebook"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/grading"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/internal/testutil"
	cachesvc "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/services/cache"
)

const gradeDelta = 1e-9

func Test_service_StudentReport(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	school := env.NewSchool(t, "Primero", 1)
	student := school.Students[0]

	_, err := env.GradebookSvc.StudentReport(ctx, uuid.New().String())
	assert.Equal(t, gradebook.ErrStudentNotFound, errors.Cause(err))
	_, err = env.GradebookSvc.StudentReport(ctx, school.Teacher.ID)
	assert.Equal(t, gradebook.ErrStudentNotFound, errors.Cause(err))

	report, err := env.GradebookSvc.StudentReport(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, report.Subjects, 1)
	subj := report.Subjects[0]
	assert.Equal(t, "Primero", subj.CourseName)
	assert.Equal(t, school.Teacher.ID, subj.TeacherID)
	assert.False(t, subj.Summary.Graded)
	assert.Equal(t, 0.0, subj.Summary.FinalGrade)
	assert.Equal(t, grading.Tally{Ungraded: 1}, report.Tally)
	assert.Equal(t, 1, env.Cache.Len())

	// quiz average 4.5, evaluation average 2: 0.7*4.5 + 0.3*2 = 3.75
	env.Grade(t, assessment.KindQuiz, school.Quizzes[0].ID, student.ID, 4)
	env.Grade(t, assessment.KindQuiz, school.Quizzes[1].ID, student.ID, 5)
	env.Grade(t, assessment.KindEvaluation, school.Evaluations[1].ID, student.ID, 2)

	report, err = env.GradebookSvc.StudentReport(ctx, student.ID)
	require.NoError(t, err)
	subj = report.Subjects[0]
	assert.InDelta(t, 4.5, subj.Summary.AverageQuiz, gradeDelta)
	assert.InDelta(t, 2.0, subj.Summary.AverageEvaluation, gradeDelta)
	assert.InDelta(t, 3.75, subj.Summary.FinalGrade, gradeDelta)
	assert.Equal(t, grading.Approved, subj.Summary.Standing)
	assert.Equal(t, grading.Tally{Approved: 1}, report.Tally)

	require.Len(t, subj.Periods, 2)
	assert.Equal(t, 1, subj.Periods[0].Number)
	// period 1: quiz 4 and no evaluation
	assert.InDelta(t, 2.8, subj.Periods[0].Summary.FinalGrade, gradeDelta)
	assert.Equal(t, grading.Failing, subj.Periods[0].Summary.Standing)
	// period 2: quiz 5 and evaluation 2
	assert.InDelta(t, 4.1, subj.Periods[1].Summary.FinalGrade, gradeDelta)
	assert.Equal(t, grading.Approved, subj.Periods[1].Summary.Standing)
}

func Test_service_cache(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	school := env.NewSchool(t, "Segundo", 2)
	s0, s1 := school.Students[0], school.Students[1]

	for _, s := range school.Students {
		_, err := env.GradebookSvc.StudentReport(ctx, s.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, env.Cache.Len())

	// a finished attempt only drops the report of its student
	env.Grade(t, assessment.KindQuiz, school.Quizzes[0].ID, s0.ID, 3)
	assert.Equal(t, 1, env.Cache.Len())
	report, err := env.GradebookSvc.StudentReport(ctx, s0.ID)
	require.NoError(t, err)
	assert.True(t, report.Subjects[0].Summary.Graded)

	// a catalog change drops the reports of the whole course
	_, err = env.AcademicSvc.CreateSubject(ctx, school.Course.ID, academic.NewSubject{Name: "History"})
	require.NoError(t, err)
	assert.Equal(t, 0, env.Cache.Len())

	report, err = env.GradebookSvc.StudentReport(ctx, s1.ID)
	require.NoError(t, err)
	assert.Len(t, report.Subjects, 2)
	names := []string{report.Subjects[0].SubjectName, report.Subjects[1].SubjectName}
	assert.Equal(t, []string{"History", "Mathematics"}, names)
}

func Test_service_cache_accountChanges(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	school := env.NewSchool(t, "Sexto", 2)
	student := school.Students[0]
	guardian := testutil.CreateGuardian(t, env.UserRepo, "Dad", "dad@test.co", "CC55667788")
	_, err := env.AcademicSvc.LinkGuardian(ctx, guardian.ID, student.ID)
	require.NoError(t, err)
	env.Grade(t, assessment.KindQuiz, school.Quizzes[0].ID, student.ID, 4)

	report, err := env.GradebookSvc.StudentReport(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, "A Student", report.Student.Name)
	assert.Equal(t, 1, env.Cache.Len())

	t.Run("rename", func(t *testing.T) {
		_, err := env.UserSvc.Update(ctx, student.ID, user.UpdateUser{Name: "Ana Student", Email: student.Email})
		require.NoError(t, err)
		assert.Equal(t, 0, env.Cache.Len())

		report, err := env.GradebookSvc.StudentReport(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana Student", report.Student.Name)
		assert.InDelta(t, 2.8, report.Subjects[0].Summary.FinalGrade, gradeDelta)
	})

	t.Run("cached report shows the current account", func(t *testing.T) {
		// bypass the service: no event is published
		usr, err := env.UserRepo.GetUser(ctx, user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		usr.Name = "Ana Maria Student"
		_, err = env.UserRepo.UpdateUser(ctx, usr)
		require.NoError(t, err)

		report, err := env.GradebookSvc.StudentReport(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana Maria Student", report.Student.Name)
	})

	t.Run("role change", func(t *testing.T) {
		other := school.Students[1]
		_, err := env.GradebookSvc.StudentReport(ctx, other.ID)
		require.NoError(t, err)

		_, err = env.UserSvc.Update(ctx, other.ID, user.UpdateUser{Name: other.Name, Email: other.Email, Roles: []string{user.RoleTeacher}})
		require.NoError(t, err)
		_, err = env.GradebookSvc.StudentReport(ctx, other.ID)
		assert.Equal(t, gradebook.ErrStudentNotFound, errors.Cause(err))
	})

	t.Run("delete", func(t *testing.T) {
		_, err := env.GradebookSvc.StudentReport(ctx, student.ID)
		require.NoError(t, err)

		require.NoError(t, env.UserSvc.Delete(ctx, student.ID))
		assert.Equal(t, 0, env.Cache.Len())

		_, err = env.GradebookSvc.StudentReport(ctx, student.ID)
		assert.Equal(t, gradebook.ErrStudentNotFound, errors.Cause(err))
		_, err = env.GradebookSvc.TeacherStudentDetail(ctx, school.Teacher, student.ID)
		assert.Equal(t, gradebook.ErrStudentNotFound, errors.Cause(err))

		reports, err := env.GradebookSvc.GuardianReports(ctx, guardian.ID)
		require.NoError(t, err)
		assert.Empty(t, reports)
	})
}

// racingCache runs onMiss once, right after the first cache miss.
type racingCache struct {
	*cachesvc.MemoryCache
	onMiss func()
}

func (c *racingCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	ok, err := c.MemoryCache.Get(ctx, key, dst)
	if !ok && c.onMiss != nil {
		f := c.onMiss
		c.onMiss = nil
		f()
	}
	return ok, err
}

func Test_service_cache_invalidatedWhileBuilding(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	school := env.NewSchool(t, "Septimo", 1)
	student := school.Students[0]

	cache := &racingCache{MemoryCache: cachesvc.NewMemoryCache()}
	svc := gradebook.NewService(env.UserSvc, env.AcademicSvc, env.AssessmentSvc, cache, env.Mail, events.NewBroker(1), env.Logger, env.Conf)
	cache.onMiss = func() {
		svc.Invalidate(events.Event{Kind: events.AttemptFinished, StudentID: student.ID})
	}

	_, err := svc.StudentReport(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len(), "a report built across an invalidation is not cached")

	_, err = svc.StudentReport(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func Test_service_TeacherStudentDetail(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	school := env.NewSchool(t, "Tercero", 1)
	student := school.Students[0]
	other := testutil.CreateUser(t, env.UserRepo, "Other", "otherteacher", "other@test.co", "", []string{user.RoleTeacher}, true)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin1", "admin@test.co", "", []string{user.RoleAdmin}, true)

	_, err := env.AcademicSvc.CreateSubject(ctx, school.Course.ID, academic.NewSubject{Name: "Chemistry", TeacherID: other.ID})
	require.NoError(t, err)
	env.Grade(t, assessment.KindQuiz, school.Quizzes[0].ID, student.ID, 5)

	report, err := env.GradebookSvc.TeacherStudentDetail(ctx, school.Teacher, student.ID)
	require.NoError(t, err)
	require.Len(t, report.Subjects, 1)
	assert.Equal(t, "Mathematics", report.Subjects[0].SubjectName)
	assert.Equal(t, grading.Tally{AtRisk: 1}, report.Tally) // 0.7*5 = 3.5, no evaluation yet

	report, err = env.GradebookSvc.TeacherStudentDetail(ctx, other, student.ID)
	require.NoError(t, err)
	require.Len(t, report.Subjects, 1)
	assert.Equal(t, "Chemistry", report.Subjects[0].SubjectName)
	assert.Equal(t, grading.Tally{Ungraded: 1}, report.Tally)

	report, err = env.GradebookSvc.TeacherStudentDetail(ctx, admin, student.ID)
	require.NoError(t, err)
	assert.Len(t, report.Subjects, 2)

	stranger := testutil.CreateUser(t, env.UserRepo, "Stranger", "stranger", "stranger@test.co", "", []string{user.RoleTeacher}, true)
	_, err = env.GradebookSvc.TeacherStudentDetail(ctx, stranger, student.ID)
	assert.Equal(t, gradebook.ErrForbidden, err)
	_, err = env.GradebookSvc.TeacherStudentDetail(ctx, student, student.ID)
	assert.Equal(t, gradebook.ErrForbidden, err)
}

func Test_service_CoursePerformance(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	school := env.NewSchool(t, "Cuarto", 3)
	a, b := school.Students[0], school.Students[1]

	env.Grade(t, assessment.KindQuiz, school.Quizzes[0].ID, a.ID, 5)
	env.Grade(t, assessment.KindEvaluation, school.Evaluations[0].ID, a.ID, 5)
	env.Grade(t, assessment.KindQuiz, school.Quizzes[0].ID, b.ID, 1)
	env.Grade(t, assessment.KindEvaluation, school.Evaluations[0].ID, b.ID, 2)

	_, err := env.GradebookSvc.CoursePerformance(ctx, uuid.New().String())
	assert.Equal(t, academic.ErrCourseNotFound, errors.Cause(err))

	perf, err := env.GradebookSvc.CoursePerformance(ctx, school.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, school.Course.ID, perf.Course.ID)
	require.Len(t, perf.Students, 3)
	assert.Equal(t, "A Student", perf.Students[0].Student.Name)
	assert.Equal(t, grading.Tally{Approved: 1}, perf.Students[0].Tally)
	assert.Equal(t, grading.Tally{Failing: 1}, perf.Students[1].Tally)
	assert.Equal(t, grading.Tally{Ungraded: 1}, perf.Students[2].Tally)
	assert.Equal(t, grading.Tally{Approved: 1, Failing: 1, Ungraded: 1}, perf.Tally)

	require.Len(t, perf.Subjects, 1)
	// b: 0.7*1 + 0.3*2 = 1.3
	assert.InDelta(t, (5+1.3)/2, perf.Subjects[0].AverageFinalGrade, gradeDelta)
}

func Test_service_guardians(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	school := env.NewSchool(t, "Quinto", 2)
	guardian := testutil.CreateGuardian(t, env.UserRepo, "Mom", "mom@test.co", "CC55667788")
	_, err := env.AcademicSvc.LinkGuardian(ctx, guardian.ID, school.Students[1].ID, school.Students[0].ID)
	require.NoError(t, err)
	env.Grade(t, assessment.KindQuiz, school.Quizzes[0].ID, school.Students[0].ID, 5)
	env.Grade(t, assessment.KindEvaluation, school.Evaluations[0].ID, school.Students[0].ID, 4)

	_, err = env.GradebookSvc.GuardianReports(ctx, school.Students[0].ID)
	assert.Equal(t, gradebook.ErrGuardianNotFound, errors.Cause(err))

	reports, err := env.GradebookSvc.GuardianReports(ctx, guardian.ID)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "A Student", reports[0].Student.Name)
	assert.Equal(t, "B Student", reports[1].Student.Name)

	_, err = env.GradebookSvc.LookupGuardian(ctx, gradebook.GuardianLookup{Email: "mom@test.co", IDFragment: "0000"})
	assert.Equal(t, user.ErrGuardianAuthFailed, err)
	view, err := env.GradebookSvc.LookupGuardian(ctx, gradebook.GuardianLookup{Email: "mom@test.co", IDFragment: "7788"})
	require.NoError(t, err)
	assert.Equal(t, guardian.ID, view.Guardian.ID)
	require.Len(t, view.Reports, 2)
	assert.Equal(t, reports[0].Student, view.Reports[0].Student)
	assert.Equal(t, reports[1].Student, view.Reports[1].Student)

	require.NoError(t, env.GradebookSvc.EmailGuardianReport(ctx, guardian.ID))
	sent := env.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "mom@test.co", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "A Student")
	assert.Contains(t, sent[0].TextContent, "Quinto / Mathematics: 4.70 (approved)")
	assert.Contains(t, sent[0].TextContent, "Quinto / Mathematics: N/A")
}
