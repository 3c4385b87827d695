package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

// RunRepositoryContract checks the behavior every storage engine must share.
// env must run on empty repositories.
func RunRepositoryContract(t *testing.T, env *Env) {
	t.Run("users", func(t *testing.T) { userContract(t, env.UserRepo) })
	t.Run("academic", func(t *testing.T) { academicContract(t, env) })
	t.Run("attempts", func(t *testing.T) { attemptContract(t, env) })
}

func userContract(t *testing.T, repo user.Repository) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	ana := CreateUser(t, repo, "Ana Perez", "anaperez", "ana@test.co", "pwd", []string{user.RoleStudent}, true, base)
	zoe := CreateUser(t, repo, "Zoe Diaz", "zoediaz", "zoe@test.co", "pwd", []string{user.RoleTeacher}, false, base.Add(time.Minute))
	noUname := CreateUser(t, repo, "No Username", "", "nouname@test.co", "pwd", nil, true, base.Add(2*time.Minute))
	CreateUser(t, repo, "Other No Username", "", "other.nouname@test.co", "pwd", nil, true, base.Add(3*time.Minute))

	_, err := repo.CreateUser(ctx, user.User{Username: "anaperez", PasswordHash: []byte("x"), CreatedAt: base, UpdatedAt: base})
	assert.Equal(t, user.ErrUsernameExists, errors.Cause(err))
	_, err = repo.CreateUser(ctx, user.User{Email: "zoe@test.co", PasswordHash: []byte("x"), CreatedAt: base, UpdatedAt: base})
	assert.Equal(t, user.ErrEmailExists, errors.Cause(err))

	assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "anaperez", "new@test.co"))
	assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "newuser", "ana@test.co"))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "anaperez", "ana@test.co", ana))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "", ""))

	for _, f := range []user.GetFilter{
		{ID: ana.ID},
		{Username: "anaperez"},
		{Email: "ana@test.co"},
		{UsernameOrEmail: "anaperez"},
		{UsernameOrEmail: "ana@test.co"},
	} {
		got, err := repo.GetUser(ctx, f)
		require.NoError(t, err, f)
		assert.Equal(t, ana.ID, got.ID, f)
		assert.Equal(t, []string{user.RoleStudent}, got.Roles)
		assert.NoError(t, got.CheckPassword("pwd"))
	}
	for _, f := range []user.GetFilter{{ID: "lol"}, {ID: uuid.New().String()}, {Username: "nobody"}, {}} {
		_, err := repo.GetUser(ctx, f)
		assert.Equal(t, user.ErrNotFound, errors.Cause(err), f)
	}
	got, err := repo.GetUser(ctx, user.GetFilter{ID: noUname.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Roles)

	users, err := repo.GetUsersByID(ctx, zoe.ID, "lol", ana.ID)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	query := func(filter *user.QueryFilter, ordering ...core.DBOrdering) []string {
		users, err := repo.QueryUsers(ctx, filter, ordering)
		require.NoError(t, err)
		names := make([]string, 0, len(users))
		for _, u := range users {
			names = append(names, u.Name)
		}
		return names
	}
	inactive := false
	assert.Equal(t, []string{"Ana Perez", "Zoe Diaz", "No Username", "Other No Username"}, query(nil))
	assert.Equal(t, []string{"Zoe Diaz", "Other No Username", "No Username", "Ana Perez"}, query(nil, core.DBOrdering{Field: "name"}))
	assert.Equal(t, []string{"Ana Perez"}, query(&user.QueryFilter{Search: "PEREZ"}))
	assert.Equal(t, []string{"No Username", "Other No Username"}, query(&user.QueryFilter{Search: "nouname"}))
	assert.Equal(t, []string{"Zoe Diaz"}, query(&user.QueryFilter{Roles: []string{user.RoleTeacher}}))
	assert.Equal(t, []string{"Zoe Diaz"}, query(&user.QueryFilter{IsActive: &inactive}))
	assert.Equal(t, []string{"Zoe Diaz", "No Username"}, query(&user.QueryFilter{
		CreatedFrom: base.Add(30 * time.Second),
		CreatedTo:   base.Add(150 * time.Second),
	}))

	zoe.Username = "anaperez"
	_, err = repo.UpdateUser(ctx, zoe)
	assert.Equal(t, user.ErrUsernameExists, errors.Cause(err))
	zoe.Username = "zoe_diaz"
	zoe.IsActive = true
	zoe.NationalID = "TI998877"
	zoe.LastLogin = time.Now().UTC()
	_, err = repo.UpdateUser(ctx, zoe)
	require.NoError(t, err)
	got, err = repo.GetUser(ctx, user.GetFilter{Username: "zoe_diaz"})
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, "TI998877", got.NationalID)
	assert.WithinDuration(t, zoe.LastLogin, got.LastLogin, time.Millisecond)

	_, err = repo.UpdateUser(ctx, user.User{ID: uuid.New().String(), PasswordHash: []byte("x")})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	require.NoError(t, repo.DeleteUsers(ctx, ana.ID, zoe.ID, "lol"))
	require.NoError(t, repo.DeleteUsers(ctx))
	_, err = repo.GetUser(ctx, user.GetFilter{ID: ana.ID})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	assert.Equal(t, []string{"No Username", "Other No Username"}, query(nil))
}

func academicContract(t *testing.T, env *Env) {
	ctx := context.Background()
	repo := env.AcademicRepo
	school := env.NewSchool(t, "Contrato", 2)

	_, err := repo.CreateCourse(ctx, academic.Course{Name: "Contrato", Year: school.Course.Year, CreatedAt: time.Now().UTC()})
	assert.Equal(t, academic.ErrCourseExists, errors.Cause(err))
	_, err = repo.CreateSubject(ctx, academic.Subject{CourseID: school.Course.ID, Name: "Mathematics", CreatedAt: time.Now().UTC()})
	assert.Equal(t, academic.ErrSubjectExists, errors.Cause(err))
	_, err = repo.CreatePeriod(ctx, academic.Period{SubjectID: school.Subject.ID, Number: 1, CreatedAt: time.Now().UTC()})
	assert.Equal(t, academic.ErrPeriodExists, errors.Cause(err))

	courses, err := repo.ListCourses(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "Contrato", courses[0].Name)

	for _, id := range []string{"lol", uuid.New().String()} {
		_, err = repo.GetCourse(ctx, id)
		assert.Equal(t, academic.ErrCourseNotFound, errors.Cause(err))
		_, err = repo.GetSubject(ctx, id)
		assert.Equal(t, academic.ErrSubjectNotFound, errors.Cause(err))
		_, err = repo.GetPeriod(ctx, id)
		assert.Equal(t, academic.ErrPeriodNotFound, errors.Cause(err))
		_, err = repo.GetQuiz(ctx, id)
		assert.Equal(t, academic.ErrQuizNotFound, errors.Cause(err))
		_, err = repo.GetEvaluation(ctx, id)
		assert.Equal(t, academic.ErrEvaluationNotFound, errors.Cause(err))
	}

	subjects, err := repo.ListSubjects(ctx, academic.SubjectFilter{TeacherID: school.Teacher.ID})
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, school.Subject.ID, subjects[0].ID)
	subjects, err = repo.ListSubjects(ctx, academic.SubjectFilter{IDs: []string{school.Subject.ID, "lol"}})
	require.NoError(t, err)
	assert.Len(t, subjects, 1)

	periods, err := repo.ListPeriods(ctx, school.Subject.ID)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, 1, periods[0].Number)
	assert.Equal(t, 2, periods[1].Number)

	quizzes, err := repo.ListQuizzes(ctx, school.Subject.ID)
	require.NoError(t, err)
	assert.Len(t, quizzes, 2)
	evaluations, err := repo.ListEvaluations(ctx, school.Subject.ID)
	require.NoError(t, err)
	assert.Len(t, evaluations, 2)

	now := time.Now().UTC()
	student := school.Students[0]
	require.NoError(t, repo.AddEnrollments(ctx, academic.Enrollment{CourseID: school.Course.ID, StudentID: student.ID, CreatedAt: now}))
	enrollments, err := repo.ListEnrollments(ctx, academic.EnrollmentFilter{CourseID: school.Course.ID})
	require.NoError(t, err)
	assert.Len(t, enrollments, 2)
	enrollments, err = repo.ListEnrollments(ctx, academic.EnrollmentFilter{StudentID: student.ID})
	require.NoError(t, err)
	assert.Len(t, enrollments, 1)

	guardian := CreateGuardian(t, env.UserRepo, "Guardian", "guardian.contract@test.co", "CC00112233")
	link := academic.GuardianLink{GuardianID: guardian.ID, StudentID: student.ID, CreatedAt: now}
	require.NoError(t, repo.AddGuardianLinks(ctx, link, link))
	links, err := repo.ListGuardianLinks(ctx, guardian.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, student.ID, links[0].StudentID)
}

func attemptContract(t *testing.T, env *Env) {
	ctx := context.Background()
	repo := env.AttemptRepo
	school := env.NewSchool(t, "Intentos", 1)
	student := school.Students[0]

	started := time.Now().UTC().Add(-time.Minute)
	a, err := repo.CreateAttempt(ctx, assessment.Attempt{
		Kind:         assessment.KindQuiz,
		AssessmentID: school.Quizzes[0].ID,
		StudentID:    student.ID,
		SubjectID:    school.Subject.ID,
		PeriodID:     school.Periods[0].ID,
		StartedAt:    started,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	_, err = repo.CreateAttempt(ctx, assessment.Attempt{
		Kind:         assessment.KindQuiz,
		AssessmentID: school.Quizzes[0].ID,
		StudentID:    student.ID,
		SubjectID:    school.Subject.ID,
		PeriodID:     school.Periods[0].ID,
		StartedAt:    time.Now().UTC(),
	})
	assert.Equal(t, assessment.ErrAttemptInProgress, errors.Cause(err), "one attempt in progress per assessment")

	got, err := repo.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.False(t, got.Grade.Valid)
	assert.False(t, got.EndedAt.Valid)
	assert.WithinDuration(t, started, got.StartedAt, time.Millisecond)

	for _, id := range []string{"lol", uuid.New().String()} {
		_, err = repo.GetAttempt(ctx, id)
		assert.Equal(t, assessment.ErrNotFound, errors.Cause(err))
		_, err = repo.FinishAttempt(ctx, id, 3, time.Now())
		assert.Equal(t, assessment.ErrNotFound, errors.Cause(err))
	}

	ended := time.Now().UTC()
	finished, err := repo.FinishAttempt(ctx, a.ID, 4.5, ended)
	require.NoError(t, err)
	assert.True(t, finished.Completed)
	assert.Equal(t, 4.5, finished.Grade.Float64)
	assert.WithinDuration(t, ended, finished.EndedAt.Time, time.Millisecond)

	_, err = repo.FinishAttempt(ctx, a.ID, 1, time.Now())
	assert.Equal(t, assessment.ErrAttemptCompleted, errors.Cause(err))
	got, err = repo.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.Grade.Float64)

	env.Grade(t, assessment.KindEvaluation, school.Evaluations[1].ID, student.ID, 3)
	_, err = env.AssessmentSvc.Start(ctx, assessment.NewAttempt{Kind: assessment.KindQuiz, AssessmentID: school.Quizzes[1].ID, StudentID: student.ID})
	require.NoError(t, err)

	count := func(filter assessment.QueryFilter) int {
		attempts, err := repo.QueryAttempts(ctx, filter)
		require.NoError(t, err)
		return len(attempts)
	}
	assert.Equal(t, 3, count(assessment.QueryFilter{StudentIDs: []string{student.ID}}))
	assert.Equal(t, 2, count(assessment.QueryFilter{StudentIDs: []string{student.ID}, CompletedOnly: true}))
	assert.Equal(t, 1, count(assessment.QueryFilter{SubjectIDs: []string{school.Subject.ID}, Kind: assessment.KindEvaluation}))
	assert.Equal(t, 2, count(assessment.QueryFilter{PeriodID: school.Periods[1].ID}))
	assert.Equal(t, 0, count(assessment.QueryFilter{StudentIDs: []string{uuid.New().String()}}))

	attempts, err := repo.QueryAttempts(ctx, assessment.QueryFilter{StudentIDs: []string{student.ID}})
	require.NoError(t, err)
	for i := 1; i < len(attempts); i++ {
		assert.False(t, attempts[i].StartedAt.Before(attempts[i-1].StartedAt), "ordered by start")
	}
}
