// Package testutil wires the app on in-memory storage for tests.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/gradebook"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
	appfs "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/fs"
	cachesvc "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/services/cache"
	emailsvc "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/services/email"
	logsvc "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/services/logger"
	inmemdb "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/storage/database/inmem"
)

// Env is a fully wired app backed by in-memory repositories.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Mail       *emailsvc.ConsoleServiceMock
	Cache      *cachesvc.MemoryCache
	Broker     *events.Broker

	UserRepo      user.Repository
	AcademicRepo  academic.Repository
	AttemptRepo   assessment.Repository
	UserSvc       user.Service
	AcademicSvc   academic.Service
	AssessmentSvc assessment.Service
	GradebookSvc  gradebook.Service
}

// Config returns the TEST configuration.
func Config() *core.Config {
	conf := core.NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = false
	conf.RollbarToken = ""
	conf.Database.Engine = "memory"
	conf.Cache.RedisURL = ""
	if conf.Cache.ReportTTL <= 0 {
		conf.Cache.ReportTTL = 10 * time.Minute
	}
	return conf
}

// NewLogger returns a logger that reports nowhere.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", log.LstdFlags), conf)
}

// NewValidator returns a validator with every app validation registered.
func NewValidator(t testing.TB) (*validator.Validate, ut.Translator) {
	t.Helper()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	academic.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)
	if err := user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsPath); err != nil {
		t.Fatalf("LoadCommonPasswords(): %v", err)
	}
	return validate, translator
}

// Repos are the storage the Env services run on.
type Repos struct {
	User     user.Repository
	Academic academic.Repository
	Attempt  assessment.Repository
}

// NewEnv returns an Env on fresh in-memory repositories.
func NewEnv(t testing.TB) *Env {
	t.Helper()

	db := inmemdb.Open()
	return NewEnvWithRepos(t, Repos{
		User:     inmemdb.NewUserRepository(db),
		Academic: inmemdb.NewAcademicRepository(db),
		Attempt:  inmemdb.NewAttemptRepository(db),
	})
}

func NewEnvWithRepos(t testing.TB, repos Repos) *Env {
	t.Helper()

	conf := Config()
	logger := NewLogger(conf)
	validate, translator := NewValidator(t)

	tmpls, err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.FrontendBaseURL, true /* strict */)
	if err != nil {
		t.Fatalf("ParseEmailTemplates(): %v", err)
	}

	env := &Env{
		Conf:         conf,
		Logger:       logger,
		Validate:     validate,
		Translator:   translator,
		Mail:         emailsvc.NewConsoleServiceMock(tmpls, logger, conf),
		Cache:        cachesvc.NewMemoryCache(),
		Broker:       events.NewBroker(events.DefaultBufferSize),
		UserRepo:     repos.User,
		AcademicRepo: repos.Academic,
		AttemptRepo:  repos.Attempt,
	}
	env.UserSvc = user.NewService(env.UserRepo, env.Mail, env.Broker, conf)
	env.AcademicSvc = academic.NewService(env.AcademicRepo, env.UserSvc, env.Broker)
	env.AssessmentSvc = assessment.NewService(env.AttemptRepo, env.AcademicSvc, env.Broker, logger)
	env.GradebookSvc = gradebook.NewService(
		env.UserSvc,
		env.AcademicSvc,
		env.AssessmentSvc,
		env.Cache,
		env.Mail,
		env.Broker,
		logger,
		conf,
	)
	return env
}

func CreateUser(
	t testing.TB,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateGuardian creates an active guardian with a national ID.
func CreateGuardian(t testing.TB, repo user.Repository, name, email, nationalID string) user.User {
	t.Helper()

	usr := user.User{
		Name:       name,
		Email:      email,
		NationalID: nationalID,
		Roles:      []string{user.RoleGuardian},
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := usr.SetPassword("Gu4rd1an-Pwd"); err != nil {
		t.Fatalf("CreateGuardian() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateGuardian() failed: %v", err)
	}
	return usr
}

// School is a course with one subject, two periods, a quiz and an evaluation per period,
// a teacher and enrolled students.
type School struct {
	Teacher     user.User
	Students    []user.User
	Course      academic.Course
	Subject     academic.Subject
	Periods     []academic.Period
	Quizzes     []academic.Quiz       // one per period
	Evaluations []academic.Evaluation // one per period
}

// NewSchool builds a School with the given number of students.
func (env *Env) NewSchool(t testing.TB, courseName string, students int) School {
	t.Helper()
	ctx := context.Background()

	s := School{
		Teacher: CreateUser(t, env.UserRepo, courseName+" Teacher", "", "teacher."+slug(courseName)+"@test.co", "", []string{user.RoleTeacher}, true),
	}
	var err error
	if s.Course, err = env.AcademicSvc.CreateCourse(ctx, academic.NewCourse{Name: courseName, Year: 2024}); err != nil {
		t.Fatalf("CreateCourse(): %v", err)
	}
	if s.Subject, err = env.AcademicSvc.CreateSubject(ctx, s.Course.ID, academic.NewSubject{Name: "Mathematics", TeacherID: s.Teacher.ID}); err != nil {
		t.Fatalf("CreateSubject(): %v", err)
	}
	for n := 1; n <= 2; n++ {
		p, err := env.AcademicSvc.CreatePeriod(ctx, s.Subject.ID, academic.NewPeriod{Number: n})
		if err != nil {
			t.Fatalf("CreatePeriod(): %v", err)
		}
		s.Periods = append(s.Periods, p)

		q, err := env.AcademicSvc.CreateQuiz(ctx, s.Subject.ID, academic.NewQuiz{PeriodID: p.ID, Title: "Quiz"})
		if err != nil {
			t.Fatalf("CreateQuiz(): %v", err)
		}
		s.Quizzes = append(s.Quizzes, q)

		e, err := env.AcademicSvc.CreateEvaluation(ctx, s.Subject.ID, academic.NewEvaluation{PeriodID: p.ID, Title: "Exam"})
		if err != nil {
			t.Fatalf("CreateEvaluation(): %v", err)
		}
		s.Evaluations = append(s.Evaluations, e)
	}

	ids := make([]string, 0, students)
	for i := 0; i < students; i++ {
		name := string(rune('A'+i)) + " Student"
		usr := CreateUser(t, env.UserRepo, name, "", slug(courseName)+"."+string(rune('a'+i))+"@test.co", "", []string{user.RoleStudent}, true)
		s.Students = append(s.Students, usr)
		ids = append(ids, usr.ID)
	}
	if len(ids) > 0 {
		if _, err = env.AcademicSvc.Enroll(ctx, s.Course.ID, ids...); err != nil {
			t.Fatalf("Enroll(): %v", err)
		}
	}
	return s
}

// Grade starts and finishes an attempt of student on a quiz or an evaluation.
func (env *Env) Grade(t testing.TB, kind assessment.Kind, assessmentID, studentID string, grade float64) assessment.Attempt {
	t.Helper()
	ctx := context.Background()

	a, err := env.AssessmentSvc.Start(ctx, assessment.NewAttempt{Kind: kind, AssessmentID: assessmentID, StudentID: studentID})
	if err != nil {
		t.Fatalf("Start(): %v", err)
	}
	if a, err = env.AssessmentSvc.Finish(ctx, a.ID, grade); err != nil {
		t.Fatalf("Finish(): %v", err)
	}
	return a
}

// FieldErrors returns the field errors of a core.ValidationError, failing t for any other error.
func FieldErrors(t testing.TB, err error) map[string]string {
	t.Helper()

	verr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("error = %v (%T); want a validation error", err, err)
	}
	flds := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		flds[f.Field] = f.Error
	}
	return flds
}

func slug(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b = append(b, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b = append(b, r)
		}
	}
	return string(b)
}
