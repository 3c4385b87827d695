package dig_container

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/apps/api/echo"
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
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/services/metrics"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/storage/database"
	inmemdb "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/storage/database/inmem"
	sqlxdb "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Closer releases a resource opened by the container.
type Closer func() error

type Storage struct {
	dig.Out

	UserRepo     user.Repository
	AcademicRepo academic.Repository
	AttemptRepo  assessment.Repository
	Close        Closer `name:"dbCloser"`
}

type StorageCloserParam struct {
	dig.In
	Close Closer `name:"dbCloser"`
}

func newLogger(conf *core.Config) *logsvc.RollbarLogger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

// newStorage opens the repositories of the configured engine: postgres, migrated on start, or memory.
func newStorage(conf *core.Config, loggerParam DBLoggerParam) (Storage, error) {
	if conf.Database.InMemory() {
		loggerParam.Logger.Warn("using the in-memory database: data is lost on shutdown")
		db := inmemdb.Open()
		return Storage{
			UserRepo:     inmemdb.NewUserRepository(db),
			AcademicRepo: inmemdb.NewAcademicRepository(db),
			AttemptRepo:  inmemdb.NewAttemptRepository(db),
			Close:        func() error { return nil },
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*6)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return Storage{}, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return Storage{}, err
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return Storage{}, err
	}
	return Storage{
		UserRepo:     sqlxdb.NewUserRepository(db),
		AcademicRepo: sqlxdb.NewAcademicRepository(db),
		AttemptRepo:  sqlxdb.NewAttemptRepository(db),
		Close:        db.Close,
	}, nil
}

func newCache(conf *core.Config, m *metrics.Metrics) (core.Cache, error) {
	if conf.Cache.RedisURL == "" {
		return m.InstrumentCache(cachesvc.NewMemoryCache()), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	client, err := cachesvc.NewRedisClient(ctx, conf.Cache.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return m.InstrumentCache(cachesvc.NewRedisCache(client)), nil
}

// newBroker returns the grade events broker, counted by m.
func newBroker(m *metrics.Metrics) *events.Broker {
	b := events.NewBroker(events.DefaultBufferSize)
	b.AddHook(func(ev events.Event) { m.ObserveEvent(string(ev.Kind)) })
	m.WatchBroker(b)
	return b
}

func newEmailTemplates(conf *core.Config) (*core.EmailTemplates, error) {
	return core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.FrontendBaseURL, conf.Debug || conf.TestMode)
}

func newEmailService(conf *core.Config, tmpls *core.EmailTemplates, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(tmpls, log.New(os.Stdout, "EMAIL : ", 0), logger, conf)
	}
	return emailsvc.NewSendgridService(tmpls, logger, conf)
}

func newValidator(translator ut.Translator) (*validator.Validate, error) {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	academic.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)
	if err := user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsPath); err != nil {
		return nil, errors.Wrap(err, "loading common passwords")
	}
	return validate, nil
}

type ServerParam struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       user.Service
	AcademicSvc   academic.Service
	AssessmentSvc assessment.Service
	GradebookSvc  gradebook.Service
	Broker        *events.Broker
	Metrics       *metrics.Metrics
}

func newServer(p ServerParam) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		AcademicSvc:   p.AcademicSvc,
		AssessmentSvc: p.AssessmentSvc,
		GradebookSvc:  p.GradebookSvc,
		Events:        p.Broker,
		Metrics:       p.Metrics,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(func(l *logsvc.RollbarLogger) core.Logger { return l }))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(metrics.New))
	must(c.Provide(newStorage))
	must(c.Provide(newCache))
	must(c.Provide(newBroker))
	must(c.Provide(func(b *events.Broker) events.Publisher { return b }))
	must(c.Provide(func(b *events.Broker) events.Hooker { return b }))
	must(c.Provide(newEmailTemplates))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(academic.NewService))
	must(c.Provide(assessment.NewService))
	must(c.Provide(gradebook.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
