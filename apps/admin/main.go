package main

import (
	"context"
	"database/sql"
	"log"
	"os"

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
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/storage/database"
	inmemdb "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/storage/database/inmem"
	sqlxdb "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	appLogger := logsvc.NewRollbarLogger(logger, conf)

	// set up DB
	var (
		db           *sql.DB
		usrRepo      user.Repository
		academicRepo academic.Repository
		attemptRepo  assessment.Repository
	)
	if conf.Database.InMemory() {
		mem := inmemdb.Open()
		usrRepo = inmemdb.NewUserRepository(mem)
		academicRepo = inmemdb.NewAcademicRepository(mem)
		attemptRepo = inmemdb.NewAttemptRepository(mem)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		xdb, err := database.Open(ctx, conf)
		cancel()
		errAndDie(err)
		defer xdb.Close()
		db = xdb.DB
		usrRepo = sqlxdb.NewUserRepository(xdb)
		academicRepo = sqlxdb.NewAcademicRepository(xdb)
		attemptRepo = sqlxdb.NewAttemptRepository(xdb)
	}

	// set up services
	tmpls, err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.FrontendBaseURL, false /* strict */)
	errAndDie(err)
	mailSvc := emailsvc.NewConsoleService(tmpls, logger, appLogger, conf)
	broker := events.NewBroker(events.DefaultBufferSize)
	usrSvc := user.NewService(usrRepo, mailSvc, broker, conf)
	academicSvc := academic.NewService(academicRepo, usrSvc, broker)
	assessmentSvc := assessment.NewService(attemptRepo, academicSvc, broker, appLogger)

	// start CLI
	cli := commandLine{
		db:           db,
		usrRepo:      usrRepo,
		gradebookSvc: gradebook.NewService(usrSvc, academicSvc, assessmentSvc, cachesvc.NewMemoryCache(), mailSvc, broker, appLogger, conf),
		out:          os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
