package sqlxrepos_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/internal/testutil"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/storage/database"
	sqlxrepos "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/storage/database/sqlx"
)

// TestRepositories runs against the postgres server at TEST_DATABASE_HOST.
func TestRepositories(t *testing.T) {
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("TEST_DATABASE_HOST not set")
	}

	conf := testutil.Config()
	conf.Database.Engine = "postgres"
	conf.Database.Host = host
	conf.Database.Name = conf.Database.Name + "_test"
	conf.Database.DisableTLS = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		t.Fatalf("CreateIfNotExist(): %v", err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	defer db.Close()
	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("Migrate(): %v", err)
	}
	if _, err = db.ExecContext(ctx, "TRUNCATE users, courses, attempts CASCADE"); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}

	env := testutil.NewEnvWithRepos(t, testutil.Repos{
		User:     sqlxrepos.NewUserRepository(db),
		Academic: sqlxrepos.NewAcademicRepository(db),
		Attempt:  sqlxrepos.NewAttemptRepository(db),
	})
	testutil.RunRepositoryContract(t, env)
}
