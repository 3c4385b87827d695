package inmemdb

import (
	"sync"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

type (
	// DB is a process-local database used by the `memory` engine and by tests.
	DB struct {
		user       *userTable
		academic   *academicTables
		assessment *attemptTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	academicTables struct {
		sync.RWMutex
		courses       map[string]academic.Course
		subjects      map[string]academic.Subject
		periods       map[string]academic.Period
		quizzes       map[string]academic.Quiz
		evaluations   map[string]academic.Evaluation
		enrollments   []academic.Enrollment
		guardianLinks []academic.GuardianLink
	}

	attemptTable struct {
		sync.RWMutex
		table map[string]*assessment.Attempt
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		academic: &academicTables{
			courses:     make(map[string]academic.Course),
			subjects:    make(map[string]academic.Subject),
			periods:     make(map[string]academic.Period),
			quizzes:     make(map[string]academic.Quiz),
			evaluations: make(map[string]academic.Evaluation),
		},
		assessment: &attemptTable{table: make(map[string]*assessment.Attempt)},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
