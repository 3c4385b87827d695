package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
)

type attemptRepository struct {
	db *attemptTable
}

var _ assessment.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *DB) assessment.Repository {
	return &attemptRepository{db: db.assessment}
}

func (repo *attemptRepository) CreateAttempt(_ context.Context, a assessment.Attempt) (assessment.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if !a.Completed {
		for _, existing := range repo.db.table {
			if !existing.Completed && existing.StudentID == a.StudentID && existing.AssessmentID == a.AssessmentID {
				return assessment.Attempt{}, assessment.ErrAttemptInProgress
			}
		}
	}
	a.ID = uuid.New().String()
	stored := a
	repo.db.table[a.ID] = &stored
	return a, nil
}

func (repo *attemptRepository) GetAttempt(_ context.Context, id string) (assessment.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.table[id]; ok {
		return *a, nil
	}
	return assessment.Attempt{}, assessment.ErrNotFound
}

func (repo *attemptRepository) FinishAttempt(_ context.Context, id string, grade float64, endedAt time.Time) (assessment.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	a, ok := repo.db.table[id]
	if !ok {
		return assessment.Attempt{}, assessment.ErrNotFound
	}
	if a.Completed {
		return assessment.Attempt{}, assessment.ErrAttemptCompleted
	}
	completed := a.Complete(grade, endedAt)
	repo.db.table[id] = &completed
	return completed, nil
}

func (repo *attemptRepository) QueryAttempts(_ context.Context, filter assessment.QueryFilter) ([]assessment.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	attempts := make([]assessment.Attempt, 0)
	for _, a := range repo.db.table {
		if len(filter.StudentIDs) > 0 && !contains(filter.StudentIDs, a.StudentID) {
			continue
		}
		if len(filter.SubjectIDs) > 0 && !contains(filter.SubjectIDs, a.SubjectID) {
			continue
		}
		if filter.PeriodID != "" && a.PeriodID != filter.PeriodID {
			continue
		}
		if filter.Kind != "" && a.Kind != filter.Kind {
			continue
		}
		if filter.CompletedOnly && !a.Completed {
			continue
		}
		attempts = append(attempts, *a)
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].StartedAt.Before(attempts[j].StartedAt) })
	return attempts, nil
}
