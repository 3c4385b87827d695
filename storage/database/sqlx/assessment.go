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
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
)

const attemptColumns = `id, kind, assessment_id, student_id, subject_id, period_id, grade, completed, started_at, ended_at`

type attemptRow struct {
	ID           string       `db:"id"`
	Kind         string       `db:"kind"`
	AssessmentID string       `db:"assessment_id"`
	StudentID    string       `db:"student_id"`
	SubjectID    string       `db:"subject_id"`
	PeriodID     string       `db:"period_id"`
	Grade        null.Float64 `db:"grade"`
	Completed    bool         `db:"completed"`
	StartedAt    time.Time    `db:"started_at"`
	EndedAt      null.Time    `db:"ended_at"`
}

func (r attemptRow) toAttempt() assessment.Attempt {
	a := assessment.Attempt{
		ID:           r.ID,
		Kind:         assessment.Kind(r.Kind),
		AssessmentID: r.AssessmentID,
		StudentID:    r.StudentID,
		SubjectID:    r.SubjectID,
		PeriodID:     r.PeriodID,
		Grade:        r.Grade,
		Completed:    r.Completed,
		StartedAt:    r.StartedAt.UTC(),
		EndedAt:      r.EndedAt,
	}
	if a.EndedAt.Valid {
		a.EndedAt.Time = a.EndedAt.Time.UTC()
	}
	return a
}

type attemptRepository struct {
	exec core.DBExecutor
}

var _ assessment.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(exec core.DBExecutor) assessment.Repository {
	return &attemptRepository{exec: exec}
}

func (repo *attemptRepository) CreateAttempt(ctx context.Context, a assessment.Attempt) (assessment.Attempt, error) {
	row := attemptRow{
		ID:           uuid.New().String(),
		Kind:         string(a.Kind),
		AssessmentID: a.AssessmentID,
		StudentID:    a.StudentID,
		SubjectID:    a.SubjectID,
		PeriodID:     a.PeriodID,
		Grade:        a.Grade,
		Completed:    a.Completed,
		StartedAt:    a.StartedAt.UTC(),
		EndedAt:      a.EndedAt,
	}
	q := `INSERT INTO attempts (` + attemptColumns + `)
		VALUES (:id, :kind, :assessment_id, :student_id, :subject_id, :period_id, :grade, :completed, :started_at, :ended_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, row); err != nil {
		if isUniqueViolation(err, "attempts_in_progress_key") {
			return assessment.Attempt{}, assessment.ErrAttemptInProgress
		}
		return assessment.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return row.toAttempt(), nil
}

func (repo *attemptRepository) GetAttempt(ctx context.Context, id string) (assessment.Attempt, error) {
	if !isUUID(id) {
		return assessment.Attempt{}, assessment.ErrNotFound
	}
	var row attemptRow
	q := `SELECT ` + attemptColumns + ` FROM attempts WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return assessment.Attempt{}, trapNoRowsErr(err, assessment.ErrNotFound, "getting attempt")
	}
	return row.toAttempt(), nil
}

// FinishAttempt only updates in-progress rows, so concurrent finishes complete an attempt once.
func (repo *attemptRepository) FinishAttempt(ctx context.Context, id string, grade float64, endedAt time.Time) (assessment.Attempt, error) {
	if !isUUID(id) {
		return assessment.Attempt{}, assessment.ErrNotFound
	}
	var row attemptRow
	q := `UPDATE attempts SET grade = $2, completed = true, ended_at = $3
		WHERE id = $1 AND NOT completed
		RETURNING ` + attemptColumns
	err := sqlx.GetContext(ctx, repo.exec, &row, q, id, grade, endedAt.UTC())
	if err == nil {
		return row.toAttempt(), nil
	}
	if err = trapNoRowsErr(err, assessment.ErrNotFound, "finishing attempt"); err != assessment.ErrNotFound {
		return assessment.Attempt{}, err
	}

	// no in-progress row: either missing or already completed
	if _, err = repo.GetAttempt(ctx, id); err != nil {
		return assessment.Attempt{}, err
	}
	return assessment.Attempt{}, assessment.ErrAttemptCompleted
}

func (repo *attemptRepository) QueryAttempts(ctx context.Context, filter assessment.QueryFilter) ([]assessment.Attempt, error) {
	var w where
	if len(filter.StudentIDs) > 0 {
		w.add("student_id = ANY(?::uuid[])", pq.Array(validIDs(filter.StudentIDs)))
	}
	if len(filter.SubjectIDs) > 0 {
		w.add("subject_id = ANY(?::uuid[])", pq.Array(validIDs(filter.SubjectIDs)))
	}
	if filter.PeriodID != "" {
		if !isUUID(filter.PeriodID) {
			return []assessment.Attempt{}, nil
		}
		w.add("period_id = ?", filter.PeriodID)
	}
	if filter.Kind != "" {
		w.add("kind = ?", string(filter.Kind))
	}
	if filter.CompletedOnly {
		w.add("completed = ?", true)
	}

	var rows []attemptRow
	q := `SELECT ` + attemptColumns + ` FROM attempts` + w.String() + ` ORDER BY started_at`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	attempts := make([]assessment.Attempt, 0, len(rows))
	for _, r := range rows {
		attempts = append(attempts, r.toAttempt())
	}
	return attempts, nil
}
