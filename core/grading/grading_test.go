package grading

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func TestAggregate(t *testing.T) {
	tests := []struct {
		name          string
		quizGrades    []float64
		evalGrades    []float64
		wantAvgQuiz   float64
		wantAvgEval   float64
		wantFinal     float64
		wantStanding  Standing
		wantGraded    bool
		wantPasses    bool
		wantQuizCount int
		wantEvalCount int
	}{
		{
			name:       "mixed quiz and evaluation grades",
			quizGrades: []float64{4.0, 5.0}, evalGrades: []float64{3.0},
			wantAvgQuiz: 4.5, wantAvgEval: 3.0, wantFinal: 4.05,
			wantStanding: Approved, wantGraded: true, wantPasses: true, wantQuizCount: 2, wantEvalCount: 1,
		},
		{
			name:         "no attempts",
			wantStanding: Failing,
		},
		{
			// 3.69 is below the 3.7 passing cutoff, above the 3.0 at-risk boundary.
			name:       "just under the passing threshold",
			quizGrades: []float64{3.69}, evalGrades: []float64{3.69},
			wantAvgQuiz: 3.69, wantAvgEval: 3.69, wantFinal: 3.69,
			wantStanding: AtRisk, wantGraded: true, wantQuizCount: 1, wantEvalCount: 1,
		},
		{
			name:       "maximum grades",
			quizGrades: []float64{5.0, 5.0, 5.0}, evalGrades: []float64{5.0},
			wantAvgQuiz: 5, wantAvgEval: 5, wantFinal: 5,
			wantStanding: Approved, wantGraded: true, wantPasses: true, wantQuizCount: 3, wantEvalCount: 1,
		},
		{
			name:        "quizzes only",
			quizGrades:  []float64{4.0, 3.0},
			wantAvgQuiz: 3.5, wantFinal: 2.45,
			wantStanding: Failing, wantGraded: true, wantQuizCount: 2,
		},
		{
			name:        "evaluations only",
			evalGrades:  []float64{5.0},
			wantAvgEval: 5, wantFinal: 1.5,
			wantStanding: Failing, wantGraded: true, wantEvalCount: 1,
		},
		{
			name:       "exactly on the passing threshold",
			quizGrades: []float64{3.7}, evalGrades: []float64{3.7},
			wantAvgQuiz: 3.7, wantAvgEval: 3.7, wantFinal: 3.7,
			wantStanding: Approved, wantGraded: true, wantPasses: true, wantQuizCount: 1, wantEvalCount: 1,
		},
		{
			name:       "exactly on the at-risk threshold",
			quizGrades: []float64{3.0}, evalGrades: []float64{3.0},
			wantAvgQuiz: 3, wantAvgEval: 3, wantFinal: 3,
			wantStanding: AtRisk, wantGraded: true, wantQuizCount: 1, wantEvalCount: 1,
		},
		{
			name:       "zero grades are graded",
			quizGrades: []float64{0}, evalGrades: []float64{0},
			wantStanding: Failing, wantGraded: true, wantQuizCount: 1, wantEvalCount: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Aggregate(tt.quizGrades, tt.evalGrades)
			require.NoError(t, err)

			assert.InDelta(t, tt.wantAvgQuiz, got.AverageQuiz, tolerance, "AverageQuiz")
			assert.InDelta(t, tt.wantAvgEval, got.AverageEvaluation, tolerance, "AverageEvaluation")
			assert.InDelta(t, tt.wantFinal, got.FinalGrade, tolerance, "FinalGrade")
			assert.Equal(t, tt.wantStanding, got.Standing)
			assert.Equal(t, tt.wantPasses, got.Passes)
			assert.Equal(t, tt.wantGraded, got.Graded)
			assert.Equal(t, tt.wantQuizCount, got.QuizCount)
			assert.Equal(t, tt.wantEvalCount, got.EvaluationCount)
		})
	}
}

func TestAggregate_invalidGrades(t *testing.T) {
	tests := []struct {
		name       string
		quizGrades []float64
		evalGrades []float64
	}{
		{name: "negative quiz grade", quizGrades: []float64{4, -0.1}},
		{name: "quiz grade above max", quizGrades: []float64{5.01}},
		{name: "negative evaluation grade", evalGrades: []float64{-1}},
		{name: "evaluation grade above max", quizGrades: []float64{3}, evalGrades: []float64{7}},
		{name: "NaN", quizGrades: []float64{math.NaN()}},
		{name: "+Inf", evalGrades: []float64{math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Aggregate(tt.quizGrades, tt.evalGrades)
			if errors.Cause(err) != ErrInvalidGradeRange {
				t.Errorf("Aggregate() error = %v, wantErr %v", err, ErrInvalidGradeRange)
			}
			assert.Equal(t, Summary{}, got)
		})
	}
}

func TestAggregate_properties(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	randGrades := func() []float64 {
		grades := make([]float64, rnd.Intn(8))
		for i := range grades {
			grades[i] = rnd.Float64() * MaxGrade
		}
		return grades
	}

	for i := 0; i < 500; i++ {
		quizGrades, evalGrades := randGrades(), randGrades()

		got, err := Aggregate(quizGrades, evalGrades)
		require.NoError(t, err)

		wantQuiz := Mean(quizGrades)
		wantEval := Mean(evalGrades)
		assert.InDelta(t, wantQuiz, got.AverageQuiz, tolerance)
		assert.InDelta(t, wantEval, got.AverageEvaluation, tolerance)
		assert.InDelta(t, 0.7*wantQuiz+0.3*wantEval, got.FinalGrade, tolerance)

		if got.FinalGrade < MinGrade || got.FinalGrade > MaxGrade {
			t.Fatalf("FinalGrade = %v; out of [0, 5] for %v / %v", got.FinalGrade, quizGrades, evalGrades)
		}
		assert.Equal(t, StandingFor(got.FinalGrade) == Approved, got.Passes)

		again, err := Aggregate(quizGrades, evalGrades)
		require.NoError(t, err)
		assert.Equal(t, got, again, "Aggregate() is not idempotent")
	}
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Mean([]float64{}))
	assert.InDelta(t, 4.0, Mean([]float64{4}), tolerance)
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), tolerance)
}

func TestStandingFor(t *testing.T) {
	tests := []struct {
		grade float64
		want  Standing
	}{
		{grade: 0, want: Failing},
		{grade: 2.99, want: Failing},
		{grade: 3.0, want: AtRisk},
		{grade: 3.69, want: AtRisk},
		{grade: 3.7, want: Approved},
		{grade: 5, want: Approved},
	}
	for _, tt := range tests {
		if got := StandingFor(tt.grade); got != tt.want {
			t.Errorf("StandingFor(%v) = %v; want %v", tt.grade, got, tt.want)
		}
	}
}

func TestTally_Add(t *testing.T) {
	var tally Tally
	for _, grades := range [][]float64{{5}, {3.2}, {1}, {0.5}, nil} {
		s, err := Aggregate(grades, grades)
		require.NoError(t, err)
		tally.Add(s)
	}
	assert.Equal(t, Tally{Approved: 1, AtRisk: 1, Failing: 2, Ungraded: 1}, tally)
}
