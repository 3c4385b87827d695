// Package grading computes a student's final grade from quiz and evaluation grades.
//
// Every view that shows grades (student, guardian, teacher detail and course performance)
// goes through Aggregate; none of them re-implements the weighting.
package grading

import (
	"math"

	"github.com/pkg/errors"
)

// Grades live on a 0.0 - 5.0 scale.
const (
	MinGrade = 0.0
	MaxGrade = 5.0

	QuizWeight       = 0.7
	EvaluationWeight = 0.3

	// PassingThreshold is the single pass/fail cutoff: a subject is approved at 3.7 or above.
	PassingThreshold = 3.7
	// AtRiskThreshold separates AtRisk from Failing below the passing cutoff.
	AtRiskThreshold = 3.0

	// thresholds are compared with this tolerance: 0.7*3 + 0.3*3 is 2.9999999999999996.
	epsilon = 1e-9
)

var ErrInvalidGradeRange = errors.New("grade must be between 0 and 5")

type Standing string

const (
	Approved Standing = "approved"
	AtRisk   Standing = "at_risk"
	Failing  Standing = "failing"
)

var Standings = []Standing{Approved, AtRisk, Failing}

// StandingFor classifies a final grade.
func StandingFor(finalGrade float64) Standing {
	switch {
	case finalGrade >= PassingThreshold-epsilon:
		return Approved
	case finalGrade >= AtRiskThreshold-epsilon:
		return AtRisk
	default:
		return Failing
	}
}

// Summary is the derived grade of a student within a subject (or one of its periods).
// It is never persisted.
//
// With no attempts at all the averages and the final grade are 0 and Graded is false,
// so clients can show "N/A" while the number keeps the historical zero policy.
type Summary struct {
	AverageQuiz       float64  `json:"average_quiz"`
	AverageEvaluation float64  `json:"average_evaluation"`
	FinalGrade        float64  `json:"final_grade"`
	Passes            bool     `json:"passes"`
	Standing          Standing `json:"standing"`
	Graded            bool     `json:"graded"`
	QuizCount         int      `json:"quiz_count"`
	EvaluationCount   int      `json:"evaluation_count"`
}

// ValidateGrade checks that g is a number within [MinGrade, MaxGrade].
func ValidateGrade(g float64) error {
	if math.IsNaN(g) || g < MinGrade || g > MaxGrade {
		return errors.Wrapf(ErrInvalidGradeRange, "got %v", g)
	}
	return nil
}

// Mean returns the arithmetic mean of grades, 0 when there are none.
func Mean(grades []float64) float64 {
	if len(grades) == 0 {
		return 0
	}
	var sum float64
	for _, g := range grades {
		sum += g
	}
	return sum / float64(len(grades))
}

// Aggregate computes the weighted final grade: 70% quiz average, 30% evaluation average.
// It fails with ErrInvalidGradeRange if any grade is outside [0, 5].
func Aggregate(quizGrades, evaluationGrades []float64) (Summary, error) {
	for _, grades := range [][]float64{quizGrades, evaluationGrades} {
		for _, g := range grades {
			if err := ValidateGrade(g); err != nil {
				return Summary{}, err
			}
		}
	}

	avgQuiz := Mean(quizGrades)
	avgEval := Mean(evaluationGrades)
	final := QuizWeight*avgQuiz + EvaluationWeight*avgEval
	standing := StandingFor(final)

	return Summary{
		AverageQuiz:       avgQuiz,
		AverageEvaluation: avgEval,
		FinalGrade:        final,
		Passes:            standing == Approved,
		Standing:          standing,
		Graded:            len(quizGrades)+len(evaluationGrades) > 0,
		QuizCount:         len(quizGrades),
		EvaluationCount:   len(evaluationGrades),
	}, nil
}

// Tally counts summaries per standing. Ungraded summaries are counted apart.
type Tally struct {
	Approved int `json:"approved"`
	AtRisk   int `json:"at_risk"`
	Failing  int `json:"failing"`
	Ungraded int `json:"ungraded"`
}

func (t *Tally) Add(s Summary) {
	if !s.Graded {
		t.Ungraded++
		return
	}
	switch s.Standing {
	case Approved:
		t.Approved++
	case AtRisk:
		t.AtRisk++
	default:
		t.Failing++
	}
}
