package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/grading"
)

// report prints the performance of a course: one line per student and subject, then the totals.
func (cli *commandLine) report(courseID string) error {
	perf, err := cli.gradebookSvc.CoursePerformance(context.Background(), courseID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Course: %s\n\n", perf.Course.Name)
	fmt.Fprintln(w, "STUDENT\tSUBJECT\tQUIZ\tEVALUATION\tFINAL\tSTANDING")
	for _, sp := range perf.Students {
		for _, ss := range sp.Subjects {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
				sp.Student.Name, ss.SubjectName,
				ss.Summary.AverageQuiz, ss.Summary.AverageEvaluation, ss.Summary.FinalGrade,
				standingLabel(ss.Summary))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SUBJECT\tAVERAGE\tAPPROVED\tAT RISK\tFAILING\tUNGRADED")
	for _, sp := range perf.Subjects {
		fmt.Fprintf(w, "%s\t%.2f\t%d\t%d\t%d\t%d\n",
			sp.SubjectName, sp.AverageFinalGrade,
			sp.Tally.Approved, sp.Tally.AtRisk, sp.Tally.Failing, sp.Tally.Ungraded)
	}
	return w.Flush()
}

func standingLabel(s grading.Summary) string {
	if !s.Graded {
		return "n/a"
	}
	return string(s.Standing)
}
