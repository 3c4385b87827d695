// Package gradebook builds the grade views: student grades, guardian lookup,
// teacher per-student detail and admin performance by course.
//
// Every final grade shown by these views comes from grading.Aggregate.
package gradebook

import (
	"context"
	"net/mail"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/grading"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

var (
	// errors
	ErrStudentNotFound  = core.NewNotFoundError("student")
	ErrGuardianNotFound = core.NewNotFoundError("guardian")
	ErrForbidden        = errors.New("not allowed to see the grades of this student")

	errNoGuardianEmail = "guardian has no email address"
	reportMailSubject  = "Grade Report"
)

const reportKeyPrefix = "gradebook:report:"

func reportKey(studentID string) string {
	return reportKeyPrefix + studentID
}

type (
	Service interface {
		// StudentReport is the student grades view.
		StudentReport(ctx context.Context, studentID string) (StudentReport, error)
		// GuardianReports returns the reports of every student linked to the guardian.
		GuardianReports(ctx context.Context, guardianID string) ([]StudentReport, error)
		// LookupGuardian authenticates a guardian by email and national ID fragment and returns their view.
		LookupGuardian(ctx context.Context, lookup GuardianLookup) (GuardianView, error)
		// TeacherStudentDetail restricts a student's report to the subjects taught by viewer; admins see everything.
		TeacherStudentDetail(ctx context.Context, viewer user.User, studentID string) (StudentReport, error)
		CoursePerformance(ctx context.Context, courseID string) (CoursePerformance, error)
		EmailGuardianReport(ctx context.Context, guardianID string) error
		// Invalidate drops cached reports affected by ev.
		Invalidate(ev events.Event)
	}

	service struct {
		userSvc       user.Service
		academicSvc   academic.Service
		assessmentSvc assessment.Service
		cache         core.Cache
		mailSvc       core.EmailService
		logger        core.Logger
		ttl           time.Duration

		// generations counts the invalidations of every student report. A report built
		// before an invalidation is not cached.
		mu          sync.Mutex
		generations map[string]uint64
	}
)

var _ Service = (*service)(nil)

// NewService returns a gradebook Service. Its cache invalidation is hooked on hooks.
func NewService(
	userSvc user.Service,
	academicSvc academic.Service,
	assessmentSvc assessment.Service,
	cache core.Cache,
	mailSvc core.EmailService,
	hooks events.Hooker,
	logger core.Logger,
	conf *core.Config,
) Service {
	svc := &service{
		userSvc:       userSvc,
		academicSvc:   academicSvc,
		assessmentSvc: assessmentSvc,
		cache:         cache,
		mailSvc:       mailSvc,
		logger:        logger,
		ttl:           conf.Cache.ReportTTL,
		generations:   make(map[string]uint64),
	}
	hooks.AddHook(svc.Invalidate)
	return svc
}

func (svc *service) Invalidate(ev events.Event) {
	ctx := context.Background()
	keys := make([]string, 0, 1)
	switch {
	case ev.StudentID != "":
		keys = append(keys, reportKey(ev.StudentID))
	case ev.CourseID != "":
		enrollments, err := svc.academicSvc.ListEnrollments(ctx, academic.EnrollmentFilter{CourseID: ev.CourseID})
		if err != nil {
			svc.logger.Error("invalidating course reports", errors.Wrap(err, ev.CourseID))
			return
		}
		for _, e := range enrollments {
			keys = append(keys, reportKey(e.StudentID))
		}
	}
	if len(keys) == 0 {
		return
	}

	svc.mu.Lock()
	for _, k := range keys {
		svc.generations[k]++
	}
	svc.mu.Unlock()

	if err := svc.cache.Delete(ctx, keys...); err != nil {
		svc.logger.Error("invalidating student reports", errors.Wrapf(err, "%v", keys))
	}
}

func (svc *service) getStudent(ctx context.Context, studentID string) (user.User, error) {
	usr, err := svc.userSvc.GetByID(ctx, studentID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, ErrStudentNotFound
		}
		return user.User{}, errors.Wrap(err, "getting student")
	}
	if !usr.IsStudent() {
		return user.User{}, ErrStudentNotFound
	}
	return usr, nil
}

func (svc *service) generation(key string) uint64 {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.generations[key]
}

// cacheReport stores report unless key was invalidated since gen was read.
func (svc *service) cacheReport(ctx context.Context, key string, gen uint64, report StudentReport) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.generations[key] != gen {
		return nil
	}
	return svc.cache.Set(ctx, key, report, svc.ttl)
}

// StudentReport checks the student on every call: only the grades are served from the cache.
func (svc *service) StudentReport(ctx context.Context, studentID string) (StudentReport, error) {
	student, err := svc.getStudent(ctx, studentID)
	if err != nil {
		return StudentReport{}, err
	}

	key := reportKey(studentID)
	gen := svc.generation(key)

	var report StudentReport
	ok, err := svc.cache.Get(ctx, key, &report)
	if err != nil {
		svc.logger.Warn("reading cached student report", errors.Wrap(err, studentID))
	}
	if ok {
		report.Student = newStudentInfo(student)
		return report, nil
	}

	if report, err = svc.buildStudentReport(ctx, student); err != nil {
		return StudentReport{}, err
	}
	if err = svc.cacheReport(ctx, key, gen, report); err != nil {
		svc.logger.Warn("caching student report", errors.Wrap(err, studentID))
	}
	return report, nil
}

func (svc *service) buildStudentReport(ctx context.Context, student user.User) (StudentReport, error) {
	report := StudentReport{
		Student:     newStudentInfo(student),
		Subjects:    []SubjectReport{},
		GeneratedAt: time.Now().UTC(),
	}

	enrollments, err := svc.academicSvc.ListEnrollments(ctx, academic.EnrollmentFilter{StudentID: student.ID})
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "listing enrollments")
	}
	if len(enrollments) == 0 {
		return report, nil
	}

	courses := make(map[string]academic.Course, len(enrollments))
	courseIDs := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		c, err := svc.academicSvc.GetCourse(ctx, e.CourseID)
		if err != nil {
			return StudentReport{}, errors.Wrap(err, "getting course")
		}
		courses[c.ID] = c
		courseIDs = append(courseIDs, c.ID)
	}

	subjects, err := svc.academicSvc.ListSubjects(ctx, academic.SubjectFilter{CourseIDs: courseIDs})
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "listing subjects")
	}
	if len(subjects) == 0 {
		return report, nil
	}
	subjectIDs := make([]string, len(subjects))
	for i, s := range subjects {
		subjectIDs[i] = s.ID
	}

	periods, err := svc.academicSvc.ListPeriods(ctx, subjectIDs...)
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "listing periods")
	}
	attempts, err := svc.assessmentSvc.Query(ctx, assessment.QueryFilter{
		StudentIDs:    []string{student.ID},
		SubjectIDs:    subjectIDs,
		CompletedOnly: true,
	})
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "querying attempts")
	}

	bySubject := make(map[string][]assessment.Attempt)
	byPeriod := make(map[string][]assessment.Attempt)
	for _, a := range attempts {
		bySubject[a.SubjectID] = append(bySubject[a.SubjectID], a)
		byPeriod[a.PeriodID] = append(byPeriod[a.PeriodID], a)
	}
	periodsBySubject := make(map[string][]academic.Period)
	for _, p := range periods {
		periodsBySubject[p.SubjectID] = append(periodsBySubject[p.SubjectID], p)
	}

	for _, subj := range subjects {
		summary, err := grading.Aggregate(assessment.Grades(bySubject[subj.ID]))
		if err != nil {
			return StudentReport{}, errors.Wrapf(err, "aggregating subject %s", subj.ID)
		}
		sr := SubjectReport{
			SubjectID:   subj.ID,
			SubjectName: subj.Name,
			CourseID:    subj.CourseID,
			CourseName:  courses[subj.CourseID].Name,
			TeacherID:   subj.TeacherID.String,
			Summary:     summary,
			Periods:     []PeriodReport{},
		}
		for _, p := range periodsBySubject[subj.ID] {
			ps, err := grading.Aggregate(assessment.Grades(byPeriod[p.ID]))
			if err != nil {
				return StudentReport{}, errors.Wrapf(err, "aggregating period %s", p.ID)
			}
			sr.Periods = append(sr.Periods, PeriodReport{PeriodID: p.ID, Number: p.Number, Summary: ps})
		}
		sort.Slice(sr.Periods, func(i, j int) bool { return sr.Periods[i].Number < sr.Periods[j].Number })
		report.Subjects = append(report.Subjects, sr)
	}

	sort.SliceStable(report.Subjects, func(i, j int) bool {
		a, b := report.Subjects[i], report.Subjects[j]
		if a.CourseName != b.CourseName {
			return a.CourseName < b.CourseName
		}
		return a.SubjectName < b.SubjectName
	})
	report.retally()
	return report, nil
}

func (svc *service) getGuardian(ctx context.Context, guardianID string) (user.User, error) {
	usr, err := svc.userSvc.GetByID(ctx, guardianID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, ErrGuardianNotFound
		}
		return user.User{}, errors.Wrap(err, "getting guardian")
	}
	if !usr.IsGuardian() {
		return user.User{}, ErrGuardianNotFound
	}
	return usr, nil
}

func (svc *service) GuardianReports(ctx context.Context, guardianID string) ([]StudentReport, error) {
	if _, err := svc.getGuardian(ctx, guardianID); err != nil {
		return nil, err
	}
	return svc.guardianReports(ctx, guardianID)
}

func (svc *service) guardianReports(ctx context.Context, guardianID string) ([]StudentReport, error) {
	studentIDs, err := svc.academicSvc.GuardianStudentIDs(ctx, guardianID)
	if err != nil {
		return nil, errors.Wrap(err, "listing guardian students")
	}

	reports := make([]StudentReport, 0, len(studentIDs))
	for _, id := range studentIDs {
		report, err := svc.StudentReport(ctx, id)
		if err != nil {
			if errors.Cause(err) == ErrStudentNotFound {
				continue
			}
			return nil, err
		}
		reports = append(reports, report)
	}
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].Student.Name < reports[j].Student.Name })
	return reports, nil
}

func (svc *service) LookupGuardian(ctx context.Context, lookup GuardianLookup) (GuardianView, error) {
	guardian, err := svc.userSvc.AuthenticateGuardian(ctx, lookup.Email, lookup.IDFragment)
	if err != nil {
		return GuardianView{}, err
	}
	reports, err := svc.guardianReports(ctx, guardian.ID)
	if err != nil {
		return GuardianView{}, err
	}
	return GuardianView{Guardian: newStudentInfo(guardian), Reports: reports}, nil
}

func (svc *service) TeacherStudentDetail(ctx context.Context, viewer user.User, studentID string) (StudentReport, error) {
	if !(viewer.IsAdmin() || viewer.IsTeacher()) {
		return StudentReport{}, ErrForbidden
	}

	report, err := svc.StudentReport(ctx, studentID)
	if err != nil {
		return StudentReport{}, err
	}
	if viewer.IsAdmin() {
		return report, nil
	}

	subjects := make([]SubjectReport, 0, len(report.Subjects))
	for _, s := range report.Subjects {
		if s.TeacherID == viewer.ID {
			subjects = append(subjects, s)
		}
	}
	if len(subjects) == 0 {
		return StudentReport{}, ErrForbidden
	}
	report.Subjects = subjects
	report.retally()
	return report, nil
}

func (svc *service) CoursePerformance(ctx context.Context, courseID string) (CoursePerformance, error) {
	course, err := svc.academicSvc.GetCourse(ctx, courseID)
	if err != nil {
		return CoursePerformance{}, err
	}
	perf := CoursePerformance{
		Course:   course,
		Students: []StudentPerformance{},
		Subjects: []SubjectPerformance{},
	}

	subjects, err := svc.academicSvc.ListSubjects(ctx, academic.SubjectFilter{CourseIDs: []string{courseID}})
	if err != nil {
		return CoursePerformance{}, errors.Wrap(err, "listing subjects")
	}
	sort.SliceStable(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	enrollments, err := svc.academicSvc.ListEnrollments(ctx, academic.EnrollmentFilter{CourseID: courseID})
	if err != nil {
		return CoursePerformance{}, errors.Wrap(err, "listing enrollments")
	}

	students := make([]user.User, 0, len(enrollments))
	for _, e := range enrollments {
		usr, err := svc.userSvc.GetByID(ctx, e.StudentID)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return CoursePerformance{}, errors.Wrap(err, "getting student")
		}
		students = append(students, usr)
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].Name < students[j].Name })

	type key struct{ student, subject string }
	grouped := make(map[key][]assessment.Attempt)
	if len(students) > 0 && len(subjects) > 0 {
		studentIDs := make([]string, len(students))
		for i, s := range students {
			studentIDs[i] = s.ID
		}
		subjectIDs := make([]string, len(subjects))
		for i, s := range subjects {
			subjectIDs[i] = s.ID
		}
		attempts, err := svc.assessmentSvc.Query(ctx, assessment.QueryFilter{
			StudentIDs:    studentIDs,
			SubjectIDs:    subjectIDs,
			CompletedOnly: true,
		})
		if err != nil {
			return CoursePerformance{}, errors.Wrap(err, "querying attempts")
		}
		for _, a := range attempts {
			k := key{a.StudentID, a.SubjectID}
			grouped[k] = append(grouped[k], a)
		}
	}

	subjectPerf := make([]SubjectPerformance, len(subjects))
	gradedSums := make([]float64, len(subjects))
	for i, subj := range subjects {
		subjectPerf[i] = SubjectPerformance{SubjectID: subj.ID, SubjectName: subj.Name}
	}

	for _, student := range students {
		sp := StudentPerformance{Student: newStudentInfo(student), Subjects: make([]SubjectSummary, 0, len(subjects))}
		for i, subj := range subjects {
			summary, err := grading.Aggregate(assessment.Grades(grouped[key{student.ID, subj.ID}]))
			if err != nil {
				return CoursePerformance{}, errors.Wrapf(err, "aggregating subject %s of student %s", subj.ID, student.ID)
			}
			sp.Subjects = append(sp.Subjects, SubjectSummary{SubjectID: subj.ID, SubjectName: subj.Name, Summary: summary})
			sp.Tally.Add(summary)
			subjectPerf[i].Tally.Add(summary)
			perf.Tally.Add(summary)
			if summary.Graded {
				gradedSums[i] += summary.FinalGrade
			}
		}
		perf.Students = append(perf.Students, sp)
	}

	for i := range subjectPerf {
		graded := subjectPerf[i].Tally.Approved + subjectPerf[i].Tally.AtRisk + subjectPerf[i].Tally.Failing
		if graded > 0 {
			subjectPerf[i].AverageFinalGrade = gradedSums[i] / float64(graded)
		}
	}
	perf.Subjects = subjectPerf
	return perf, nil
}

func (svc *service) EmailGuardianReport(ctx context.Context, guardianID string) error {
	guardian, err := svc.getGuardian(ctx, guardianID)
	if err != nil {
		return err
	}
	if guardian.Email == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: errNoGuardianEmail})
	}
	reports, err := svc.guardianReports(ctx, guardianID)
	if err != nil {
		return err
	}

	name := guardian.Name
	if name == "" {
		name = guardian.Username
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: guardian.Email}},
		Subject:      reportMailSubject,
		TemplateName: "grade_report",
		TemplateData: map[string]interface{}{
			"Name":    name,
			"Reports": reports,
		},
	})
	return nil
}
