package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/internal/testutil"
)

func Test_academicApi_courses(t *testing.T) {
	env, app := setup(t)

	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.co", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.co", "", []string{user.RoleStudent}, true)
	adminToken := getToken(t, app, admin)
	studentToken := getToken(t, app, student)

	var course academic.Course
	body := marchallObj(t, academic.NewCourse{Name: " Sexto A ", Year: 2024})
	if code := do(t, app, http.MethodPost, "/v1/courses", adminToken, body, &course); code != http.StatusCreated {
		t.Fatalf("create: code = %v; want %v", code, http.StatusCreated)
	}
	if course.ID == "" || course.Name != "Sexto A" || course.Year != 2024 {
		t.Errorf("failed! created course = %+v", course)
	}

	tests := []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/v1/courses", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", method: http.MethodPost, path: "/v1/courses", token: studentToken, body: body,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "required fields", method: http.MethodPost, path: "/v1/courses", token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"name": "this field is required", "year": "this field is required"}),
		},
		{
			name: "duplicate", method: http.MethodPost, path: "/v1/courses", token: adminToken, body: body, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"name": academic.ErrCourseExists.Error()}),
		},
		{name: "list", method: http.MethodGet, path: "/v1/courses", token: studentToken, wantCode: http.StatusOK, wantData: marchallList(t, course)},
		{name: "retrieve", method: http.MethodGet, path: "/v1/courses/" + course.ID, token: studentToken, wantCode: http.StatusOK, wantData: marchallObj(t, course)},
		{
			name: "retrieve unknown", method: http.MethodGet, path: "/v1/courses/lol", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_academicApi_subjects(t *testing.T) {
	env, app := setup(t)

	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.co", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, app, admin)
	school := env.NewSchool(t, "Septimo", 1)
	other := env.NewSchool(t, "Octavo", 0)
	teacherToken := getToken(t, app, school.Teacher)
	otherToken := getToken(t, app, other.Teacher)
	studentToken := getToken(t, app, school.Students[0])

	coursePath := "/v1/courses/" + school.Course.ID
	subjPath := "/v1/subjects/" + school.Subject.ID

	t.Run("create subject", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "teacher must be a teacher", token: adminToken, wantCode: http.StatusBadRequest,
				body:     marchallObj(t, academic.NewSubject{Name: "Biology", TeacherID: school.Students[0].ID}),
				wantData: marchallObj(t, map[string]string{"teacher_id": "user is not an active teacher"}),
			},
			{
				name: "duplicate", token: adminToken, wantCode: http.StatusBadRequest,
				body:     marchallObj(t, academic.NewSubject{Name: "Mathematics"}),
				wantData: marchallObj(t, map[string]string{"name": academic.ErrSubjectExists.Error()}),
			},
			{
				name: "teachers cannot create subjects", token: teacherToken, wantCode: http.StatusForbidden,
				body: marchallObj(t, academic.NewSubject{Name: "Biology"}), wantData: marchallObj(t, errForbidden),
			},
			{name: "created", token: adminToken, wantCode: http.StatusCreated, body: marchallObj(t, academic.NewSubject{Name: "Biology", TeacherID: school.Teacher.ID})},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodPost, coursePath+"/subjects", tt.token, tt.body)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}

		var subjects []academic.Subject
		if code := do(t, app, http.MethodGet, coursePath+"/subjects", studentToken, nil, &subjects); code != http.StatusOK {
			t.Fatalf("list: code = %v", code)
		}
		if len(subjects) != 2 {
			t.Errorf("failed! len(subjects) = %d; want 2", len(subjects))
		}
		if code := do(t, app, http.MethodGet, "/v1/courses/lol/subjects", studentToken, nil, nil); code != http.StatusNotFound {
			t.Errorf("unknown course: code = %v; want %v", code, http.StatusNotFound)
		}
	})

	t.Run("catalog", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "other teacher", method: http.MethodPost, path: subjPath + "/periods", token: otherToken,
				body: marchallObj(t, academic.NewPeriod{Number: 3}), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
			},
			{
				name: "student", method: http.MethodPost, path: subjPath + "/periods", token: studentToken,
				body: marchallObj(t, academic.NewPeriod{Number: 3}), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
			},
			{
				name: "unknown subject", method: http.MethodPost, path: "/v1/subjects/lol/periods", token: adminToken,
				body: marchallObj(t, academic.NewPeriod{Number: 3}), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "subject not found"}),
			},
			{
				name: "duplicate period", method: http.MethodPost, path: subjPath + "/periods", token: teacherToken,
				body:     marchallObj(t, academic.NewPeriod{Number: 1}),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"number": academic.ErrPeriodExists.Error()}),
			},
			{name: "period by teacher", method: http.MethodPost, path: subjPath + "/periods", token: teacherToken, body: marchallObj(t, academic.NewPeriod{Number: 3}), wantCode: http.StatusCreated},
			{name: "period by admin", method: http.MethodPost, path: subjPath + "/periods", token: adminToken, body: marchallObj(t, academic.NewPeriod{Number: 4}), wantCode: http.StatusCreated},
			{
				name: "quiz in a period of another subject", method: http.MethodPost, path: subjPath + "/quizzes", token: teacherToken,
				body:     marchallObj(t, academic.NewQuiz{PeriodID: other.Periods[0].ID, Title: "Fractions"}),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"period_id": "period does not belong to this subject"}),
			},
			{
				name: "quiz", method: http.MethodPost, path: subjPath + "/quizzes", token: teacherToken,
				body: marchallObj(t, academic.NewQuiz{PeriodID: school.Periods[0].ID, Title: "Fractions", Subtopic: "Sums"}), wantCode: http.StatusCreated,
			},
			{
				name: "evaluation", method: http.MethodPost, path: subjPath + "/evaluations", token: teacherToken,
				body: marchallObj(t, academic.NewEvaluation{PeriodID: school.Periods[1].ID, Title: "Final"}), wantCode: http.StatusCreated,
			},
			{name: "retrieve", method: http.MethodGet, path: subjPath, token: studentToken, wantCode: http.StatusOK, wantData: marchallObj(t, school.Subject)},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}

		var periods []academic.Period
		do(t, app, http.MethodGet, subjPath+"/periods", studentToken, nil, &periods)
		if len(periods) != 4 {
			t.Errorf("failed! len(periods) = %d; want 4", len(periods))
		}
		var quizzes []academic.Quiz
		do(t, app, http.MethodGet, subjPath+"/quizzes", studentToken, nil, &quizzes)
		if len(quizzes) != 3 {
			t.Errorf("failed! len(quizzes) = %d; want 3", len(quizzes))
		}
		var evals []academic.Evaluation
		do(t, app, http.MethodGet, subjPath+"/evaluations", studentToken, nil, &evals)
		if len(evals) != 3 {
			t.Errorf("failed! len(evaluations) = %d; want 3", len(evals))
		}
	})
}

func Test_academicApi_enrollmentsAndGuardians(t *testing.T) {
	env, app := setup(t)

	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.co", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, app, admin)
	school := env.NewSchool(t, "Noveno", 1)
	late := testutil.CreateUser(t, env.UserRepo, "Late", "", "late@test.co", "", []string{user.RoleStudent}, true)
	guardian := testutil.CreateGuardian(t, env.UserRepo, "Mom", "mom@test.co", "CC1234567")

	enrollPath := "/v1/courses/" + school.Course.ID + "/enrollments"
	tests := []httpTest{
		{
			name: "teacher cannot list enrollments", method: http.MethodGet, path: enrollPath, token: getToken(t, app, school.Teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "only students are enrolled", method: http.MethodPost, path: enrollPath, token: adminToken,
			body:     marchallObj(t, academic.StudentIDs{StudentIDs: []string{school.Teacher.ID}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_ids": "user is not an active student: " + school.Teacher.ID}),
		},
		{name: "enroll", method: http.MethodPost, path: enrollPath, token: adminToken, body: marchallObj(t, academic.StudentIDs{StudentIDs: []string{late.ID}}), wantCode: http.StatusCreated},
		{
			name: "not a guardian", method: http.MethodPost, path: "/v1/guardians/" + late.ID + "/students", token: adminToken,
			body:     marchallObj(t, academic.StudentIDs{StudentIDs: []string{late.ID}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"guardian_id": "user is not an active guardian"}),
		},
		{
			name: "unknown guardian", method: http.MethodPost, path: "/v1/guardians/lol/students", token: adminToken,
			body:     marchallObj(t, academic.StudentIDs{StudentIDs: []string{late.ID}}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "link guardian", method: http.MethodPost, path: "/v1/guardians/" + guardian.ID + "/students", token: adminToken,
			body: marchallObj(t, academic.StudentIDs{StudentIDs: []string{late.ID, school.Students[0].ID}}), wantCode: http.StatusCreated,
		},
		{
			name: "guardian students", method: http.MethodGet, path: "/v1/guardians/" + guardian.ID + "/students", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, late, school.Students[0]),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	var enrollments []academic.Enrollment
	if code := do(t, app, http.MethodGet, enrollPath, adminToken, nil, &enrollments); code != http.StatusOK {
		t.Fatalf("list enrollments: code = %v", code)
	}
	if len(enrollments) != 2 {
		t.Errorf("failed! len(enrollments) = %d; want 2", len(enrollments))
	}
}
