package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/internal/testutil"
)

func Test_attemptApi_lifecycle(t *testing.T) {
	env, app := setup(t)

	school := env.NewSchool(t, "Decimo", 2)
	other := env.NewSchool(t, "Once", 1)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.co", "", []string{user.RoleAdmin}, true)
	guardian := testutil.CreateGuardian(t, env.UserRepo, "Dad", "dad@test.co", "CC7654321")

	adminToken := getToken(t, app, admin)
	teacherToken := getToken(t, app, school.Teacher)
	otherTeacherToken := getToken(t, app, other.Teacher)
	student0Token := getToken(t, app, school.Students[0])
	student1Token := getToken(t, app, school.Students[1])
	outsiderToken := getToken(t, app, other.Students[0])

	newAttempt := func(kind assessment.Kind, id, studentID string) []byte {
		return marchallObj(t, assessment.NewAttempt{Kind: kind, AssessmentID: id, StudentID: studentID})
	}
	grade := func(g float64) []byte {
		return marchallObj(t, map[string]float64{"grade": g})
	}

	var started assessment.Attempt
	if code := do(t, app, http.MethodPost, "/v1/attempts", student0Token, newAttempt(assessment.KindQuiz, school.Quizzes[0].ID, ""), &started); code != http.StatusCreated {
		t.Fatalf("start: code = %v; want %v", code, http.StatusCreated)
	}
	if started.StudentID != school.Students[0].ID || started.SubjectID != school.Subject.ID || started.PeriodID != school.Periods[0].ID || started.Completed {
		t.Errorf("failed! started attempt = %+v", started)
	}
	attemptPath := "/v1/attempts/" + started.ID

	t.Run("start", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "already in progress", token: student0Token, body: newAttempt(assessment.KindQuiz, school.Quizzes[0].ID, ""),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"assessment_id": assessment.ErrAttemptInProgress.Error()}),
			},
			{
				name: "invalid kind", token: student0Token, body: newAttempt("exam", school.Quizzes[0].ID, ""),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"kind": "kind must be one of quiz or evaluation"}),
			},
			{
				name: "unknown quiz", token: student0Token, body: newAttempt(assessment.KindQuiz, uuid.New().String(), ""),
				wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "quiz not found"}),
			},
			{
				name: "not enrolled", token: outsiderToken, body: newAttempt(assessment.KindQuiz, school.Quizzes[0].ID, ""),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_id": "student is not enrolled in this course"}),
			},
			{
				name: "guardians do not take quizzes", token: getToken(t, app, guardian), body: newAttempt(assessment.KindQuiz, school.Quizzes[0].ID, ""),
				wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
			},
			{
				name: "student for another student", token: student1Token, body: newAttempt(assessment.KindQuiz, school.Quizzes[0].ID, school.Students[0].ID),
				wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
			},
			{
				name: "other teacher for a student", token: otherTeacherToken, body: newAttempt(assessment.KindEvaluation, school.Evaluations[0].ID, school.Students[1].ID),
				wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
			},
			{
				name: "teacher for a student", token: teacherToken, body: newAttempt(assessment.KindEvaluation, school.Evaluations[0].ID, school.Students[1].ID),
				wantCode: http.StatusCreated,
			},
			{
				name: "admin for a student", token: adminToken, body: newAttempt(assessment.KindQuiz, school.Quizzes[1].ID, school.Students[1].ID),
				wantCode: http.StatusCreated,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodPost, "/v1/attempts", tt.token, tt.body)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}
	})

	t.Run("retrieve", func(t *testing.T) {
		notFound := marchallObj(t, httpErr{Error: "not found"})
		tests := []httpTest{
			{name: "owner", token: student0Token, wantCode: http.StatusOK, wantData: marchallObj(t, started)},
			{name: "teacher", token: teacherToken, wantCode: http.StatusOK, wantData: marchallObj(t, started)},
			{name: "admin", token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, started)},
			{name: "classmate", token: student1Token, wantCode: http.StatusNotFound, wantData: notFound},
			{name: "other teacher", token: otherTeacherToken, wantCode: http.StatusNotFound, wantData: notFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodGet, attemptPath, tt.token)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}

		if code := do(t, app, http.MethodGet, "/v1/attempts/lol", adminToken, nil, nil); code != http.StatusNotFound {
			t.Errorf("unknown attempt: code = %v; want %v", code, http.StatusNotFound)
		}
	})

	t.Run("finish", func(t *testing.T) {
		tests := []httpTest{
			{name: "classmate", token: student1Token, body: grade(4), wantCode: http.StatusNotFound},
			{
				name: "grade required", token: student0Token, body: []byte(`{}`),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"grade": "this field is required"}),
			},
			{
				name: "grade above range", token: student0Token, body: grade(7),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"grade": "grade must be between 0 and 5"}),
			},
			{
				name: "grade below range", token: student0Token, body: grade(-0.5),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"grade": "grade must be between 0 and 5"}),
			},
			{name: "finished", token: student0Token, body: grade(4.5), wantCode: http.StatusOK},
			{
				name: "completed attempts are immutable", token: teacherToken, body: grade(1),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"id": assessment.ErrAttemptCompleted.Error()}),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodPost, attemptPath+"/finish", tt.token, tt.body)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}

		var got assessment.Attempt
		if code := do(t, app, http.MethodGet, attemptPath, student0Token, nil, &got); code != http.StatusOK {
			t.Fatalf("retrieve: code = %v", code)
		}
		if !got.Completed || !got.Grade.Valid || got.Grade.Float64 != 4.5 || !got.EndedAt.Valid {
			t.Errorf("failed! finished attempt = %+v", got)
		}
	})

	t.Run("query", func(t *testing.T) {
		count := func(token, query string) int {
			var attempts []assessment.Attempt
			if code := do(t, app, http.MethodGet, "/v1/attempts"+query, token, nil, &attempts); code != http.StatusOK {
				t.Fatalf("query %q: code = %v", query, code)
			}
			return len(attempts)
		}

		if n := count(adminToken, ""); n != 3 {
			t.Errorf("admin: len = %d; want 3", n)
		}
		if n := count(adminToken, "?student_id="+school.Students[1].ID); n != 2 {
			t.Errorf("admin by student: len = %d; want 2", n)
		}
		if n := count(adminToken, "?completed=true"); n != 1 {
			t.Errorf("admin completed: len = %d; want 1", n)
		}
		if n := count(adminToken, "?kind=evaluation"); n != 1 {
			t.Errorf("admin evaluations: len = %d; want 1", n)
		}
		if n := count(student0Token, ""); n != 1 {
			t.Errorf("student: len = %d; want 1", n)
		}
		// students only ever see their own attempts
		if n := count(student0Token, "?student_id="+school.Students[1].ID); n != 1 {
			t.Errorf("student filtering another student: len = %d; want 1", n)
		}
		if n := count(teacherToken, ""); n != 3 {
			t.Errorf("teacher: len = %d; want 3", n)
		}
		if n := count(otherTeacherToken, ""); n != 0 {
			t.Errorf("other teacher: len = %d; want 0", n)
		}
		if code := do(t, app, http.MethodGet, "/v1/attempts", getToken(t, app, guardian), nil, nil); code != http.StatusForbidden {
			t.Errorf("guardian: code = %v; want %v", code, http.StatusForbidden)
		}
	})
}
