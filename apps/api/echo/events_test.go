package echoapi_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
)

func dialEvents(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/grades/events"
	if token != "" {
		url += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()

	var ev events.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func Test_eventsApi_stream(t *testing.T) {
	env, app := setup(t)
	srv := httptest.NewServer(app)
	defer srv.Close()

	s := env.NewSchool(t, "Tercero", 2)
	other := env.NewSchool(t, "Cuarto", 1)

	t.Run("Auth required", func(t *testing.T) {
		_, resp, err := dialEvents(t, srv, "")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		_, resp, err = dialEvents(t, srv, "lol")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("events are filtered per user", func(t *testing.T) {
		studentConn, _, err := dialEvents(t, srv, getToken(t, app, s.Students[0]))
		require.NoError(t, err)
		defer studentConn.Close()
		teacherConn, _, err := dialEvents(t, srv, getToken(t, app, s.Teacher))
		require.NoError(t, err)
		defer teacherConn.Close()
		otherConn, _, err := dialEvents(t, srv, getToken(t, app, other.Teacher))
		require.NoError(t, err)
		defer otherConn.Close()

		// not visible to the first student nor to the other teacher
		classmate := env.Grade(t, assessment.KindQuiz, s.Quizzes[0].ID, s.Students[1].ID, 4)
		mine := env.Grade(t, assessment.KindQuiz, s.Quizzes[0].ID, s.Students[0].ID, 3.5)
		elsewhere := env.Grade(t, assessment.KindQuiz, other.Quizzes[0].ID, other.Students[0].ID, 2)

		ev := readEvent(t, studentConn)
		assert.Equal(t, events.AttemptFinished, ev.Kind)
		assert.Equal(t, mine.ID, ev.AttemptID)
		assert.Equal(t, s.Students[0].ID, ev.StudentID)
		assert.Equal(t, s.Course.ID, ev.CourseID)

		assert.Equal(t, classmate.ID, readEvent(t, teacherConn).AttemptID)
		assert.Equal(t, mine.ID, readEvent(t, teacherConn).AttemptID)

		assert.Equal(t, elsewhere.ID, readEvent(t, otherConn).AttemptID)
	})
}
