package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

type eventsApi struct {
	subscriber  events.Subscriber
	academicSvc academic.Service
	userSvc     user.Service
	logger      core.Logger
	upgrader    websocket.Upgrader
}

func registerEventsAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	subscriber events.Subscriber,
	academicSvc academic.Service,
	userSvc user.Service,
	allowedOrigins []string,
	logger core.Logger,
) {
	api := eventsApi{
		subscriber:  subscriber,
		academicSvc: academicSvc,
		userSvc:     userSvc,
		logger:      logger,
		upgrader:    websocket.Upgrader{CheckOrigin: checkOrigin(allowedOrigins)},
	}

	// browsers cannot set headers on websockets: the token is sent as `?token=`
	g.GET("/grades/events", api.stream, jwt)
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// eventFilter tells whether a user is notified of an event.
type eventFilter func(ev events.Event) bool

func (api *eventsApi) filterFor(ctx context.Context, usr user.User) (eventFilter, error) {
	if usr.IsAdmin() {
		return func(events.Event) bool { return true }, nil
	}

	students := map[string]bool{}
	if usr.IsStudent() {
		students[usr.ID] = true
	}
	if usr.IsGuardian() {
		ids, err := api.academicSvc.GuardianStudentIDs(ctx, usr.ID)
		if err != nil {
			return nil, errors.Wrap(err, "listing guardian students")
		}
		for _, id := range ids {
			students[id] = true
		}
	}

	subjects, courses := map[string]bool{}, map[string]bool{}
	if usr.IsTeacher() {
		taught, err := api.academicSvc.ListSubjects(ctx, academic.SubjectFilter{TeacherID: usr.ID})
		if err != nil {
			return nil, errors.Wrap(err, "listing taught subjects")
		}
		for _, s := range taught {
			subjects[s.ID] = true
			courses[s.CourseID] = true
		}
	}

	return func(ev events.Event) bool {
		switch {
		case ev.StudentID != "" && students[ev.StudentID]:
			return true
		case ev.SubjectID != "" && subjects[ev.SubjectID]:
			return true
		case ev.Kind == events.CatalogChanged && courses[ev.CourseID]:
			return true
		}
		return false
	}, nil
}

// stream pushes the grade events visible to the user until either side closes the connection.
// Clients refetch the affected view on each event instead of polling.
func (api *eventsApi) stream(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter, err := api.filterFor(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return err
	}

	// subscribed before the handshake completes: no event is missed once the client is connected
	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evs := api.subscriber.Subscribe(subCtx)

	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader has already replied to the client
		api.logger.Warn("websocket upgrade", errors.Wrap(err, "upgrading connection"))
		return nil
	}
	defer conn.Close()

	// the reader only handles control frames; it cancels the subscription once the client is gone
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-evs:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
				return nil
			}
			if !filter(ev) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		}
	}
}
