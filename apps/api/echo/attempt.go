package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

var errAttemptNotFoundInCtx = errors.New("attempt object not found in echo.Context")

type attemptApi struct {
	svc         assessment.Service
	academicSvc academic.Service
	userSvc     user.Service
	validate    *validator.Validate
}

func registerAttemptAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc assessment.Service,
	academicSvc academic.Service,
	userSvc user.Service,
	validate *validator.Validate,
) {
	api := attemptApi{
		svc:         svc,
		academicSvc: academicSvc,
		userSvc:     userSvc,
		validate:    validate,
	}

	ag := g.Group("/attempts", jwt)
	dg := ag.Group("/:id", api.attemptViewerMiddleware)

	ag.POST("", api.start)
	ag.GET("", api.query)
	dg.GET("", api.retrieve)
	dg.POST("/finish", api.finish)
}

// teaches reports whether usr teaches the subject.
func (api *attemptApi) teaches(ctx context.Context, usr user.User, subjectID string) (bool, error) {
	if !usr.IsTeacher() {
		return false, nil
	}
	subj, err := api.academicSvc.GetSubject(ctx, subjectID)
	if err != nil {
		return false, errors.Wrap(err, "getting subject")
	}
	return subj.TeacherID.Valid && subj.TeacherID.String == usr.ID, nil
}

func (api *attemptApi) assessmentSubject(ctx context.Context, kind assessment.Kind, id string) (string, error) {
	if kind == assessment.KindQuiz {
		q, err := api.academicSvc.GetQuiz(ctx, id)
		return q.SubjectID, err
	}
	e, err := api.academicSvc.GetEvaluation(ctx, id)
	return e.SubjectID, err
}

// start lets a student start their own attempt. Admins and the subject's teacher may start one on
// behalf of a student.
func (api *attemptApi) start(ctx echo.Context) error {
	var data assessment.NewAttempt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttempt")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c := ctx.Request().Context()
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	switch {
	case data.StudentID == "" || data.StudentID == ctxUsr.ID:
		if !ctxUsr.IsStudent() {
			return errHttpForbidden
		}
		data.StudentID = ctxUsr.ID
	case ctxUsr.IsAdmin():
	default:
		subjectID, err := api.assessmentSubject(c, data.Kind, data.AssessmentID)
		if err != nil {
			return errors.Wrap(err, "getting assessment")
		}
		ok, err := api.teaches(c, ctxUsr, subjectID)
		if err != nil {
			return err
		}
		if !ok {
			return errHttpForbidden
		}
	}

	a, err := api.svc.Start(c, data)
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *attemptApi) finish(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(assessment.Attempt)
	if !ok {
		return errors.Wrap(errAttemptNotFoundInCtx, "retrieving object from context")
	}

	var data assessment.FinishAttempt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FinishAttempt")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Finish(ctx.Request().Context(), a.ID, *data.Grade)
	if err != nil {
		return errors.Wrap(err, "finishing attempt")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attemptApi) retrieve(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(assessment.Attempt)
	if !ok {
		return errors.Wrap(errAttemptNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, a)
}

// query restricts students to their own attempts and teachers to the subjects they teach.
func (api *attemptApi) query(ctx echo.Context) error {
	c := ctx.Request().Context()
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := bindAttemptFilter(ctx)
	switch {
	case ctxUsr.IsAdmin():
	case ctxUsr.IsTeacher():
		subjects, err := api.academicSvc.ListSubjects(c, academic.SubjectFilter{IDs: filter.SubjectIDs, TeacherID: ctxUsr.ID})
		if err != nil {
			return errors.Wrap(err, "listing subjects")
		}
		if len(subjects) == 0 {
			return ctx.JSON(http.StatusOK, []assessment.Attempt{})
		}
		filter.SubjectIDs = make([]string, len(subjects))
		for i, s := range subjects {
			filter.SubjectIDs[i] = s.ID
		}
	case ctxUsr.IsStudent():
		filter.StudentIDs = []string{ctxUsr.ID}
	default:
		return errHttpForbidden
	}

	attempts, err := api.svc.Query(c, filter)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []assessment.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

// attemptViewerMiddleware loads the `:id` attempt into the context for its student, the subject's
// teacher and admins.
func (api *attemptApi) attemptViewerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		c := ctx.Request().Context()
		ctxUsr, err := getContextUser(ctx, api.userSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}

		a, err := api.svc.Get(c, ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "getting attempt")
		}

		allowed := ctxUsr.IsAdmin() || a.StudentID == ctxUsr.ID
		if !allowed {
			if allowed, err = api.teaches(c, ctxUsr, a.SubjectID); err != nil {
				return err
			}
		}
		if !allowed {
			return errHttpNotFound
		}
		ctx.Set(contextObjectKey, a)
		return next(ctx)
	}
}
