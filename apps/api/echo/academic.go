package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/academic"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

var errSubjNotFoundInCtx = errors.New("subject object not found in echo.Context")

type academicApi struct {
	svc      academic.Service
	userSvc  user.Service
	validate *validator.Validate
}

func registerAcademicAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc academic.Service,
	userSvc user.Service,
	validate *validator.Validate,
) {
	api := academicApi{
		svc:      svc,
		userSvc:  userSvc,
		validate: validate,
	}

	cg := g.Group("/courses", jwt)
	cg.POST("", api.createCourse, adminMiddleware())
	cg.GET("", api.listCourses)
	cg.GET("/:id", api.retrieveCourse)
	cg.POST("/:id/subjects", api.createSubject, adminMiddleware())
	cg.GET("/:id/subjects", api.listSubjects)
	cg.POST("/:id/enrollments", api.enroll, adminMiddleware())
	cg.GET("/:id/enrollments", api.listEnrollments, adminMiddleware())

	sg := g.Group("/subjects/:id", jwt)
	// catalog of a subject is managed by admins and the subject's teacher
	tg := sg.Group("", subjectTeacherOrAdminMiddleware(api.svc, api.userSvc))

	sg.GET("", api.retrieveSubject)
	sg.GET("/periods", api.listPeriods)
	sg.GET("/quizzes", api.listQuizzes)
	sg.GET("/evaluations", api.listEvaluations)
	tg.POST("/periods", api.createPeriod)
	tg.POST("/quizzes", api.createQuiz)
	tg.POST("/evaluations", api.createEvaluation)

	gg := g.Group("/guardians/:id", jwt, adminMiddleware())
	gg.POST("/students", api.linkGuardian)
	gg.GET("/students", api.listGuardianStudents)
}

// Courses

func (api *academicApi) createCourse(ctx echo.Context) error {
	var data academic.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	course, err := api.svc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, course)
}

func (api *academicApi) listCourses(ctx echo.Context) error {
	courses, err := api.svc.ListCourses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	if courses == nil {
		courses = []academic.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *academicApi) retrieveCourse(ctx echo.Context) error {
	course, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *academicApi) createSubject(ctx echo.Context) error {
	var data academic.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	subj, err := api.svc.CreateSubject(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, subj)
}

func (api *academicApi) listSubjects(ctx echo.Context) error {
	c := ctx.Request().Context()
	if _, err := api.svc.GetCourse(c, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "getting course")
	}

	subjects, err := api.svc.ListSubjects(c, academic.SubjectFilter{CourseIDs: []string{ctx.Param("id")}})
	if err != nil {
		return errors.Wrap(err, "listing subjects")
	}
	if subjects == nil {
		subjects = []academic.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *academicApi) enroll(ctx echo.Context) error {
	var data academic.StudentIDs
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentIDs")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	enrollments, err := api.svc.Enroll(ctx.Request().Context(), ctx.Param("id"), data.StudentIDs...)
	if err != nil {
		return errors.Wrap(err, "enrolling students")
	}
	return ctx.JSON(http.StatusCreated, enrollments)
}

func (api *academicApi) listEnrollments(ctx echo.Context) error {
	c := ctx.Request().Context()
	if _, err := api.svc.GetCourse(c, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "getting course")
	}

	enrollments, err := api.svc.ListEnrollments(c, academic.EnrollmentFilter{CourseID: ctx.Param("id")})
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	if enrollments == nil {
		enrollments = []academic.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

// Subjects

func (api *academicApi) retrieveSubject(ctx echo.Context) error {
	subj, err := api.svc.GetSubject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting subject")
	}
	return ctx.JSON(http.StatusOK, subj)
}

func (api *academicApi) createPeriod(ctx echo.Context) error {
	subj, ok := ctx.Get(contextObjectKey).(academic.Subject)
	if !ok {
		return errors.Wrap(errSubjNotFoundInCtx, "retrieving object from context")
	}

	var data academic.NewPeriod
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPeriod")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	period, err := api.svc.CreatePeriod(ctx.Request().Context(), subj.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating period")
	}
	return ctx.JSON(http.StatusCreated, period)
}

func (api *academicApi) listPeriods(ctx echo.Context) error {
	c := ctx.Request().Context()
	subj, err := api.svc.GetSubject(c, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting subject")
	}

	periods, err := api.svc.ListPeriods(c, subj.ID)
	if err != nil {
		return errors.Wrap(err, "listing periods")
	}
	if periods == nil {
		periods = []academic.Period{}
	}
	return ctx.JSON(http.StatusOK, periods)
}

func (api *academicApi) createQuiz(ctx echo.Context) error {
	subj, ok := ctx.Get(contextObjectKey).(academic.Subject)
	if !ok {
		return errors.Wrap(errSubjNotFoundInCtx, "retrieving object from context")
	}

	var data academic.NewQuiz
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuiz")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	quiz, err := api.svc.CreateQuiz(ctx.Request().Context(), subj.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating quiz")
	}
	return ctx.JSON(http.StatusCreated, quiz)
}

func (api *academicApi) listQuizzes(ctx echo.Context) error {
	c := ctx.Request().Context()
	subj, err := api.svc.GetSubject(c, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting subject")
	}

	quizzes, err := api.svc.ListQuizzes(c, subj.ID)
	if err != nil {
		return errors.Wrap(err, "listing quizzes")
	}
	if quizzes == nil {
		quizzes = []academic.Quiz{}
	}
	return ctx.JSON(http.StatusOK, quizzes)
}

func (api *academicApi) createEvaluation(ctx echo.Context) error {
	subj, ok := ctx.Get(contextObjectKey).(academic.Subject)
	if !ok {
		return errors.Wrap(errSubjNotFoundInCtx, "retrieving object from context")
	}

	var data academic.NewEvaluation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvaluation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	eval, err := api.svc.CreateEvaluation(ctx.Request().Context(), subj.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating evaluation")
	}
	return ctx.JSON(http.StatusCreated, eval)
}

func (api *academicApi) listEvaluations(ctx echo.Context) error {
	c := ctx.Request().Context()
	subj, err := api.svc.GetSubject(c, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting subject")
	}

	evals, err := api.svc.ListEvaluations(c, subj.ID)
	if err != nil {
		return errors.Wrap(err, "listing evaluations")
	}
	if evals == nil {
		evals = []academic.Evaluation{}
	}
	return ctx.JSON(http.StatusOK, evals)
}

// Guardians

func (api *academicApi) linkGuardian(ctx echo.Context) error {
	var data academic.StudentIDs
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentIDs")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	links, err := api.svc.LinkGuardian(ctx.Request().Context(), ctx.Param("id"), data.StudentIDs...)
	if err != nil {
		return errors.Wrap(err, "linking guardian")
	}
	return ctx.JSON(http.StatusCreated, links)
}

func (api *academicApi) listGuardianStudents(ctx echo.Context) error {
	c := ctx.Request().Context()
	ids, err := api.svc.GuardianStudentIDs(c, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing guardian students")
	}
	if len(ids) == 0 {
		return ctx.JSON(http.StatusOK, []user.User{})
	}

	res := make([]user.User, 0, len(ids))
	for _, id := range ids {
		usr, err := api.userSvc.GetByID(c, id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return errors.Wrap(err, "getting student")
		}
		res = append(res, usr)
	}
	return ctx.JSON(http.StatusOK, res)
}

// subjectTeacherOrAdminMiddleware loads the `:id` subject into the context for admins and its teacher.
func subjectTeacherOrAdminMiddleware(svc academic.Service, userSvc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, userSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			subj, err := svc.GetSubject(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "getting subject")
			}
			if ctxUsr.IsAdmin() || (ctxUsr.IsTeacher() && subj.TeacherID.Valid && subj.TeacherID.String == ctxUsr.ID) {
				ctx.Set(contextObjectKey, subj)
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
