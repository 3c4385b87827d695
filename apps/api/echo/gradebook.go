package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/gradebook"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

type gradebookApi struct {
	svc      gradebook.Service
	userSvc  user.Service
	validate *validator.Validate
}

// registerGradebookAPI registers route-level middleware only: a group with middleware would shadow the
// /courses and /guardians routes of the catalog.
func registerGradebookAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc gradebook.Service,
	userSvc user.Service,
	validate *validator.Validate,
	lookupsPerMinute int,
) {
	api := gradebookApi{
		svc:      svc,
		userSvc:  userSvc,
		validate: validate,
	}

	// un-authed: guardians identify with their email and the end of their national ID
	g.POST("/guardians/lookup", api.lookupGuardian, ipRateLimitMiddleware(lookupsPerMinute, time.Minute))

	g.GET("/me/grades", api.myGrades, jwt, rolesMiddleware(user.RoleStudent))
	g.GET("/me/children/grades", api.myChildrenGrades, jwt, rolesMiddleware(user.RoleGuardian))
	g.GET("/students/:id/grades", api.studentDetail, jwt, rolesMiddleware(user.RoleTeacher, user.RoleAdmin))
	g.GET("/courses/:id/performance", api.coursePerformance, jwt, adminMiddleware())
	g.POST("/guardians/:id/report-email", api.emailGuardianReport, jwt, adminMiddleware())
}

func (api *gradebookApi) myGrades(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	report, err := api.svc.StudentReport(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting student report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *gradebookApi) myChildrenGrades(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	reports, err := api.svc.GuardianReports(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting guardian reports")
	}
	if reports == nil {
		reports = []gradebook.StudentReport{}
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *gradebookApi) studentDetail(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	report, err := api.svc.TeacherStudentDetail(ctx.Request().Context(), ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student detail")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *gradebookApi) coursePerformance(ctx echo.Context) error {
	perf, err := api.svc.CoursePerformance(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course performance")
	}
	return ctx.JSON(http.StatusOK, perf)
}

func (api *gradebookApi) lookupGuardian(ctx echo.Context) error {
	var data gradebook.GuardianLookup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GuardianLookup")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	view, err := api.svc.LookupGuardian(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "looking up guardian")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *gradebookApi) emailGuardianReport(ctx echo.Context) error {
	if err := api.svc.EmailGuardianReport(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "emailing guardian report")
	}
	return ctx.JSON(http.StatusAccepted, SuccessResponse{Success: "The grade report is being sent."})
}
