package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/assessment"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

const orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=name,-created_at`; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindUserFilter reads `search`, `role` (repeatable), `is_active`, `created_from` and `created_to`.
// Dates are either RFC 3339 timestamps or YYYY-MM-DD days. Unparsable values are ignored.
func bindUserFilter(ctx echo.Context) *user.QueryFilter {
	params := ctx.QueryParams()
	filter := &user.QueryFilter{
		Search: params.Get("search"),
		Roles:  params["role"],
	}
	if v, err := strconv.ParseBool(params.Get("is_active")); err == nil {
		filter.IsActive = &v
	}
	if t, ok := parseDate(params.Get("created_from")); ok {
		filter.CreatedFrom = t
	}
	if t, ok := parseDate(params.Get("created_to")); ok {
		filter.CreatedTo = t
	}
	filter.Clean()
	return filter
}

// bindAttemptFilter reads `student_id`, `subject_id`, `period_id`, `kind` and `completed`.
func bindAttemptFilter(ctx echo.Context) assessment.QueryFilter {
	params := ctx.QueryParams()
	filter := assessment.QueryFilter{
		PeriodID: core.CleanString(params.Get("period_id"), true /* lower */),
		Kind:     assessment.Kind(params.Get("kind")),
	}
	if id := core.CleanString(params.Get("student_id"), true /* lower */); id != "" {
		filter.StudentIDs = []string{id}
	}
	if id := core.CleanString(params.Get("subject_id"), true /* lower */); id != "" {
		filter.SubjectIDs = []string{id}
	}
	if !filter.Kind.Valid() {
		filter.Kind = ""
	}
	if v, err := strconv.ParseBool(params.Get("completed")); err == nil {
		filter.CompletedOnly = v
	}
	return filter
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
