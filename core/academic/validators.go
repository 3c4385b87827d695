package academic

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
)

var (
	periodDatesTag  = "period_dates"
	periodDatesText = "a period cannot end before it starts"
)

// InitValidators registers the academic validators on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(periodStructValidation, NewPeriod{})
	core.RegisterCustomTranslation(validate, translator, periodDatesTag, periodDatesText)
}

func periodStructValidation(sl validator.StructLevel) {
	np, ok := sl.Current().Interface().(NewPeriod)
	if !ok {
		return
	}
	if np.StartsOn.Valid && np.EndsOn.Valid && np.EndsOn.Time.Before(np.StartsOn.Time) {
		sl.ReportError(np.EndsOn, "ends_on", "EndsOn", periodDatesTag, "")
	}
}
