package period

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ripoti/core"
)

var (
	yearMonthTag  = "yearmonth"
	yearMonthText = "must be a month formatted as YYYY-MM"

	periodTag  = "period"
	periodText = "must be one of Semester 1, Semester 2, Full Year or a YYYY-MM month"
)

// InitValidators registers the period validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(yearMonthTag, yearMonthValidation)
	core.RegisterCustomTranslation(validate, translator, yearMonthTag, yearMonthText)

	_ = validate.RegisterValidation(periodTag, periodValidation)
	core.RegisterCustomTranslation(validate, translator, periodTag, periodText)
}

func yearMonthValidation(fl validator.FieldLevel) bool {
	_, err := ParseYearMonth(fl.Field().String())
	return err == nil
}

func periodValidation(fl validator.FieldLevel) bool {
	_, err := Parse(fl.Field().String())
	return err == nil
}
