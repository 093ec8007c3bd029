package school

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/thehouse/platform/core"
)

var (
	timeslotTag  = "timeslot"
	timeslotText = "must be a time of day in HH:MM format"

	slotEndText            = "must be after start_time"
	errSlotEndsBeforeStart = errors.New("schedule slot ends before it starts")
)

// RegisterValidators adds the school package's custom validation tags.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(timeslotTag, timeslotValidation)
	core.RegisterCustomTranslation(validate, translator, timeslotTag, timeslotText)
}

func timeslotValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}
