package model

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/nhle/mail-scheduler/internal/apperr"
)

// itemInput is the validated shape of a ScheduleItem coming from a form,
// the CLI or a config file.
type itemInput struct {
	Subject         string   `validate:"required,max=998"`
	Recipients      []string `validate:"required,min=1,dive,email"`
	Mode            string   `validate:"required,oneof=Time Interval"`
	Frequency       string   `validate:"required_if=Mode Time,omitempty,oneof=Once Daily Weekly Monthly"`
	ScheduleTime    string   `validate:"required_if=Mode Time,omitempty,hhmm"`
	IntervalMinutes int      `validate:"required_if=Mode Interval,omitempty,min=1"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
	translator   ut.Translator
	validateErr  error
)

func initValidator() {
	v := validator.New(validator.WithRequiredStructEnabled())

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	trans, ok := uni.GetTranslator("en")
	if !ok {
		validateErr = errors.New("english translator not found")
		return
	}
	if err := enTranslations.RegisterDefaultTranslations(v, trans); err != nil {
		validateErr = err
		return
	}

	//nolint:errcheck // registration only fails on empty tags
	v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, _, ok := ParseClock(fl.Field().String())
		return ok
	})
	//nolint:errcheck
	v.RegisterTranslation("hhmm", trans,
		func(ut ut.Translator) error {
			return ut.Add("hhmm", "{0} must be a 24-hour time like 09:30", false)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(fe.Tag(), fe.Field())
			return t
		},
	)

	validate = v
	translator = trans
}

// ValidateItem checks user-supplied item fields before they reach the
// store. It returns an apperr validation error with one message per field.
func ValidateItem(item ScheduleItem) error {
	validateOnce.Do(initValidator)
	if validateErr != nil {
		return apperr.Configuration("initializing validator", validateErr)
	}

	in := itemInput{
		Subject:         item.Subject,
		Recipients:      item.Recipients,
		Mode:            string(item.Mode),
		Frequency:       string(item.Frequency),
		ScheduleTime:    item.ScheduleTime,
		IntervalMinutes: item.IntervalMinutes,
	}
	return translate(validate.Struct(in))
}

// ValidateProfile checks an SMTP profile before it is saved.
func ValidateProfile(p SMTPProfile) error {
	validateOnce.Do(initValidator)
	if validateErr != nil {
		return apperr.Configuration("initializing validator", validateErr)
	}
	return translate(validate.Struct(p))
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(map[string]string{"input": err.Error()})
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[snake(fe.Field())] = fe.Translate(translator)
	}
	return apperr.Validation(fields)
}

// ParseClock parses a 24-hour "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// snake converts a Go field name like ScheduleTime to schedule_time.
func snake(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
