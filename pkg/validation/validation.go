package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	dErrors "kycflow/pkg/domain-errors"
)

var defaultValidator = newValidator()

// dateLayouts are the calendar date shapes accepted by the calendardate tag.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02 Jan 2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("calendardate", func(fl validator.FieldLevel) bool {
		_, ok := ParseDate(fl.Field().String())
		return ok
	})
	return v
}

// ParseDate parses a calendar date in any of the accepted layouts.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FieldError is a single failed rule on a struct field.
type FieldError struct {
	Field string // Go struct field name
	Tag   string
	Param string
}

// MessageFunc renders a FieldError as a user-facing message.
type MessageFunc func(FieldError) string

// Validate validates a struct using the default validator and returns a domain
// validation error listing every violation.
func Validate(req any) error {
	if msgs := Check(req, nil); len(msgs) > 0 {
		return dErrors.NewValidation(msgs)
	}
	return nil
}

// Check validates req and returns one message per failing field, in field order.
// A nil render falls back to ErrorMessage.
func Check(req any, render MessageFunc) []string {
	err := defaultValidator.Struct(req)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return []string{"invalid request body"}
	}
	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		field := FieldError{Field: fe.StructField(), Tag: fe.ActualTag(), Param: fe.Param()}
		msg := ""
		if render != nil {
			msg = render(field)
		}
		if msg == "" {
			msg = ErrorMessage(field)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// ErrorMessage converts a field error into a generic human-readable message
func ErrorMessage(fe FieldError) string {
	field := snakeCase(fe.Field)

	switch fe.Tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid url", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param)
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	case "calendardate":
		return fmt.Sprintf("%s must be a valid date", field)
	default:
		if field == "" {
			return "invalid request body"
		}
		return fmt.Sprintf("%s is invalid", field)
	}
}

// snakeCase turns a Go field name such as APIKey or BaseURL into api_key or
// base_url for messages.
func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 &&
			(unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
