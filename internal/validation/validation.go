// Package validation holds input rules shared by the HTTP handlers.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/eventplanner/backend/internal/models"
)

var (
	emailRe   = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
	timeRe    = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// ErrWeakPassword describes the password policy.
var ErrWeakPassword = errors.New("password must be at least 8 characters and include uppercase, lowercase, a number and a special character")

// IsValidEmail reports whether email is well-formed.
func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsStrongPassword reports whether password has at least 8 characters with an
// uppercase letter, a lowercase letter, a digit and a special character.
func IsStrongPassword(password string) bool {
	return len(password) >= 8 &&
		upperRe.MatchString(password) &&
		lowerRe.MatchString(password) &&
		digitRe.MatchString(password) &&
		specialRe.MatchString(password)
}

// RegisterBindings installs custom tags on gin's validator. Safe to call more than once.
func RegisterBindings() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("validation: unexpected binding engine")
	}
	if err := v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("emailaddr", func(fl validator.FieldLevel) bool {
		return IsValidEmail(strings.TrimSpace(fl.Field().String()))
	})
}

// BindingMessage maps a binding error to a user-facing message. The first failed
// field decides: its tag is looked up in msgs, and anything else yields fallback.
func BindingMessage(err error, msgs map[string]string, fallback string) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if m, ok := msgs[verrs[0].Tag()]; ok {
			return m
		}
	}
	return fallback
}

// FieldError is a validation failure for one input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

func fieldErr(field, msg string) *FieldError {
	return &FieldError{Field: field, Message: msg}
}

// EventTitle validates a trimmed title.
func EventTitle(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n == 0 {
		return fieldErr("title", "Event title is required")
	}
	if n < 3 || n > 150 {
		return fieldErr("title", "Event title must be between 3 and 150 characters")
	}
	return nil
}

// EventDescription validates an optional description.
func EventDescription(desc string) error {
	if utf8.RuneCountInString(strings.TrimSpace(desc)) > 1000 {
		return fieldErr("description", "Event description must be 1000 characters or fewer")
	}
	return nil
}

// EventDate validates a YYYY-MM-DD date that is not before today.
func EventDate(date string, now time.Time) error {
	if strings.TrimSpace(date) == "" {
		return fieldErr("date", "Event date is required")
	}
	d, err := time.ParseInLocation("2006-01-02", date, now.Location())
	if err != nil {
		return fieldErr("date", "Invalid date format. Use YYYY-MM-DD")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		return fieldErr("date", "Event date cannot be in the past")
	}
	return nil
}

// EventTime validates HH:MM in 24-hour format.
func EventTime(t string) error {
	if strings.TrimSpace(t) == "" {
		return fieldErr("time", "Event time is required")
	}
	if !timeRe.MatchString(t) {
		return fieldErr("time", "Invalid time format. Use HH:MM (24-hour)")
	}
	return nil
}

// EventLocation validates a trimmed location.
func EventLocation(loc string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(loc))
	if n == 0 {
		return fieldErr("location", "Event location is required")
	}
	if n < 3 || n > 200 {
		return fieldErr("location", "Event location must be between 3 and 200 characters")
	}
	return nil
}

// EventCategory validates a category; empty is allowed and means "other".
func EventCategory(c string) error {
	if c == "" || models.ValidCategory(c) {
		return nil
	}
	return fieldErr("category", "Invalid category. Must be one of: "+strings.Join(models.Categories, ", "))
}

// OrganizationName validates a trimmed organization name.
func OrganizationName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 {
		return fieldErr("name", "Organization name is required")
	}
	if n < 3 || n > 100 {
		return fieldErr("name", "Organization name must be between 3 and 100 characters")
	}
	return nil
}

// OrganizationDescription validates an optional description.
func OrganizationDescription(desc string) error {
	if utf8.RuneCountInString(strings.TrimSpace(desc)) > 500 {
		return fieldErr("description", "Organization description must be 500 characters or fewer")
	}
	return nil
}

// First returns the first non-nil error.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
