// Package validate holds the field checks shared by the entity handlers.
package validate

import (
	"net/mail"
	"strings"
	"time"

	"backoffice/apperr"
)

const DateLayout = "2006-01-02"

// Email accepts an empty value or a bare address.
func Email(field, v string) error {
	if v == "" {
		return nil
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return apperr.Invalid(field + " is not a valid email address")
	}
	return nil
}

func Required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return apperr.Invalid(field + " is required")
	}
	return nil
}

// Date accepts an empty value or YYYY-MM-DD.
func Date(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, v); err != nil {
		return apperr.Invalid(field + " must be a date in YYYY-MM-DD format")
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
