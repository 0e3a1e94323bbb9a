// Package validation checks caller input against its `validate` struct tags and reports the
// first failure in the apperr taxonomy.
//
// Field names come from the json tag, so errors name fields the way clients send them.
// String lengths (`max`) are counted in characters.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/sudo-init-do/peerledger/internal/apperr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

// fieldErrors maps fields with a dedicated error code to that code. Any rule failing on
// one of these fields reports the sentinel.
var fieldErrors = map[string]error{
	"price":     apperr.ErrInvalidPrice,
	"rating":    apperr.ErrInvalidRating,
	"category":  apperr.ErrInvalidCategory,
	"condition": apperr.ErrInvalidCondition,
	"fee_rate":  apperr.ErrInvalidFeeRate,
	"amount":    apperr.ErrInvalidAmount,
}

// enum is implemented by the closed string sets in storage.
type enum interface {
	Valid() bool
}

func newValidator() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())
	vld.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := vld.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		v, ok := fl.Field().Interface().(enum)
		return ok && v.Valid()
	}); err != nil {
		return nil, fmt.Errorf("register enum rule: %w", err)
	}
	return vld, nil
}

func get() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errValidate = newValidator()
	})
	return validate, errValidate
}

// Struct validates payload and returns nil or the first failing field as an *apperr.Error.
func Struct(payload any) error {
	vld, err := get()
	if err != nil {
		return err
	}
	err = vld.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return translate(fieldErrs[0])
	}
	return fmt.Errorf("validate %T: %w", payload, err)
}

func translate(fe validator.FieldError) error {
	field := fe.Field()
	if sentinel, ok := fieldErrors[field]; ok {
		return sentinel
	}
	switch fe.Tag() {
	case "required":
		return apperr.Required(field)
	case "max":
		if fe.Kind() == reflect.String {
			if n, err := strconv.Atoi(fe.Param()); err == nil {
				return apperr.FieldTooLong(field, n)
			}
		}
	}
	return apperr.Invalid(field, fmt.Sprintf("%s failed the %s check", field, fe.Tag()))
}
