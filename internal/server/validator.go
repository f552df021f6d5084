package server

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	plandomain "github.com/smallbiznis/tenantbill/internal/plan/domain"
)

var registerValidatorsOnce sync.Once

// registerValidators installs the custom tags used by request structs on
// gin's shared validator engine.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			if name == "-" {
				return ""
			}
			return name
		})
		_ = engine.RegisterValidation("billing_cycle", validateBillingCycle)
	})
}

// validateBillingCycle accepts an empty value; the plan default applies then.
func validateBillingCycle(fl validator.FieldLevel) bool {
	_, err := plandomain.ParseBillingCycle(fl.Field().String())
	return err == nil
}

// bindError turns a binding failure into per-field validation errors.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalidRequestError()
	}

	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fe.Field()
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Code:    "invalid_" + field,
			Message: fieldErrorMessage(fe),
		})
	}
	return out
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "billing_cycle":
		return fe.Field() + " must be monthly or yearly"
	case "gte", "lte":
		return fe.Field() + " is out of range"
	default:
		return "invalid " + fe.Field()
	}
}
