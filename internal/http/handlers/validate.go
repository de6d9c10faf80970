package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iago/reportflow/internal/domain"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		return domain.IsValidID(fl.Field().String())
	})
	return v
}

// describeValidation reports the first failing field in the JSON envelope.
func describeValidation(err error) errorDetail {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return errorDetail{Code: "validation_failed", Message: err.Error()}
	}
	first := fieldErrors[0]
	field := strings.SplitN(first.Namespace(), ".", 2)
	name := first.Field()
	if len(field) == 2 {
		name = field[1]
	}
	return errorDetail{
		Code:    "validation_failed",
		Message: fieldMessage(name, first),
		Field:   name,
	}
}

func fieldMessage(name string, err validator.FieldError) string {
	param := err.Param()
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", name, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(param, " ", ", "))
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", name)
	case "entityid":
		return fmt.Sprintf("%s has an invalid format", name)
	default:
		return fmt.Sprintf("%s failed %s validation", name, err.Tag())
	}
}
