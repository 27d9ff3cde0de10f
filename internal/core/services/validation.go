package services

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// requestValidator returns the shared validator, which reports fields by
// their JSON names.
func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// ValidateRequest normalises req and checks it. Failures wrap
// domain.ErrInvalidInput and name every offending field.
func ValidateRequest(req domain.ScenarioRequest) (domain.ScenarioRequest, error) {
	req = req.Normalised()

	err := requestValidator().Struct(req)
	if err == nil {
		return req, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return req, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, e := range verrs {
		problems = append(problems, describeFieldError(e))
	}
	sort.Strings(problems)
	return req, fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(problems, "; "))
}

func describeFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " must not be empty"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s failed on '%s' tag", e.Field(), e.Tag())
	}
}
