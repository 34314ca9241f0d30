package tracking

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	_ = validate.RegisterValidation("catalog_nbr", validateCatalogNumber)
	_ = validate.RegisterValidation("term_code", validateTermCode)
}

// validateCatalogNumber accepts digits with at most one '.', e.g. 205 or 394.1.
func validateCatalogNumber(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	digits, dots := 0, 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

func validateTermCode(fl validator.FieldLevel) bool {
	return domain.ValidateTerm(fl.Field().String()) == nil
}

func validateInput(in any) error {
	if err := validate.Struct(in); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return domain.ErrValidation(err.Error())
	}

	messages := make([]string, 0, len(verrs))
	meta := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, formatFieldError(fe))
		meta[fe.Field()] = fe.Tag()
	}
	return domain.ErrValidationMeta(strings.Join(messages, "; "), meta)
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "alpha":
		return fmt.Sprintf("%s must contain only letters (e.g. CSE)", field)
	case "numeric":
		return fmt.Sprintf("%s must contain only digits", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "catalog_nbr":
		return fmt.Sprintf("%s must be a number such as 205", field)
	case "term_code":
		return fmt.Sprintf("%s must be 4 digits ending in 1, 4 or 7 (e.g. 2261 for Spring 2026)", field)
	case "excluded_if":
		return fmt.Sprintf("%s does not apply to this request type", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
