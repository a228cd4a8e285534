package command

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var userNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Validator checks command payloads against their validate tags and renders readable messages.
// Field names in messages come from the label tag.
type Validator struct {
	v *validator.Validate
}

var customRules = map[string]validator.Func{
	"username": func(fl validator.FieldLevel) bool {
		return userNamePattern.MatchString(fl.Field().String())
	},
}

// NewValidator builds a validator with the username rule registered.
func NewValidator() *Validator {
	return newValidator(customRules)
}

// newValidator panics when a rule cannot be registered; rules are fixed at compile time.
func newValidator(rules map[string]validator.Func) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if label := field.Tag.Get("label"); label != "" {
			return label
		}
		return field.Name
	})
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("command: register validation %q: %v", tag, err))
		}
	}
	return &Validator{v: v}
}

// Validate returns one message per failing field, in declaration order. A nil result means valid.
func (v *Validator) Validate(s any) []string {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, messageFor(fe))
	}
	return messages
}

func messageFor(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "A valid email is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
	case "username":
		return "Username can only contain letters, numbers, and the characters _.-"
	case "eqfield":
		return "Passwords do not match"
	case "nefield":
		return "New password must be different from current password"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed on '%s' validation", field, fe.Tag())
	}
}
