// Package validator wraps go-playground struct validation for the handlers.
// It is part of the platform layer and carries no business logic.
package validator

import "github.com/go-playground/validator/v10"

// Validator validates request DTOs against their struct tags. Wrapping the
// library type keeps handlers testable and leaves room for custom rules.
type Validator struct {
	v *validator.Validate
}

// New returns a ready validator. Custom rules (plate formats and the like)
// are registered through RegisterValidation.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct validates s against its validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates one value against a tag expression.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation adds a named custom validation rule.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}
