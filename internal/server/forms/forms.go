// Package forms validates user input with explicit per-field validator
// lists. A form exposes its fields through a Fields method; Validate runs
// every validator of every field and collects the failure messages.
package forms

import (
	"context"
	"sort"
	"strings"

	"github.com/dmitrijs2005/flasky/internal/common"
)

// Validator checks a single value. A non-empty message marks a validation
// failure; a non-nil error is an infrastructure fault (for example a store
// lookup that could not run) and aborts validation.
type Validator func(ctx context.Context, value string) (string, error)

// Field binds a named value to the validators that must accept it.
type Field struct {
	Name       string
	Value      string
	Validators []Validator
}

// Errors maps a field name to its failure messages.
type Errors map[string][]string

func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// First returns the first message recorded for field, or "".
func (e Errors) First(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e Errors) Error() string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e[name], "; "))
	}
	return "invalid form: " + strings.Join(parts, ", ")
}

// Is lets callers match any form failure with common.ErrorValidation.
func (e Errors) Is(target error) bool {
	return target == common.ErrorValidation
}

// Validate runs the validators of every field in order. It returns nil
// Errors when all fields pass.
func Validate(ctx context.Context, fields ...Field) (Errors, error) {
	errs := Errors{}
	for _, f := range fields {
		for _, v := range f.Validators {
			msg, err := v(ctx, f.Value)
			if err != nil {
				return nil, err
			}
			if msg != "" {
				errs.Add(f.Name, msg)
			}
		}
	}
	if len(errs) == 0 {
		return nil, nil
	}
	return errs, nil
}
